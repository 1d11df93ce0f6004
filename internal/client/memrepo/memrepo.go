// Package memrepo is an in-memory request repository running the same
// lending rules as the server. It backs the client tests.
package memrepo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bookshare/internal/client"
	"bookshare/internal/core/domain"
	"bookshare/internal/core/lending"
)

// Repo implements client.Repository in memory
type Repo struct {
	mu       sync.Mutex
	books    map[string]domain.Book
	order    []string
	reqs     map[string]domain.LendingRequest
	reqOrder []string
	next     int
	calls    map[string]int

	// Before runs ahead of every call, outside the lock. Returning an error
	// fails the call without touching state; blocking delays it.
	Before func(ctx context.Context, op string) error
}

var _ client.Repository = (*Repo)(nil)

// New creates a repository holding books
func New(books ...domain.Book) *Repo {
	r := &Repo{
		books: make(map[string]domain.Book),
		reqs:  make(map[string]domain.LendingRequest),
		calls: make(map[string]int),
	}
	for _, b := range books {
		r.PutBook(b)
	}
	return r
}

// PutBook inserts or replaces a book
func (r *Repo) PutBook(b domain.Book) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.books[b.ID]; !ok {
		r.order = append(r.order, b.ID)
	}
	r.books[b.ID] = b
}

// Book returns the stored book
func (r *Repo) Book(id string) (domain.Book, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[id]
	return b, ok
}

// Request returns the stored request
func (r *Repo) Request(id string) (domain.LendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	return req, ok
}

// Calls returns how many times op was invoked
func (r *Repo) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *Repo) enter(ctx context.Context, op string) error {
	r.mu.Lock()
	r.calls[op]++
	before := r.Before
	r.mu.Unlock()

	if before != nil {
		return before(ctx, op)
	}
	return nil
}

// Create opens a Pending request
func (r *Repo) Create(ctx context.Context, id domain.Identity, bookID, message string) (*domain.LendingRequest, error) {
	if err := r.enter(ctx, "create"); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	book, ok := r.books[bookID]
	if !ok {
		return nil, fmt.Errorf("%w: book %s", domain.ErrNotFound, bookID)
	}
	t, err := lending.Create(book, id.UserID, message, time.Now())
	if err != nil {
		return nil, err
	}

	r.next++
	req := t.Request
	req.ID = fmt.Sprintf("req-%d", r.next)
	r.reqs[req.ID] = req
	r.reqOrder = append([]string{req.ID}, r.reqOrder...)

	book.Status = t.BookTo
	r.books[bookID] = book
	return &req, nil
}

// Accept accepts a Pending request
func (r *Repo) Accept(ctx context.Context, id domain.Identity, requestID string) (*domain.LendingRequest, error) {
	return r.decide(ctx, lending.ActionAccept, id, requestID)
}

// Reject rejects a Pending request
func (r *Repo) Reject(ctx context.Context, id domain.Identity, requestID string) (*domain.LendingRequest, error) {
	return r.decide(ctx, lending.ActionReject, id, requestID)
}

// Return closes an Accepted request
func (r *Repo) Return(ctx context.Context, id domain.Identity, requestID string) (*domain.LendingRequest, error) {
	return r.decide(ctx, lending.ActionReturn, id, requestID)
}

func (r *Repo) decide(ctx context.Context, action lending.Action, id domain.Identity, requestID string) (*domain.LendingRequest, error) {
	if err := r.enter(ctx, string(action)); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.reqs[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: request %s", domain.ErrNotFound, requestID)
	}
	t, err := lending.Decide(action, req, id.UserID, time.Now())
	if err != nil {
		return nil, err
	}

	r.reqs[requestID] = t.Request
	if book, ok := r.books[t.BookID]; ok {
		book.Status = t.BookTo
		r.books[t.BookID] = book
	}
	out := t.Request
	return &out, nil
}

// RequestsFor lists the requests userID received and sent
func (r *Repo) RequestsFor(ctx context.Context, id domain.Identity, userID string) (*domain.RequestsView, error) {
	if err := r.enter(ctx, "requests"); err != nil {
		return nil, err
	}
	if id.UserID != userID {
		return nil, fmt.Errorf("%w: cannot read requests of another user", domain.ErrAuthorization)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	view := &domain.RequestsView{Received: []domain.LendingRequest{}, Sent: []domain.LendingRequest{}}
	for _, rid := range r.reqOrder {
		req := r.reqs[rid]
		if book, ok := r.books[req.BookID]; ok {
			req.BookTitle = book.Title
		}
		if req.OwnerID == userID {
			view.Received = append(view.Received, req)
		}
		if req.RequesterID == userID {
			view.Sent = append(view.Sent, req)
		}
	}
	return view, nil
}

// Books pages through books matching filter's owner and genre
func (r *Repo) Books(ctx context.Context, id domain.Identity, filter domain.BookFilter, page, limit int) (*client.BookPage, error) {
	if err := r.enter(ctx, "books"); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []domain.Book
	for _, bid := range r.order {
		b := r.books[bid]
		if filter.OwnerID != "" && b.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Genre != "" && b.Genre != filter.Genre {
			continue
		}
		matched = append(matched, b)
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = len(matched) + 1
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return &client.BookPage{}, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return &client.BookPage{
		Books:   append([]domain.Book(nil), matched[start:end]...),
		HasNext: end < len(matched),
	}, nil
}
