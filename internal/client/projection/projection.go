// Package projection holds the client's view of book and request state:
// server-confirmed values plus the optimistic overlays of in-flight
// mutations. Every value a surface sees is published from here. Publishing
// is serialized by its own lock, taken before the state lock and held past
// it, so refreshes and mutations never interleave their broadcasts while
// subscribers and hooks remain free to read the projection. They must not
// call Refresh, Apply, Commit, Rollback or Mount from inside a delivery.
package projection

import (
	"context"
	"fmt"
	"sync"

	"bookshare/internal/client"
	"bookshare/internal/client/syncbus"
	"bookshare/internal/core/domain"
)

// DefaultPageSize is the page size used when refreshing books
const DefaultPageSize = 100

// Projection is the Book Availability Projection of one client session
type Projection struct {
	repo     client.Repository
	bus      *syncbus.Bus
	log      client.Logger
	pageSize int

	// pub orders publishes; mu guards state and is never held across one
	pub       sync.Mutex
	mu        sync.Mutex
	books     map[string]domain.Book
	bookOrder []string
	reqs      map[string]domain.LendingRequest
	reqOrder  []string

	bookOverlay map[string]domain.Book
	reqOverlay  map[string]domain.LendingRequest

	// seq advances on every refresh and commit; confirmedAt records when each
	// key was last confirmed by a mutation so an older refresh cannot
	// overwrite it
	seq         uint64
	confirmedAt map[syncbus.Key]uint64
}

// Option configures a projection
type Option func(*Projection)

// WithLogger sets the logger
func WithLogger(l client.Logger) Option {
	return func(p *Projection) { p.log = l }
}

// WithPageSize sets the refresh page size
func WithPageSize(n int) Option {
	return func(p *Projection) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

// New creates an empty projection publishing on bus
func New(repo client.Repository, bus *syncbus.Bus, opts ...Option) *Projection {
	p := &Projection{
		repo:        repo,
		bus:         bus,
		log:         client.NopLogger{},
		pageSize:    DefaultPageSize,
		books:       make(map[string]domain.Book),
		reqs:        make(map[string]domain.LendingRequest),
		bookOverlay: make(map[string]domain.Book),
		reqOverlay:  make(map[string]domain.LendingRequest),
		confirmedAt: make(map[syncbus.Key]uint64),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bus returns the bus the projection publishes on
func (p *Projection) Bus() *syncbus.Bus { return p.bus }

// Mounter is a view seeded from a snapshot and kept current by the bus
type Mounter interface {
	Mount(bus *syncbus.Bus, snap client.Snapshot)
}

// Mount seeds m with the effective state and subscribes it in one step, so
// no publish can fall between the snapshot and the subscription
func (p *Projection) Mount(m Mounter) {
	p.pub.Lock()
	defer p.pub.Unlock()
	m.Mount(p.bus, p.Snapshot())
}

// ============================================================
// Refresh
// ============================================================

// Refresh replaces confirmed state wholesale with every book page and the
// identity's requests, then publishes the effective values. Overlays of
// in-flight mutations keep precedence.
func (p *Projection) Refresh(ctx context.Context, id domain.Identity) error {
	p.mu.Lock()
	started := p.seq
	p.mu.Unlock()

	var books []domain.Book
	for page := 1; ; page++ {
		res, err := p.repo.Books(ctx, id, domain.BookFilter{}, page, p.pageSize)
		if err != nil {
			return fmt.Errorf("refresh books page %d: %w", page, err)
		}
		books = append(books, res.Books...)
		if !res.HasNext || len(res.Books) == 0 {
			break
		}
	}

	view, err := p.repo.RequestsFor(ctx, id, id.UserID)
	if err != nil {
		return fmt.Errorf("refresh requests: %w", err)
	}
	reqs := mergeRequests(view)

	p.pub.Lock()
	defer p.pub.Unlock()

	p.mu.Lock()
	p.seq++
	updates := p.replaceBooksLocked(books, started)
	updates = append(updates, p.replaceRequestsLocked(reqs, started)...)
	nBooks, nReqs := len(p.books), len(p.reqs)
	p.mu.Unlock()

	p.bus.Publish(updates...)

	p.log.Info("projection refreshed", "books", nBooks, "requests", nReqs, "user", id.UserID)
	return nil
}

func mergeRequests(view *domain.RequestsView) []domain.LendingRequest {
	if view == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(view.Received)+len(view.Sent))
	out := make([]domain.LendingRequest, 0, len(view.Received)+len(view.Sent))
	for _, list := range [][]domain.LendingRequest{view.Received, view.Sent} {
		for _, r := range list {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

func (p *Projection) replaceBooksLocked(books []domain.Book, started uint64) []syncbus.Update {
	var updates []syncbus.Update
	next := make(map[string]domain.Book, len(books))
	order := make([]string, 0, len(books))

	for _, b := range books {
		if p.confirmedAt[syncbus.BookKey(b.ID)] > started {
			if kept, ok := p.books[b.ID]; ok {
				b = kept
			}
		}
		_, existed := p.books[b.ID]
		next[b.ID] = b
		order = append(order, b.ID)

		u := syncbus.BookUpdate(p.effectiveBookLocked(b.ID, b))
		u.Created = !existed
		updates = append(updates, u)
	}
	for _, id := range p.bookOrder {
		if _, still := next[id]; still {
			continue
		}
		if p.confirmedAt[syncbus.BookKey(id)] > started {
			next[id] = p.books[id]
			order = append(order, id)
			continue
		}
		u := syncbus.BookUpdate(p.books[id])
		u.Removed = true
		updates = append(updates, u)
	}

	p.books, p.bookOrder = next, order
	return updates
}

func (p *Projection) replaceRequestsLocked(reqs []domain.LendingRequest, started uint64) []syncbus.Update {
	var updates []syncbus.Update
	next := make(map[string]domain.LendingRequest, len(reqs))
	order := make([]string, 0, len(reqs))

	for _, r := range reqs {
		if p.confirmedAt[syncbus.RequestKey(r.ID)] > started {
			if kept, ok := p.reqs[r.ID]; ok {
				r = kept
			}
		}
		_, existed := p.reqs[r.ID]
		next[r.ID] = r
		order = append(order, r.ID)

		u := syncbus.RequestUpdate(p.effectiveRequestLocked(r.ID, r))
		u.Created = !existed
		updates = append(updates, u)
	}
	for _, id := range p.reqOrder {
		if _, still := next[id]; still {
			continue
		}
		if p.confirmedAt[syncbus.RequestKey(id)] > started {
			next[id] = p.reqs[id]
			order = append(order, id)
			continue
		}
		u := syncbus.RequestUpdate(p.reqs[id])
		u.Removed = true
		updates = append(updates, u)
	}

	p.reqs, p.reqOrder = next, order
	return updates
}

// ============================================================
// Reads
// ============================================================

// Snapshot returns the effective state, including provisional requests
func (p *Projection) Snapshot() client.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := client.Snapshot{
		Books:    make([]domain.Book, 0, len(p.bookOrder)),
		Requests: make([]domain.LendingRequest, 0, len(p.reqOrder)+len(p.reqOverlay)),
	}
	for _, id := range p.bookOrder {
		snap.Books = append(snap.Books, p.effectiveBookLocked(id, p.books[id]))
	}
	for id, r := range p.reqOverlay {
		if _, confirmed := p.reqs[id]; !confirmed {
			snap.Requests = append(snap.Requests, r)
		}
	}
	for _, id := range p.reqOrder {
		snap.Requests = append(snap.Requests, p.effectiveRequestLocked(id, p.reqs[id]))
	}
	return snap
}

// Status returns the display status of a book
func (p *Projection) Status(bookID string) (domain.BookStatus, bool) {
	b, ok := p.Book(bookID)
	return b.Status, ok
}

// Book returns the effective value of a book
func (p *Projection) Book(id string) (domain.Book, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if b, ok := p.bookOverlay[id]; ok {
		return b, true
	}
	b, ok := p.books[id]
	return b, ok
}

// Request returns the effective value of a request
func (p *Projection) Request(id string) (domain.LendingRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.reqOverlay[id]; ok {
		return r, true
	}
	r, ok := p.reqs[id]
	return r, ok
}

// ConfirmedBook returns the server-confirmed value of a book, ignoring overlays
func (p *Projection) ConfirmedBook(id string) (domain.Book, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.books[id]
	return b, ok
}

// ConfirmedRequest returns the server-confirmed value of a request
func (p *Projection) ConfirmedRequest(id string) (domain.LendingRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.reqs[id]
	return r, ok
}

// Overlays returns how many entities currently carry an optimistic value
func (p *Projection) Overlays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bookOverlay) + len(p.reqOverlay)
}

func (p *Projection) effectiveBookLocked(id string, confirmed domain.Book) domain.Book {
	if b, ok := p.bookOverlay[id]; ok {
		return b
	}
	return confirmed
}

func (p *Projection) effectiveRequestLocked(id string, confirmed domain.LendingRequest) domain.LendingRequest {
	if r, ok := p.reqOverlay[id]; ok {
		return r
	}
	return confirmed
}
