package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"bookshare/internal/adapters/persistence/models"
	"bookshare/internal/adapters/persistence/repositories"
	"bookshare/internal/core/domain"
	"bookshare/internal/core/lending"

	"gorm.io/gorm"
)

// LendingService is the authoritative request repository: every lifecycle
// transition is validated by the lending rules and committed together with
// the correlated book status in one transaction.
type LendingService struct {
	store    *repositories.Store
	notifier Notifier
	now      func() time.Time
}

// NewLendingService creates a new lending service
func NewLendingService(store *repositories.Store, notifier Notifier) *LendingService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &LendingService{
		store:    store,
		notifier: notifier,
		now:      time.Now,
	}
}

// CreateRequestInput represents create request input
type CreateRequestInput struct {
	BookID  string `json:"book_id" validate:"required,max=64"`
	Message string `json:"message,omitempty" validate:"max=500"`
}

// Create opens a Pending request for actorID on an Available book. When two
// requesters race, the conditional book update lets exactly one through and
// the other gets domain.ErrConflict.
func (s *LendingService) Create(ctx context.Context, actorID string, input CreateRequestInput) (*domain.LendingRequest, error) {
	if actorID == "" || input.BookID == "" {
		return nil, fmt.Errorf("%w: book id and requester id are required", domain.ErrValidation)
	}

	var created *models.LendingRequest
	var title string
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		book, err := tx.Books.GetByID(ctx, input.BookID)
		if err != nil {
			return notFound(err, "book", input.BookID)
		}

		transition, err := lending.Create(book.ToDomain(), actorID, input.Message, s.now())
		if err != nil {
			return err
		}

		ok, err := tx.Books.UpdateStatus(ctx, book.ID, []domain.BookStatus{transition.BookFrom}, transition.BookTo)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: book %s was requested by someone else", domain.ErrConflict, book.ID)
		}

		created = models.LendingRequestFromDomain(transition.Request)
		title = book.Title
		return tx.Requests.Create(ctx, created)
	})
	if err != nil {
		return nil, err
	}

	req := created.ToDomain()
	req.BookTitle = title
	log.Printf("📚 Request %s created: book=%s requester=%s", req.ID, req.BookID, req.RequesterID)

	s.notifier.BookStatusChanged(req.BookID, domain.BookPending)
	s.notifier.RequestUpdated(req)
	return &req, nil
}

// Accept accepts a Pending request; the book becomes Borrowed
func (s *LendingService) Accept(ctx context.Context, actorID, requestID string) (*domain.LendingRequest, error) {
	return s.decide(ctx, lending.ActionAccept, actorID, requestID)
}

// Reject rejects a Pending request; the book becomes Available
func (s *LendingService) Reject(ctx context.Context, actorID, requestID string) (*domain.LendingRequest, error) {
	return s.decide(ctx, lending.ActionReject, actorID, requestID)
}

// Return closes an Accepted request; the book becomes Available
func (s *LendingService) Return(ctx context.Context, actorID, requestID string) (*domain.LendingRequest, error) {
	return s.decide(ctx, lending.ActionReturn, actorID, requestID)
}

func (s *LendingService) decide(ctx context.Context, action lending.Action, actorID, requestID string) (*domain.LendingRequest, error) {
	if requestID == "" {
		return nil, fmt.Errorf("%w: request id is required", domain.ErrValidation)
	}

	var transition lending.Transition
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		row, err := tx.Requests.GetByID(ctx, requestID)
		if err != nil {
			return notFound(err, "request", requestID)
		}

		now := s.now()
		transition, err = lending.Decide(action, row.ToDomain(), actorID, now)
		if err != nil {
			return err
		}

		from := row.ToDomain().Status
		ok, err := tx.Requests.UpdateStatus(ctx, row.ID, from, transition.Request.Status, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: request %s changed concurrently", domain.ErrState, row.ID)
		}

		ok, err = tx.Books.UpdateStatus(ctx, transition.BookID, []domain.BookStatus{transition.BookFrom}, transition.BookTo)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: book %s is not %s", domain.ErrState, transition.BookID, transition.BookFrom)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	req := transition.Request
	log.Printf("📚 Request %s %s by %s: book %s -> %s", req.ID, action, actorID, transition.BookID, transition.BookTo)

	s.notifier.BookStatusChanged(transition.BookID, transition.BookTo)
	s.notifier.RequestUpdated(req)
	return &req, nil
}

// RequestsFor lists the requests a user received and sent. Users may only
// read their own inbox.
func (s *LendingService) RequestsFor(ctx context.Context, actorID, userID string) (*domain.RequestsView, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if actorID != userID {
		return nil, fmt.Errorf("%w: cannot read requests of another user", domain.ErrAuthorization)
	}

	received, err := s.store.Requests.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	sent, err := s.store.Requests.ListByRequester(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &domain.RequestsView{
		Received: toDomainRequests(received),
		Sent:     toDomainRequests(sent),
	}, nil
}

func toDomainRequests(rows []*models.LendingRequest) []domain.LendingRequest {
	out := make([]domain.LendingRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToDomain())
	}
	return out
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
	}
	return err
}
