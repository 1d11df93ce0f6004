// Package optimistic applies lending mutations to every surface before the
// request repository answers, then confirms or rolls them back.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bookshare/internal/client"
	"bookshare/internal/client/projection"
	"bookshare/internal/client/syncbus"
	"bookshare/internal/core/domain"
	"bookshare/internal/core/lending"

	"github.com/google/uuid"
)

// ProvisionalPrefix marks request ids assigned locally before the server answers
const ProvisionalPrefix = "provisional-"

// DefaultTimeout bounds one repository call
const DefaultTimeout = 15 * time.Second

// Outcome describes how one mutation resolved
type Outcome struct {
	Action    lending.Action
	BookID    string
	RequestID string
	Request   *domain.LendingRequest
	Err       error
	// Retryable is set for network failures
	Retryable bool
	// Resynced is set when the failure triggered a refresh from the server
	Resynced bool
}

// Engine is the optimistic mutation engine of one client session
type Engine struct {
	repo    client.Repository
	proj    *projection.Projection
	log     client.Logger
	now     func() time.Time
	timeout time.Duration

	mu       sync.Mutex
	busy     map[syncbus.Key]struct{}
	hooks    map[int]func(Outcome)
	nextHook int
}

// Option configures an engine
type Option func(*Engine)

// WithLogger sets the logger
func WithLogger(l client.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithTimeout bounds each repository call
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithClock overrides the clock used for predicted timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine mutating through repo and publishing through proj
func New(repo client.Repository, proj *projection.Projection, opts ...Option) *Engine {
	e := &Engine{
		repo:    repo,
		proj:    proj,
		log:     client.NopLogger{},
		now:     time.Now,
		timeout: DefaultTimeout,
		busy:    make(map[syncbus.Key]struct{}),
		hooks:   make(map[int]func(Outcome)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnOutcome registers fn for every resolved mutation and returns a function
// that removes it
func (e *Engine) OnOutcome(fn func(Outcome)) (cancel func()) {
	e.mu.Lock()
	id := e.nextHook
	e.nextHook++
	e.hooks[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.hooks, id)
		e.mu.Unlock()
	}
}

// Busy reports whether a mutation on the book or request with this id is in flight
func (e *Engine) Busy(entityID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, book := e.busy[syncbus.BookKey(entityID)]
	_, req := e.busy[syncbus.RequestKey(entityID)]
	return book || req
}

func (e *Engine) acquire(keys ...syncbus.Key) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, k := range keys {
		if _, held := e.busy[k]; held {
			return fmt.Errorf("%w: %s %s", domain.ErrBusy, k.Kind, k.ID)
		}
	}
	for _, k := range keys {
		e.busy[k] = struct{}{}
	}
	return nil
}

func (e *Engine) release(keys ...syncbus.Key) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, k := range keys {
		delete(e.busy, k)
	}
}

// ============================================================
// Mutations
// ============================================================

// Create requests bookID for id. The book shows Pending and a provisional
// request appears on every surface until the repository answers.
func (e *Engine) Create(ctx context.Context, id domain.Identity, bookID, message string) (*domain.LendingRequest, error) {
	book, ok := e.proj.Book(bookID)
	if !ok {
		return nil, fmt.Errorf("%w: book %s", domain.ErrNotFound, bookID)
	}

	keys := []syncbus.Key{syncbus.BookKey(bookID)}
	if err := e.acquire(keys...); err != nil {
		return nil, err
	}

	outcome := Outcome{Action: lending.ActionCreate, BookID: bookID}

	transition, err := lending.Create(book, id.UserID, message, e.now())
	if err != nil {
		e.release(keys...)
		return nil, e.finish(ctx, id, outcome, err)
	}

	provisional := transition.Request
	provisional.ID = ProvisionalPrefix + uuid.NewString()
	provisional.Provisional = true

	predicted := book
	predicted.Status = transition.BookTo

	applied := e.proj.Apply(projection.Patch{
		Books:    []domain.Book{predicted},
		Requests: []domain.LendingRequest{provisional},
	})
	e.log.Debug("optimistic create applied", "book", bookID, "provisional", provisional.ID)

	callCtx, cancel := e.detach(ctx)
	req, err := e.repo.Create(callCtx, id, bookID, message)
	cancel()

	if err != nil {
		e.proj.Rollback(applied)
		e.release(keys...)
		return nil, e.finish(ctx, id, outcome, err)
	}

	confirmed := *req
	if confirmed.BookTitle == "" {
		confirmed.BookTitle = book.Title
	}
	e.proj.Commit(applied, []domain.Book{predicted}, []domain.LendingRequest{confirmed})
	e.release(keys...)

	outcome.RequestID = confirmed.ID
	outcome.Request = &confirmed
	return &confirmed, e.finish(ctx, id, outcome, nil)
}

// Accept accepts a pending request; the book shows Borrowed immediately
func (e *Engine) Accept(ctx context.Context, id domain.Identity, requestID string) (*domain.LendingRequest, error) {
	return e.decide(ctx, lending.ActionAccept, id, requestID)
}

// Reject rejects a pending request; the book shows Available immediately
func (e *Engine) Reject(ctx context.Context, id domain.Identity, requestID string) (*domain.LendingRequest, error) {
	return e.decide(ctx, lending.ActionReject, id, requestID)
}

// Return returns an accepted request; the book shows Available immediately
func (e *Engine) Return(ctx context.Context, id domain.Identity, requestID string) (*domain.LendingRequest, error) {
	return e.decide(ctx, lending.ActionReturn, id, requestID)
}

func (e *Engine) decide(ctx context.Context, action lending.Action, id domain.Identity, requestID string) (*domain.LendingRequest, error) {
	req, ok := e.proj.Request(requestID)
	if !ok {
		return nil, fmt.Errorf("%w: request %s", domain.ErrNotFound, requestID)
	}
	if req.Provisional {
		return nil, fmt.Errorf("%w: request %s is still being created", domain.ErrBusy, requestID)
	}

	keys := []syncbus.Key{syncbus.RequestKey(requestID), syncbus.BookKey(req.BookID)}
	if err := e.acquire(keys...); err != nil {
		return nil, err
	}

	outcome := Outcome{Action: action, BookID: req.BookID, RequestID: requestID}

	transition, err := lending.Decide(action, req, id.UserID, e.now())
	if err != nil {
		e.release(keys...)
		return nil, e.finish(ctx, id, outcome, err)
	}

	patch := projection.Patch{Requests: []domain.LendingRequest{transition.Request}}
	book, haveBook := e.proj.Book(req.BookID)
	if haveBook {
		book.Status = transition.BookTo
		patch.Books = []domain.Book{book}
	}

	applied := e.proj.Apply(patch)
	e.log.Debug("optimistic transition applied", "action", action, "request", requestID, "book_status", transition.BookTo)

	callCtx, cancel := e.detach(ctx)
	res, err := e.call(callCtx, action, id, requestID)
	cancel()

	if err != nil {
		e.proj.Rollback(applied)
		e.release(keys...)
		return nil, e.finish(ctx, id, outcome, err)
	}

	confirmed := *res
	if confirmed.BookTitle == "" {
		confirmed.BookTitle = req.BookTitle
	}
	e.proj.Commit(applied, patch.Books, []domain.LendingRequest{confirmed})
	e.release(keys...)

	outcome.Request = &confirmed
	return &confirmed, e.finish(ctx, id, outcome, nil)
}

func (e *Engine) call(ctx context.Context, action lending.Action, id domain.Identity, requestID string) (*domain.LendingRequest, error) {
	switch action {
	case lending.ActionAccept:
		return e.repo.Accept(ctx, id, requestID)
	case lending.ActionReject:
		return e.repo.Reject(ctx, id, requestID)
	case lending.ActionReturn:
		return e.repo.Return(ctx, id, requestID)
	}
	return nil, fmt.Errorf("%w: unknown action %q", domain.ErrValidation, action)
}

// detach keeps the call running to completion even when the caller's
// context is cancelled; only the engine timeout bounds it
func (e *Engine) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
}

// finish classifies err, resyncs on conflict and state errors, and reports
// the outcome. The returned error is the classified one.
func (e *Engine) finish(ctx context.Context, id domain.Identity, outcome Outcome, err error) error {
	if err != nil {
		err = classify(err)
		outcome.Err = err
		outcome.Retryable = errors.Is(err, domain.ErrNetwork)

		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrState) {
			refreshCtx, cancel := e.detach(ctx)
			if rerr := e.proj.Refresh(refreshCtx, id); rerr != nil {
				e.log.Warn("resync after failed mutation did not complete", "action", outcome.Action, "error", rerr)
			} else {
				outcome.Resynced = true
			}
			cancel()
		}

		e.log.Info("mutation failed", "action", outcome.Action, "book", outcome.BookID, "request", outcome.RequestID, "code", domain.CodeOf(err), "error", err)
	} else {
		e.log.Info("mutation confirmed", "action", outcome.Action, "book", outcome.BookID, "request", outcome.RequestID)
	}

	e.mu.Lock()
	hooks := make([]func(Outcome), 0, len(e.hooks))
	for _, fn := range e.hooks {
		hooks = append(hooks, fn)
	}
	e.mu.Unlock()

	for _, fn := range hooks {
		fn(outcome)
	}
	return err
}

// classify keeps lending errors and turns everything else into ErrNetwork
func classify(err error) error {
	if domain.IsLendingError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
}
