// Package lending holds the transition rules of a lending request and the
// book status each transition implies. Every function here is pure: the server
// runs them inside a transaction before committing, and the client runs the
// same rules to predict the post-state of an optimistic mutation.
package lending

import (
	"fmt"
	"time"

	"bookshare/internal/core/domain"
)

// Action names one lifecycle operation
type Action string

const (
	ActionCreate Action = "create"
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
	ActionReturn Action = "return"
)

// Transition is the effect of one operation on a request and its book
type Transition struct {
	Action   Action
	Request  domain.LendingRequest
	BookID   string
	BookFrom domain.BookStatus
	BookTo   domain.BookStatus
}

var requestEdges = map[domain.RequestStatus][]domain.RequestStatus{
	domain.RequestPending:  {domain.RequestAccepted, domain.RequestRejected},
	domain.RequestAccepted: {domain.RequestReturned},
}

// CanTransition reports whether a request may move from one status to another
func CanTransition(from, to domain.RequestStatus) bool {
	for _, next := range requestEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BookStatusFor returns the book status implied by a request in the given status
func BookStatusFor(status domain.RequestStatus) domain.BookStatus {
	switch status {
	case domain.RequestPending:
		return domain.BookPending
	case domain.RequestAccepted:
		return domain.BookBorrowed
	default:
		return domain.BookAvailable
	}
}

// ProjectBookStatus derives the status a book must have given its active request.
// A manual Unavailable override survives only while no request is active.
func ProjectBookStatus(current domain.BookStatus, active *domain.LendingRequest) domain.BookStatus {
	if active != nil && active.Status.IsActive() {
		return BookStatusFor(active.Status)
	}
	if current == domain.BookUnavailable {
		return domain.BookUnavailable
	}
	return domain.BookAvailable
}

// CheckCreate validates that requesterID may open a request on book
func CheckCreate(book domain.Book, requesterID string) error {
	if book.ID == "" || requesterID == "" {
		return fmt.Errorf("%w: book id and requester id are required", domain.ErrValidation)
	}
	if requesterID == book.OwnerID {
		return fmt.Errorf("%w: owners cannot borrow their own book", domain.ErrValidation)
	}
	if book.Status != domain.BookAvailable {
		return fmt.Errorf("%w: book %s is %s", domain.ErrConflict, book.ID, book.Status)
	}
	return nil
}

// Create predicts the request opened by requesterID on book. The returned
// request has no id; the caller assigns one.
func Create(book domain.Book, requesterID, message string, now time.Time) (Transition, error) {
	if err := CheckCreate(book, requesterID); err != nil {
		return Transition{}, err
	}

	req := domain.LendingRequest{
		BookID:      book.ID,
		BookTitle:   book.Title,
		RequesterID: requesterID,
		OwnerID:     book.OwnerID,
		Status:      domain.RequestPending,
		Message:     message,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	return Transition{
		Action:   ActionCreate,
		Request:  req,
		BookID:   book.ID,
		BookFrom: domain.BookAvailable,
		BookTo:   domain.BookPending,
	}, nil
}

// Accept moves a Pending request to Accepted; only the owner may do it
func Accept(req domain.LendingRequest, callerID string, now time.Time) (Transition, error) {
	if callerID != req.OwnerID {
		return Transition{}, fmt.Errorf("%w: only the owner can accept request %s", domain.ErrAuthorization, req.ID)
	}
	return advance(ActionAccept, req, domain.RequestAccepted, now)
}

// Reject moves a Pending request to Rejected; only the owner may do it
func Reject(req domain.LendingRequest, callerID string, now time.Time) (Transition, error) {
	if callerID != req.OwnerID {
		return Transition{}, fmt.Errorf("%w: only the owner can reject request %s", domain.ErrAuthorization, req.ID)
	}
	return advance(ActionReject, req, domain.RequestRejected, now)
}

// Return moves an Accepted request to Returned. Both the borrower and the
// owner may record the return.
func Return(req domain.LendingRequest, callerID string, now time.Time) (Transition, error) {
	if callerID != req.RequesterID && callerID != req.OwnerID {
		return Transition{}, fmt.Errorf("%w: only the borrower or owner can return request %s", domain.ErrAuthorization, req.ID)
	}
	return advance(ActionReturn, req, domain.RequestReturned, now)
}

// Decide dispatches a non-create action
func Decide(action Action, req domain.LendingRequest, callerID string, now time.Time) (Transition, error) {
	switch action {
	case ActionAccept:
		return Accept(req, callerID, now)
	case ActionReject:
		return Reject(req, callerID, now)
	case ActionReturn:
		return Return(req, callerID, now)
	}
	return Transition{}, fmt.Errorf("%w: unknown action %q", domain.ErrValidation, action)
}

func advance(action Action, req domain.LendingRequest, to domain.RequestStatus, now time.Time) (Transition, error) {
	if !CanTransition(req.Status, to) {
		return Transition{}, fmt.Errorf("%w: cannot %s request %s in status %s", domain.ErrState, action, req.ID, req.Status)
	}

	from := req.Status
	next := req
	next.Status = to
	next.UpdatedAt = now
	switch to {
	case domain.RequestAccepted, domain.RequestRejected:
		at := now
		next.DecidedAt = &at
	case domain.RequestReturned:
		at := now
		next.ReturnedAt = &at
	}

	return Transition{
		Action:   action,
		Request:  next,
		BookID:   req.BookID,
		BookFrom: BookStatusFor(from),
		BookTo:   BookStatusFor(to),
	}, nil
}
