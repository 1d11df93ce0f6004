package domain

import "time"

// BookStatus is the lending availability of a listed book
type BookStatus string

const (
	BookAvailable   BookStatus = "Available"
	BookPending     BookStatus = "Pending"
	BookBorrowed    BookStatus = "Borrowed"
	BookUnavailable BookStatus = "Unavailable"
)

// Valid reports whether s is one of the four book statuses
func (s BookStatus) Valid() bool {
	switch s {
	case BookAvailable, BookPending, BookBorrowed, BookUnavailable:
		return true
	}
	return false
}

// RequestStatus is the lifecycle state of a lending request
type RequestStatus string

const (
	RequestPending  RequestStatus = "Pending"
	RequestAccepted RequestStatus = "Accepted"
	RequestRejected RequestStatus = "Rejected"
	RequestReturned RequestStatus = "Returned"
)

// Valid reports whether s is one of the four request statuses
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestAccepted, RequestRejected, RequestReturned:
		return true
	}
	return false
}

// IsActive reports whether the request still holds its book (Pending or Accepted)
func (s RequestStatus) IsActive() bool {
	return s == RequestPending || s == RequestAccepted
}

// IsTerminal reports whether no further transition is possible
func (s RequestStatus) IsTerminal() bool {
	return s == RequestRejected || s == RequestReturned
}

// Book represents a listed book in the domain layer
type Book struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Title       string     `json:"title"`
	Author      string     `json:"author"`
	Genre       string     `json:"genre"`
	Description string     `json:"description,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	Status      BookStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// LendingRequest represents one borrower's request for one book
type LendingRequest struct {
	ID          string        `json:"id"`
	BookID      string        `json:"book_id"`
	BookTitle   string        `json:"book_title,omitempty"`
	RequesterID string        `json:"requester_id"`
	OwnerID     string        `json:"owner_id"`
	Status      RequestStatus `json:"status"`
	Message     string        `json:"message,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	DecidedAt   *time.Time    `json:"decided_at,omitempty"`
	ReturnedAt  *time.Time    `json:"returned_at,omitempty"`

	// Provisional marks a client-side prediction that has no server id yet.
	Provisional bool `json:"-"`
}

// RequestsView is the inbox of one user: requests received as owner and sent as borrower
type RequestsView struct {
	Received []LendingRequest `json:"received"`
	Sent     []LendingRequest `json:"sent"`
}

// BookFilter narrows a book listing. Empty fields match everything.
type BookFilter struct {
	Search  string
	Genre   string
	OwnerID string
}

// Identity is the already-authenticated actor performing an operation
type Identity struct {
	UserID string
	Token  string
}
