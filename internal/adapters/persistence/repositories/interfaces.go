package repositories

import (
	"context"
	"time"

	"bookshare/internal/adapters/persistence/models"
	"bookshare/internal/core/domain"
)

// BookRepository defines book repository interface
type BookRepository interface {
	Create(ctx context.Context, book *models.Book) error
	GetByID(ctx context.Context, id string) (*models.Book, error)
	List(ctx context.Context, filter domain.BookFilter, offset, limit int) ([]*models.Book, int64, error)
	ListAll(ctx context.Context) ([]*models.Book, error)
	Genres(ctx context.Context) ([]string, error)
	// UpdateStatus sets status to `to` only when the current status is one of
	// `from`. It reports whether a row changed.
	UpdateStatus(ctx context.Context, id string, from []domain.BookStatus, to domain.BookStatus) (bool, error)
	// RepairStatus is UpdateStatus guarded by the book's active request: with
	// active nil the write happens only while no request is active, otherwise
	// only while that request still holds the same status.
	RepairStatus(ctx context.Context, id string, from, to domain.BookStatus, active *domain.LendingRequest) (bool, error)
	Delete(ctx context.Context, id string) error
}

// RequestRepository defines lending request repository interface.
// Requests have no Delete: terminal rows are kept as history.
type RequestRepository interface {
	Create(ctx context.Context, req *models.LendingRequest) error
	GetByID(ctx context.Context, id string) (*models.LendingRequest, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.LendingRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]*models.LendingRequest, error)
	ListActive(ctx context.Context) ([]*models.LendingRequest, error)
	// ActiveByBook returns the active request of a book, nil when there is none
	ActiveByBook(ctx context.Context, bookID string) (*models.LendingRequest, error)
	// UpdateStatus moves a request from `from` to `to` atomically and reports
	// whether the row was still in `from`.
	UpdateStatus(ctx context.Context, id string, from, to domain.RequestStatus, at time.Time) (bool, error)
}
