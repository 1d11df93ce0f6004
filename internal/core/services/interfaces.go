package services

import (
	"context"

	"bookshare/internal/core/domain"
)

// Note: LendingService implementation is in lending_service.go
// Note: BookService implementation is in book_service.go

// Lending defines the request lifecycle operations exposed over HTTP
type Lending interface {
	Create(ctx context.Context, actorID string, input CreateRequestInput) (*domain.LendingRequest, error)
	Accept(ctx context.Context, actorID, requestID string) (*domain.LendingRequest, error)
	Reject(ctx context.Context, actorID, requestID string) (*domain.LendingRequest, error)
	Return(ctx context.Context, actorID, requestID string) (*domain.LendingRequest, error)
	RequestsFor(ctx context.Context, actorID, userID string) (*domain.RequestsView, error)
}

// Books defines the book operations exposed over HTTP
type Books interface {
	Create(ctx context.Context, ownerID string, input CreateBookInput) (*domain.Book, error)
	Get(ctx context.Context, id string) (*domain.Book, error)
	List(ctx context.Context, filter domain.BookFilter, offset, limit int) ([]domain.Book, int64, error)
	Genres(ctx context.Context) ([]string, error)
	SetAvailability(ctx context.Context, actorID, id string, available bool) (*domain.Book, error)
	Delete(ctx context.Context, actorID, id string) error
}

var (
	_ Lending  = (*LendingService)(nil)
	_ Books    = (*BookService)(nil)
	_ Notifier = (*NotificationService)(nil)
)
