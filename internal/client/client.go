// Package client holds the contracts shared by the client-side lending core:
// the request repository boundary, the snapshot surfaces are seeded from and
// the logger the core reports through.
package client

import (
	"context"

	"bookshare/internal/core/domain"
)

// Repository is the request service boundary consumed by the client core.
// Every call carries the acting identity explicitly.
type Repository interface {
	Create(ctx context.Context, id domain.Identity, bookID, message string) (*domain.LendingRequest, error)
	Accept(ctx context.Context, id domain.Identity, requestID string) (*domain.LendingRequest, error)
	Reject(ctx context.Context, id domain.Identity, requestID string) (*domain.LendingRequest, error)
	Return(ctx context.Context, id domain.Identity, requestID string) (*domain.LendingRequest, error)
	RequestsFor(ctx context.Context, id domain.Identity, userID string) (*domain.RequestsView, error)
	Books(ctx context.Context, id domain.Identity, filter domain.BookFilter, page, limit int) (*BookPage, error)
}

// BookPage is one page of a book listing
type BookPage struct {
	Books   []domain.Book
	HasNext bool
}

// Snapshot is the effective state a surface is seeded with on mount
type Snapshot struct {
	Books    []domain.Book
	Requests []domain.LendingRequest
}

// Logger is the structured logger the client core reports through.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger discards everything
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
