package repositories

import (
	"context"

	"gorm.io/gorm"
)

// Store bundles the repositories that share one database handle
type Store struct {
	db       *gorm.DB
	Books    BookRepository
	Requests RequestRepository
}

// NewStore creates repositories bound to db
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:       db,
		Books:    NewBookRepository(db),
		Requests: NewRequestRepository(db),
	}
}

// Transaction runs fn with repositories bound to a single transaction.
// Returning an error from fn rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
