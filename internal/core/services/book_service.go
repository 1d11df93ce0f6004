package services

import (
	"context"
	"fmt"
	"log"

	"bookshare/internal/adapters/persistence/models"
	"bookshare/internal/adapters/persistence/repositories"
	"bookshare/internal/core/domain"
)

// BookService handles book listing and the owner's manual availability override
type BookService struct {
	store    *repositories.Store
	notifier Notifier
}

// NewBookService creates a new book service
func NewBookService(store *repositories.Store, notifier Notifier) *BookService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &BookService{store: store, notifier: notifier}
}

// CreateBookInput represents create book input
type CreateBookInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Author      string `json:"author" validate:"required,max=200"`
	Genre       string `json:"genre" validate:"max=80"`
	Description string `json:"description" validate:"max=5000"`
	ImageURL    string `json:"image_url" validate:"omitempty,url,max=500"`
}

// Create lists a new Available book owned by ownerID
func (s *BookService) Create(ctx context.Context, ownerID string, input CreateBookInput) (*domain.Book, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}

	book := &models.Book{
		OwnerID:     ownerID,
		Title:       input.Title,
		Author:      input.Author,
		Genre:       input.Genre,
		Description: input.Description,
		ImageURL:    input.ImageURL,
		Status:      string(domain.BookAvailable),
	}
	if err := s.store.Books.Create(ctx, book); err != nil {
		return nil, err
	}

	log.Printf("📗 Book %s listed by %s", book.ID, ownerID)
	out := book.ToDomain()
	return &out, nil
}

// Get gets a book by ID
func (s *BookService) Get(ctx context.Context, id string) (*domain.Book, error) {
	book, err := s.store.Books.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "book", id)
	}
	out := book.ToDomain()
	return &out, nil
}

// List lists books matching filter
func (s *BookService) List(ctx context.Context, filter domain.BookFilter, offset, limit int) ([]domain.Book, int64, error) {
	rows, total, err := s.store.Books.List(ctx, filter, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	books := make([]domain.Book, 0, len(rows))
	for _, row := range rows {
		books = append(books, row.ToDomain())
	}
	return books, total, nil
}

// Genres lists the genres in use
func (s *BookService) Genres(ctx context.Context) ([]string, error) {
	return s.store.Books.Genres(ctx)
}

// SetAvailability toggles the owner's manual override between Available and
// Unavailable. A book held by an active request cannot be toggled.
func (s *BookService) SetAvailability(ctx context.Context, actorID, id string, available bool) (*domain.Book, error) {
	from, to := domain.BookAvailable, domain.BookUnavailable
	if available {
		from, to = domain.BookUnavailable, domain.BookAvailable
	}

	var updated *models.Book
	changed := false
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		book, err := tx.Books.GetByID(ctx, id)
		if err != nil {
			return notFound(err, "book", id)
		}
		if book.OwnerID != actorID {
			return fmt.Errorf("%w: only the owner can change availability of book %s", domain.ErrAuthorization, id)
		}
		if domain.BookStatus(book.Status) == to {
			updated = book
			return nil
		}
		if domain.BookStatus(book.Status) != from {
			return fmt.Errorf("%w: book %s is %s", domain.ErrState, id, book.Status)
		}

		ok, err := tx.Books.UpdateStatus(ctx, id, []domain.BookStatus{from}, to)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: book %s changed concurrently", domain.ErrState, id)
		}
		book.Status = string(to)
		updated = book
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		log.Printf("📗 Book %s marked %s by owner", id, to)
		s.notifier.BookStatusChanged(id, to)
	}
	out := updated.ToDomain()
	return &out, nil
}

// Delete removes a listing. Books with an active request are kept.
func (s *BookService) Delete(ctx context.Context, actorID, id string) error {
	return s.store.Transaction(ctx, func(tx *repositories.Store) error {
		book, err := tx.Books.GetByID(ctx, id)
		if err != nil {
			return notFound(err, "book", id)
		}
		if book.OwnerID != actorID {
			return fmt.Errorf("%w: only the owner can delete book %s", domain.ErrAuthorization, id)
		}

		active, err := tx.Requests.ActiveByBook(ctx, id)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("%w: book %s has an active request", domain.ErrState, id)
		}

		return tx.Books.Delete(ctx, id)
	})
}
