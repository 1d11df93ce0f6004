package repositories

import (
	"context"

	"bookshare/internal/adapters/persistence/models"
	"bookshare/internal/core/domain"

	"gorm.io/gorm"
)

// bookRepository implements BookRepository interface
type bookRepository struct {
	db *gorm.DB
}

// NewBookRepository creates a new book repository
func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

// Create creates a new book
func (r *bookRepository) Create(ctx context.Context, book *models.Book) error {
	return r.db.WithContext(ctx).Create(book).Error
}

// GetByID gets a book by ID
func (r *bookRepository) GetByID(ctx context.Context, id string) (*models.Book, error) {
	var book models.Book
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&book).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// List lists books matching filter with pagination, newest first
func (r *bookRepository) List(ctx context.Context, filter domain.BookFilter, offset, limit int) ([]*models.Book, int64, error) {
	var books []*models.Book
	var total int64

	query := r.filtered(ctx, filter)
	if err := query.Model(&models.Book{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.filtered(ctx, filter).
		Order("created_at DESC").
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&books).Error
	if err != nil {
		return nil, 0, err
	}

	return books, total, nil
}

func (r *bookRepository) filtered(ctx context.Context, filter domain.BookFilter) *gorm.DB {
	query := r.db.WithContext(ctx)
	if filter.Search != "" {
		query = query.Where("search_key LIKE ?", "%"+models.SearchKey(filter.Search)+"%")
	}
	if filter.Genre != "" {
		query = query.Where("genre = ?", filter.Genre)
	}
	if filter.OwnerID != "" {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}
	return query
}

// ListAll lists every book (reconciliation job)
func (r *bookRepository) ListAll(ctx context.Context) ([]*models.Book, error) {
	var books []*models.Book
	err := r.db.WithContext(ctx).Order("id").Find(&books).Error
	return books, err
}

// Genres lists distinct non-empty genres
func (r *bookRepository) Genres(ctx context.Context) ([]string, error) {
	var genres []string
	err := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("genre <> ''").
		Distinct().
		Order("genre").
		Pluck("genre", &genres).Error
	return genres, err
}

// UpdateStatus conditionally updates a book status
func (r *bookRepository) UpdateStatus(ctx context.Context, id string, from []domain.BookStatus, to domain.BookStatus) (bool, error) {
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}

	res := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ?", id).
		Where("status IN ?", allowed).
		Update("status", string(to))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RepairStatus conditionally updates a book status in one statement that
// also checks the active request
func (r *bookRepository) RepairStatus(ctx context.Context, id string, from, to domain.BookStatus, active *domain.LendingRequest) (bool, error) {
	requests := r.db.Session(&gorm.Session{NewDB: true}).
		Model(&models.LendingRequest{}).
		Select("1")

	query := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ?", id).
		Where("status = ?", string(from))
	if active == nil {
		query = query.Where("NOT EXISTS (?)", requests.Where("book_id = ? AND status IN ?", id, activeStatuses))
	} else {
		query = query.Where("EXISTS (?)", requests.Where("id = ? AND book_id = ? AND status = ?", active.ID, id, string(active.Status)))
	}

	res := query.Update("status", string(to))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Delete soft deletes a book
func (r *bookRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Book{}).Error
}
