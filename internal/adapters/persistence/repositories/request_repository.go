package repositories

import (
	"context"
	"errors"
	"time"

	"bookshare/internal/adapters/persistence/models"
	"bookshare/internal/core/domain"

	"gorm.io/gorm"
)

var activeStatuses = []string{string(domain.RequestPending), string(domain.RequestAccepted)}

// requestRepository implements RequestRepository interface
type requestRepository struct {
	db *gorm.DB
}

// NewRequestRepository creates a new lending request repository
func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

// withBook preloads the book title, including soft deleted books
func withBook(db *gorm.DB) *gorm.DB {
	return db.Preload("Book", func(tx *gorm.DB) *gorm.DB {
		return tx.Unscoped()
	})
}

// Create creates a new request
func (r *requestRepository) Create(ctx context.Context, req *models.LendingRequest) error {
	return r.db.WithContext(ctx).Omit("Book").Create(req).Error
}

// GetByID gets a request by ID
func (r *requestRepository) GetByID(ctx context.Context, id string) (*models.LendingRequest, error) {
	var req models.LendingRequest
	err := withBook(r.db.WithContext(ctx)).Where("id = ?", id).First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ListByOwner lists requests received by an owner, newest first
func (r *requestRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.LendingRequest, error) {
	var reqs []*models.LendingRequest
	err := withBook(r.db.WithContext(ctx)).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&reqs).Error
	return reqs, err
}

// ListByRequester lists requests sent by a requester, newest first
func (r *requestRepository) ListByRequester(ctx context.Context, requesterID string) ([]*models.LendingRequest, error) {
	var reqs []*models.LendingRequest
	err := withBook(r.db.WithContext(ctx)).
		Where("requester_id = ?", requesterID).
		Order("created_at DESC").
		Find(&reqs).Error
	return reqs, err
}

// ListActive lists every Pending or Accepted request
func (r *requestRepository) ListActive(ctx context.Context) ([]*models.LendingRequest, error) {
	var reqs []*models.LendingRequest
	err := r.db.WithContext(ctx).
		Where("status IN ?", activeStatuses).
		Order("created_at").
		Find(&reqs).Error
	return reqs, err
}

// ActiveByBook gets the active request of a book. Should a book ever hold
// more than one, an Accepted loan outranks a Pending request.
func (r *requestRepository) ActiveByBook(ctx context.Context, bookID string) (*models.LendingRequest, error) {
	var req models.LendingRequest
	err := r.db.WithContext(ctx).
		Where("book_id = ?", bookID).
		Where("status IN ?", activeStatuses).
		Order("CASE WHEN status = 'Accepted' THEN 0 ELSE 1 END").
		Order("created_at").
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateStatus conditionally moves a request between statuses
func (r *requestRepository) UpdateStatus(ctx context.Context, id string, from, to domain.RequestStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": at,
	}
	switch to {
	case domain.RequestAccepted, domain.RequestRejected:
		updates["decided_at"] = at
	case domain.RequestReturned:
		updates["returned_at"] = at
	}

	res := r.db.WithContext(ctx).
		Model(&models.LendingRequest{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
