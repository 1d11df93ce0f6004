package models

import (
	"strings"
	"time"

	"bookshare/internal/core/domain"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
)

// ============================================================
// Books
// ============================================================

// Book represents books table
type Book struct {
	ID          string         `gorm:"type:char(36);primaryKey" json:"id"`
	OwnerID     string         `gorm:"size:64;index;not null" json:"owner_id"`
	Title       string         `gorm:"size:200;not null" json:"title"`
	Author      string         `gorm:"size:200" json:"author"`
	Genre       string         `gorm:"size:80;index" json:"genre"`
	Description string         `gorm:"type:text" json:"description"`
	ImageURL    string         `gorm:"size:500" json:"image_url"`
	Status      string         `gorm:"size:20;not null;default:'Available';index" json:"status"`
	SearchKey   string         `gorm:"size:600;index" json:"-"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Book) TableName() string {
	return "books"
}

// BeforeCreate assigns the id, default status and folded search key
func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = string(domain.BookAvailable)
	}
	b.SearchKey = SearchKey(b.Title + " " + b.Author)
	return nil
}

// ToDomain converts the row to a domain book
func (b *Book) ToDomain() domain.Book {
	return domain.Book{
		ID:          b.ID,
		OwnerID:     b.OwnerID,
		Title:       b.Title,
		Author:      b.Author,
		Genre:       b.Genre,
		Description: b.Description,
		ImageURL:    b.ImageURL,
		Status:      domain.BookStatus(b.Status),
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

// SearchKey normalizes free text for case-insensitive matching
func SearchKey(s string) string {
	// Casers carry state, one per call.
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// ============================================================
// Lending requests (never deleted, terminal rows are history)
// ============================================================

// LendingRequest represents lending_requests table
type LendingRequest struct {
	ID          string     `gorm:"type:char(36);primaryKey" json:"id"`
	BookID      string     `gorm:"type:char(36);index;not null" json:"book_id"`
	RequesterID string     `gorm:"size:64;index;not null" json:"requester_id"`
	OwnerID     string     `gorm:"size:64;index;not null" json:"owner_id"`
	Status      string     `gorm:"size:20;not null;index" json:"status"`
	Message     string     `gorm:"size:500" json:"message"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DecidedAt   *time.Time `json:"decided_at"`
	ReturnedAt  *time.Time `json:"returned_at"`
	Book        *Book      `gorm:"foreignKey:BookID" json:"-"`
}

func (LendingRequest) TableName() string {
	return "lending_requests"
}

// BeforeCreate assigns the id
func (r *LendingRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// ToDomain converts the row to a domain request
func (r *LendingRequest) ToDomain() domain.LendingRequest {
	req := domain.LendingRequest{
		ID:          r.ID,
		BookID:      r.BookID,
		RequesterID: r.RequesterID,
		OwnerID:     r.OwnerID,
		Status:      domain.RequestStatus(r.Status),
		Message:     r.Message,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		DecidedAt:   r.DecidedAt,
		ReturnedAt:  r.ReturnedAt,
	}
	if r.Book != nil {
		req.BookTitle = r.Book.Title
	}
	return req
}

// LendingRequestFromDomain builds a row from a predicted domain request
func LendingRequestFromDomain(req domain.LendingRequest) *LendingRequest {
	return &LendingRequest{
		ID:          req.ID,
		BookID:      req.BookID,
		RequesterID: req.RequesterID,
		OwnerID:     req.OwnerID,
		Status:      string(req.Status),
		Message:     req.Message,
		CreatedAt:   req.CreatedAt,
		UpdatedAt:   req.UpdatedAt,
		DecidedAt:   req.DecidedAt,
		ReturnedAt:  req.ReturnedAt,
	}
}

// AutoMigrate creates or updates the lending tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Book{},
		&LendingRequest{},
	)
}
