package config

import (
	"log"

	"bookshare/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// Seeder handles database seeding
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// Run executes all seeders
func (s *Seeder) Run() error {
	log.Println("🌱 Running database seeders...")

	if err := s.seedSampleBooks(); err != nil {
		log.Printf("⚠️ Book seeder skipped: %v", err)
	}

	log.Println("✅ Database seeding completed")
	return nil
}

// seedSampleBooks lists a few books for two demo users.
// This is for development only.
func (s *Seeder) seedSampleBooks() error {
	var count int64
	if err := s.db.Model(&models.Book{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil // Already seeded
	}

	books := []models.Book{
		{OwnerID: "alice", Title: "The Left Hand of Darkness", Author: "Ursula K. Le Guin", Genre: "Science Fiction"},
		{OwnerID: "alice", Title: "Middlemarch", Author: "George Eliot", Genre: "Classic"},
		{OwnerID: "alice", Title: "Cien años de soledad", Author: "Gabriel García Márquez", Genre: "Classic"},
		{OwnerID: "bob", Title: "The Pragmatic Programmer", Author: "Andrew Hunt", Genre: "Technology"},
		{OwnerID: "bob", Title: "Dune", Author: "Frank Herbert", Genre: "Science Fiction"},
		{OwnerID: "bob", Title: "Der Steppenwolf", Author: "Hermann Hesse", Genre: "Classic"},
	}

	if err := s.db.Create(&books).Error; err != nil {
		return err
	}

	log.Printf("✅ Seeded %d sample books", len(books))
	return nil
}
