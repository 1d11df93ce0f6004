// Package testdb opens a migrated in-memory SQLite database for tests.
package testdb

import (
	"fmt"
	"strings"
	"testing"

	"bookshare/internal/adapters/persistence/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a fresh database private to t. A single connection keeps
// the shared-cache database alive and serializes writers.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.AutoMigrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// SeedBook inserts an Available book owned by ownerID
func SeedBook(t testing.TB, db *gorm.DB, ownerID, title string) *models.Book {
	t.Helper()
	book := &models.Book{OwnerID: ownerID, Title: title, Author: "Anon", Genre: "Fiction"}
	require.NoError(t, db.Create(book).Error)
	return book
}
