package repositories_test

import (
	"context"
	"testing"
	"time"

	"bookshare/internal/adapters/persistence/models"
	"bookshare/internal/adapters/persistence/repositories"
	"bookshare/internal/adapters/persistence/testdb"
	"bookshare/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookListFilters(t *testing.T) {
	db := testdb.Open(t)
	store := repositories.NewStore(db)
	ctx := context.Background()

	for _, b := range []*models.Book{
		{OwnerID: "alice", Title: "Die Straße", Author: "Ann", Genre: "Classic"},
		{OwnerID: "alice", Title: "Dune", Author: "Frank Herbert", Genre: "Science Fiction"},
		{OwnerID: "bob", Title: "Emma", Author: "Jane Austen", Genre: "Classic"},
	} {
		require.NoError(t, store.Books.Create(ctx, b))
		assert.Equal(t, string(domain.BookAvailable), b.Status)
		assert.Len(t, b.ID, 36)
	}

	books, total, err := store.Books.List(ctx, domain.BookFilter{Search: "STRASSE"}, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, books, 1)
	assert.Equal(t, "Die Straße", books[0].Title)

	_, total, err = store.Books.List(ctx, domain.BookFilter{Genre: "Classic"}, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	books, total, err = store.Books.List(ctx, domain.BookFilter{OwnerID: "alice"}, 0, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, books, 1)

	genres, err := store.Books.Genres(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Classic", "Science Fiction"}, genres)
}

func TestBookConditionalStatusUpdate(t *testing.T) {
	db := testdb.Open(t)
	store := repositories.NewStore(db)
	ctx := context.Background()
	book := testdb.SeedBook(t, db, "alice", "Dune")

	ok, err := store.Books.UpdateStatus(ctx, book.ID, []domain.BookStatus{domain.BookAvailable}, domain.BookPending)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Books.UpdateStatus(ctx, book.ID, []domain.BookStatus{domain.BookAvailable}, domain.BookPending)
	require.NoError(t, err)
	assert.False(t, ok, "second writer loses")

	got, err := store.Books.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.BookPending), got.Status)
}

func TestBookRepairStatusGuardsActiveRequest(t *testing.T) {
	db := testdb.Open(t)
	store := repositories.NewStore(db)
	ctx := context.Background()
	book := testdb.SeedBook(t, db, "alice", "Dune")

	req := &models.LendingRequest{BookID: book.ID, RequesterID: "bob", OwnerID: "alice", Status: string(domain.RequestPending)}
	require.NoError(t, store.Requests.Create(ctx, req))
	seen := req.ToDomain()

	// A request is active, so "no active request" no longer holds.
	ok, err := store.Books.RepairStatus(ctx, book.ID, domain.BookAvailable, domain.BookAvailable, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	// The request read earlier has since been rejected.
	ok, err = store.Requests.UpdateStatus(ctx, req.ID, domain.RequestPending, domain.RequestRejected, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.Books.RepairStatus(ctx, book.ID, domain.BookAvailable, domain.BookPending, &seen)
	require.NoError(t, err)
	assert.False(t, ok, "stale active request must not drive the write")

	got, err := store.Books.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.BookAvailable), got.Status)

	// With nothing active the repair back to Available goes through.
	require.NoError(t, db.Model(&models.Book{}).Where("id = ?", book.ID).Update("status", string(domain.BookPending)).Error)
	ok, err = store.Books.RepairStatus(ctx, book.ID, domain.BookPending, domain.BookAvailable, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBookRepairStatusFollowsLiveRequest(t *testing.T) {
	db := testdb.Open(t)
	store := repositories.NewStore(db)
	ctx := context.Background()
	book := testdb.SeedBook(t, db, "alice", "Dune")

	req := &models.LendingRequest{BookID: book.ID, RequesterID: "bob", OwnerID: "alice", Status: string(domain.RequestAccepted)}
	require.NoError(t, store.Requests.Create(ctx, req))
	active := req.ToDomain()

	ok, err := store.Books.RepairStatus(ctx, book.ID, domain.BookPending, domain.BookBorrowed, &active)
	require.NoError(t, err)
	assert.False(t, ok, "book status moved since it was read")

	ok, err = store.Books.RepairStatus(ctx, book.ID, domain.BookAvailable, domain.BookBorrowed, &active)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Books.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.BookBorrowed), got.Status)
}

func TestBookSoftDelete(t *testing.T) {
	db := testdb.Open(t)
	store := repositories.NewStore(db)
	ctx := context.Background()
	book := testdb.SeedBook(t, db, "alice", "Dune")

	require.NoError(t, store.Books.Delete(ctx, book.ID))
	_, err := store.Books.GetByID(ctx, book.ID)
	assert.Error(t, err)

	all, err := store.Books.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRequestLifecycleQueries(t *testing.T) {
	db := testdb.Open(t)
	store := repositories.NewStore(db)
	ctx := context.Background()
	book := testdb.SeedBook(t, db, "alice", "Dune")

	req := &models.LendingRequest{BookID: book.ID, RequesterID: "bob", OwnerID: "alice", Status: string(domain.RequestPending)}
	require.NoError(t, store.Requests.Create(ctx, req))
	require.NotEmpty(t, req.ID)

	active, err := store.Requests.ActiveByBook(ctx, book.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, req.ID, active.ID)

	got, err := store.Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.ToDomain().BookTitle)

	now := time.Now()
	ok, err := store.Requests.UpdateStatus(ctx, req.ID, domain.RequestPending, domain.RequestAccepted, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Requests.UpdateStatus(ctx, req.ID, domain.RequestPending, domain.RequestRejected, now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = store.Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.RequestAccepted), got.Status)
	assert.NotNil(t, got.DecidedAt)
	assert.Nil(t, got.ReturnedAt)

	ok, err = store.Requests.UpdateStatus(ctx, req.ID, domain.RequestAccepted, domain.RequestReturned, now)
	require.NoError(t, err)
	assert.True(t, ok)

	active, err = store.Requests.ActiveByBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	received, err := store.Requests.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, received, 1)
	sent, err := store.Requests.ListByRequester(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, sent, 1)
	all, err := store.Requests.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTransactionRollsBack(t *testing.T) {
	db := testdb.Open(t)
	store := repositories.NewStore(db)
	ctx := context.Background()
	book := testdb.SeedBook(t, db, "alice", "Dune")

	err := store.Transaction(ctx, func(tx *repositories.Store) error {
		ok, err := tx.Books.UpdateStatus(ctx, book.ID, []domain.BookStatus{domain.BookAvailable}, domain.BookPending)
		require.NoError(t, err)
		require.True(t, ok)
		return domain.ErrConflict
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := store.Books.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.BookAvailable), got.Status)
}
