package projection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"bookshare/internal/client/memrepo"
	"bookshare/internal/client/surface"
	"bookshare/internal/client/syncbus"
	"bookshare/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = domain.Identity{UserID: "alice", Token: "t-alice"}

func seed(n int) *memrepo.Repo {
	repo := memrepo.New()
	for i := 1; i <= n; i++ {
		owner := "bob"
		if i%2 == 0 {
			owner = "alice"
		}
		repo.PutBook(domain.Book{ID: fmt.Sprintf("b%d", i), OwnerID: owner, Title: fmt.Sprintf("Book %d", i), Status: domain.BookAvailable})
	}
	return repo
}

func TestRefreshPagesThroughEveryBook(t *testing.T) {
	repo := seed(7)
	p := New(repo, syncbus.New(), WithPageSize(3))

	require.NoError(t, p.Refresh(context.Background(), alice))

	assert.Len(t, p.Snapshot().Books, 7)
	assert.Equal(t, 3, repo.Calls("books"))
	assert.Equal(t, 1, repo.Calls("requests"))

	status, ok := p.Status("b7")
	require.True(t, ok)
	assert.Equal(t, domain.BookAvailable, status)
}

func TestRefreshPublishesChangesAndRemovals(t *testing.T) {
	repo := seed(3)
	bus := syncbus.New()
	p := New(repo, bus)
	require.NoError(t, p.Refresh(context.Background(), alice))

	listing := surface.New(surface.Listing, "alice")
	p.Mount(listing)

	_, err := repo.Create(context.Background(), alice, "b1", "")
	require.NoError(t, err)
	repo.PutBook(domain.Book{ID: "b4", OwnerID: "bob", Status: domain.BookUnavailable})

	inbox := surface.New(surface.Inbox, "alice")
	p.Mount(inbox)

	require.NoError(t, p.Refresh(context.Background(), alice))

	b1, _ := listing.Book("b1")
	assert.Equal(t, domain.BookPending, b1.Status)
	b4, ok := listing.Book("b4")
	require.True(t, ok, "new books reach listing surfaces")
	assert.Equal(t, domain.BookUnavailable, b4.Status)
	assert.Len(t, inbox.Sent(), 1)
}

func TestRefreshErrorLeavesStateUntouched(t *testing.T) {
	repo := seed(2)
	p := New(repo, syncbus.New())
	require.NoError(t, p.Refresh(context.Background(), alice))

	repo.Before = func(_ context.Context, op string) error {
		if op == "requests" {
			return errors.New("boom")
		}
		return nil
	}
	repo.PutBook(domain.Book{ID: "b3", OwnerID: "bob", Status: domain.BookAvailable})

	err := p.Refresh(context.Background(), alice)
	require.Error(t, err)
	assert.Len(t, p.Snapshot().Books, 2)
}

func TestApplyRollbackRestoresSnapshot(t *testing.T) {
	repo := seed(1)
	bus := syncbus.New()
	p := New(repo, bus)
	require.NoError(t, p.Refresh(context.Background(), alice))

	search := surface.New(surface.Search, "alice", surface.WithQuery("book"))
	inbox := surface.New(surface.Inbox, "alice")
	p.Mount(search)
	p.Mount(inbox)

	before, _ := p.Book("b1")
	pending := before
	pending.Status = domain.BookPending
	provisional := domain.LendingRequest{ID: "provisional-x", BookID: "b1", RequesterID: "alice", OwnerID: "bob", Status: domain.RequestPending, Provisional: true}

	applied := p.Apply(Patch{Books: []domain.Book{pending}, Requests: []domain.LendingRequest{provisional}})

	got, _ := search.Book("b1")
	assert.Equal(t, domain.BookPending, got.Status)
	assert.Len(t, inbox.Requests(), 1)
	assert.Equal(t, 2, p.Overlays())
	_, confirmed := p.ConfirmedRequest("provisional-x")
	assert.False(t, confirmed)

	p.Rollback(applied)
	p.Rollback(applied)

	got, _ = search.Book("b1")
	assert.Equal(t, before, got)
	assert.Empty(t, inbox.Requests())
	assert.Zero(t, p.Overlays())
}

func TestCommitReplacesProvisionalRequest(t *testing.T) {
	repo := seed(1)
	bus := syncbus.New()
	p := New(repo, bus)
	require.NoError(t, p.Refresh(context.Background(), alice))

	inbox := surface.New(surface.Inbox, "alice")
	p.Mount(inbox)

	book, _ := p.Book("b1")
	book.Status = domain.BookPending
	provisional := domain.LendingRequest{ID: "provisional-y", BookID: "b1", RequesterID: "alice", OwnerID: "bob", Status: domain.RequestPending, Provisional: true}
	applied := p.Apply(Patch{Books: []domain.Book{book}, Requests: []domain.LendingRequest{provisional}})

	real := provisional
	real.ID = "req-1"
	real.Provisional = false
	p.Commit(applied, []domain.Book{book}, []domain.LendingRequest{real})

	reqs := inbox.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "req-1", reqs[0].ID)

	confirmed, ok := p.ConfirmedBook("b1")
	require.True(t, ok)
	assert.Equal(t, domain.BookPending, confirmed.Status)
	assert.Zero(t, p.Overlays())
}

func TestRefreshKeepsOverlaysOnTop(t *testing.T) {
	repo := seed(1)
	bus := syncbus.New()
	p := New(repo, bus)
	require.NoError(t, p.Refresh(context.Background(), alice))

	book, _ := p.Book("b1")
	book.Status = domain.BookPending
	applied := p.Apply(Patch{Books: []domain.Book{book}})

	require.NoError(t, p.Refresh(context.Background(), alice))
	status, _ := p.Status("b1")
	assert.Equal(t, domain.BookPending, status, "in-flight overlay wins over the refreshed baseline")

	p.Rollback(applied)
	status, _ = p.Status("b1")
	assert.Equal(t, domain.BookAvailable, status)
}

func TestOlderRefreshDoesNotOverwriteNewerCommit(t *testing.T) {
	repo := seed(1)
	bus := syncbus.New()
	p := New(repo, bus)
	require.NoError(t, p.Refresh(context.Background(), alice))

	// The refresh reads the server before the commit below lands locally.
	repo.Before = func(_ context.Context, op string) error {
		if op == "requests" {
			book, _ := p.Book("b1")
			book.Status = domain.BookBorrowed
			p.Commit(p.Apply(Patch{Books: []domain.Book{book}}), []domain.Book{book}, nil)
		}
		return nil
	}
	require.NoError(t, p.Refresh(context.Background(), alice))

	status, _ := p.Status("b1")
	assert.Equal(t, domain.BookBorrowed, status)
}

func TestBookStatusHookFiresThroughProjection(t *testing.T) {
	repo := seed(1)
	bus := syncbus.New()
	p := New(repo, bus)

	var seen []domain.BookStatus
	cancel := bus.OnBookStatusChanged(func(_ string, s domain.BookStatus) { seen = append(seen, s) })
	defer cancel()

	require.NoError(t, p.Refresh(context.Background(), alice))
	book, _ := p.Book("b1")
	book.Status = domain.BookPending
	p.Rollback(p.Apply(Patch{Books: []domain.Book{book}}))

	assert.Equal(t, []domain.BookStatus{domain.BookAvailable, domain.BookPending, domain.BookAvailable}, seen)
}

type readingSubscriber struct {
	p    *Projection
	seen []domain.BookStatus
}

func (r *readingSubscriber) Deliver(u syncbus.Update) {
	if u.Book == nil {
		return
	}
	status, _ := r.p.Status(u.Book.ID)
	r.seen = append(r.seen, status)
}

func TestDeliveriesMayReadProjection(t *testing.T) {
	repo := seed(1)
	bus := syncbus.New()
	p := New(repo, bus)

	var hooked []domain.BookStatus
	defer bus.OnBookStatusChanged(func(bookID string, _ domain.BookStatus) {
		status, _ := p.Status(bookID)
		hooked = append(hooked, status)
	})()
	sub := &readingSubscriber{p: p}
	bus.Subscribe(sub, syncbus.BookKey("b1"))

	var err error
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err = p.Refresh(context.Background(), alice); err != nil {
			return
		}
		book, _ := p.Book("b1")
		book.Status = domain.BookPending
		p.Commit(p.Apply(Patch{Books: []domain.Book{book}}), []domain.Book{book}, nil)
		p.Mount(surface.New(surface.Listing, "alice"))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked on a reader of the projection")
	}
	require.NoError(t, err)
	assert.Equal(t, []domain.BookStatus{domain.BookAvailable, domain.BookPending}, hooked)
	assert.Equal(t, []domain.BookStatus{domain.BookAvailable, domain.BookPending, domain.BookPending}, sub.seen)
}

func TestMountAfterApplyConvergesOnCommit(t *testing.T) {
	repo := seed(1)
	p := New(repo, syncbus.New())
	require.NoError(t, p.Refresh(context.Background(), alice))

	book, _ := p.Book("b1")
	book.Status = domain.BookPending
	provisional := domain.LendingRequest{ID: "provisional-z", BookID: "b1", RequesterID: "alice", OwnerID: "bob", Status: domain.RequestPending, Provisional: true}
	applied := p.Apply(Patch{Books: []domain.Book{book}, Requests: []domain.LendingRequest{provisional}})

	listing := surface.New(surface.Listing, "alice")
	inbox := surface.New(surface.Inbox, "alice")
	p.Mount(listing)
	p.Mount(inbox)

	got, _ := listing.Book("b1")
	assert.Equal(t, domain.BookPending, got.Status)
	require.Len(t, inbox.Requests(), 1)

	real := provisional
	real.ID = "req-9"
	real.Provisional = false
	p.Commit(applied, []domain.Book{book}, []domain.LendingRequest{real})

	reqs := inbox.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "req-9", reqs[0].ID)
}

func TestMountDuringPublishesNeverMissesAnUpdate(t *testing.T) {
	repo := seed(1)
	p := New(repo, syncbus.New())
	require.NoError(t, p.Refresh(context.Background(), alice))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		statuses := []domain.BookStatus{domain.BookPending, domain.BookBorrowed, domain.BookAvailable}
		for i := 0; i < 300; i++ {
			book, _ := p.Book("b1")
			book.Status = statuses[i%len(statuses)]
			p.Commit(p.Apply(Patch{Books: []domain.Book{book}}), []domain.Book{book}, nil)
		}
	}()

	surfaces := make([]*surface.Surface, 40)
	for i := range surfaces {
		surfaces[i] = surface.New(surface.Listing, "alice")
		p.Mount(surfaces[i])
	}
	wg.Wait()

	want, _ := p.Book("b1")
	for i, s := range surfaces {
		got, ok := s.Book("b1")
		require.True(t, ok)
		assert.Equal(t, want.Status, got.Status, "surface %d", i)
	}
}
