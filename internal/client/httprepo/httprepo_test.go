package httprepo_test

import (
	"context"
	"net"
	"testing"
	"time"

	"bookshare/internal/adapters/http/middleware"
	"bookshare/internal/adapters/http/routes"
	"bookshare/internal/adapters/persistence/repositories"
	"bookshare/internal/adapters/persistence/testdb"
	"bookshare/internal/client/httprepo"
	"bookshare/internal/client/optimistic"
	"bookshare/internal/client/projection"
	"bookshare/internal/client/surface"
	"bookshare/internal/client/syncbus"
	"bookshare/internal/config"
	"bookshare/internal/core/domain"
	"bookshare/internal/core/services"
	"bookshare/internal/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "httprepo-secret"

// startServer runs the full API on a loopback port and seeds one book owned by olga
func startServer(t *testing.T) (baseURL, bookID string) {
	t.Helper()
	db := testdb.Open(t)
	book := testdb.SeedBook(t, db, "olga", "Dune")

	cfg := &config.Config{
		AppMode:   "dev",
		JWT:       config.JWTConfig{Secret: secret, AccessTokenMins: 5},
		RateLimit: config.RateLimitConfig{PerMinute: 600, Burst: 100},
	}
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          middleware.CustomErrorHandler,
	})
	routes.Setup(app, repositories.NewStore(db), cfg, services.NewNotificationService())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "http://" + ln.Addr().String(), book.ID
}

func identity(t *testing.T, userID string) domain.Identity {
	t.Helper()
	token, err := jwt.GenerateAccessToken(userID, userID, secret, 5)
	require.NoError(t, err)
	return domain.Identity{UserID: userID, Token: token}
}

func TestRepositoryMapsServerErrors(t *testing.T) {
	baseURL, bookID := startServer(t)
	repo := httprepo.New(baseURL)
	ctx := context.Background()
	olga, xena, yuri := identity(t, "olga"), identity(t, "xena"), identity(t, "yuri")

	req, err := repo.Create(ctx, xena, bookID, "please")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, req.Status)
	assert.Equal(t, "Dune", req.BookTitle)

	_, err = repo.Create(ctx, yuri, bookID, "")
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = repo.Accept(ctx, xena, req.ID)
	assert.ErrorIs(t, err, domain.ErrAuthorization)

	_, err = repo.Return(ctx, xena, req.ID)
	assert.ErrorIs(t, err, domain.ErrState)

	_, err = repo.Accept(ctx, olga, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.Create(ctx, domain.Identity{UserID: "xena", Token: "forged"}, bookID, "")
	assert.ErrorIs(t, err, domain.ErrAuthorization)

	accepted, err := repo.Accept(ctx, olga, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestAccepted, accepted.Status)

	view, err := repo.RequestsFor(ctx, olga, "olga")
	require.NoError(t, err)
	require.Len(t, view.Received, 1)
	assert.Equal(t, domain.RequestAccepted, view.Received[0].Status)

	page, err := repo.Books(ctx, olga, domain.BookFilter{}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Books, 1)
	assert.Equal(t, domain.BookBorrowed, page.Books[0].Status)
	assert.False(t, page.HasNext)
}

func TestUnreachableServerIsNetworkError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	repo := httprepo.New("http://"+addr, httprepo.WithTimeout(time.Second))
	_, err = repo.Create(context.Background(), domain.Identity{UserID: "x", Token: "t"}, "b1", "")
	assert.ErrorIs(t, err, domain.ErrNetwork)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = repo.Accept(ctx, domain.Identity{UserID: "x"}, "r1")
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestOptimisticClientAgainstServer(t *testing.T) {
	baseURL, bookID := startServer(t)
	repo := httprepo.New(baseURL)
	ctx := context.Background()
	xena, yuri := identity(t, "xena"), identity(t, "yuri")

	type client struct {
		proj    *projection.Projection
		engine  *optimistic.Engine
		listing *surface.Surface
		inbox   *surface.Surface
	}
	open := func(id domain.Identity) client {
		bus := syncbus.New()
		proj := projection.New(repo, bus)
		require.NoError(t, proj.Refresh(ctx, id))
		c := client{
			proj:    proj,
			engine:  optimistic.New(repo, proj),
			listing: surface.New(surface.Listing, id.UserID),
			inbox:   surface.New(surface.Inbox, id.UserID),
		}
		proj.Mount(c.listing)
		proj.Mount(c.inbox)
		return c
	}
	x, y := open(xena), open(yuri)

	req, err := x.engine.Create(ctx, xena, bookID, "")
	require.NoError(t, err)

	b, ok := x.listing.Book(bookID)
	require.True(t, ok)
	assert.Equal(t, domain.BookPending, b.Status)
	require.Len(t, x.inbox.Sent(), 1)
	assert.Equal(t, req.ID, x.inbox.Sent()[0].ID)

	// y still sees Available, loses the race on the server and converges.
	b, _ = y.listing.Book(bookID)
	require.Equal(t, domain.BookAvailable, b.Status)

	_, err = y.engine.Create(ctx, yuri, bookID, "")
	assert.ErrorIs(t, err, domain.ErrConflict)
	b, _ = y.listing.Book(bookID)
	assert.Equal(t, domain.BookPending, b.Status)
	assert.Empty(t, y.inbox.Requests())
}
