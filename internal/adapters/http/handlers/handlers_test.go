package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"bookshare/internal/core/domain"
	"bookshare/internal/core/services"
	"bookshare/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLending answers every call with err, or a canned request
type fakeLending struct {
	err     error
	actor   string
	created services.CreateRequestInput
}

func (f *fakeLending) Create(_ context.Context, actorID string, input services.CreateRequestInput) (*domain.LendingRequest, error) {
	f.actor, f.created = actorID, input
	if f.err != nil {
		return nil, f.err
	}
	return &domain.LendingRequest{ID: "r1", BookID: input.BookID, RequesterID: actorID, Status: domain.RequestPending}, nil
}

func (f *fakeLending) Accept(_ context.Context, actorID, requestID string) (*domain.LendingRequest, error) {
	return f.decide(actorID, requestID, domain.RequestAccepted)
}

func (f *fakeLending) Reject(_ context.Context, actorID, requestID string) (*domain.LendingRequest, error) {
	return f.decide(actorID, requestID, domain.RequestRejected)
}

func (f *fakeLending) Return(_ context.Context, actorID, requestID string) (*domain.LendingRequest, error) {
	return f.decide(actorID, requestID, domain.RequestReturned)
}

func (f *fakeLending) decide(actorID, requestID string, to domain.RequestStatus) (*domain.LendingRequest, error) {
	f.actor = actorID
	if f.err != nil {
		return nil, f.err
	}
	return &domain.LendingRequest{ID: requestID, Status: to}, nil
}

func (f *fakeLending) RequestsFor(_ context.Context, actorID, userID string) (*domain.RequestsView, error) {
	f.actor = actorID
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RequestsView{Received: []domain.LendingRequest{}, Sent: []domain.LendingRequest{}}, nil
}

func newRequestApp(svc services.Lending) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", c.Get("X-User"))
		return c.Next()
	})
	h := NewRequestHandler(svc)
	app.Post("/requests", h.Create)
	app.Put("/requests/:id/accept", h.Accept)
	app.Put("/requests/:id/reject", h.Reject)
	app.Put("/requests/:id/return", h.Return)
	app.Get("/requests/user/:userId", h.ForUser)
	return app
}

func call(t *testing.T, app *fiber.App, method, path, body string) (int, response.Response) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-User", "alice")
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	var out response.Response
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestWriteErrorMapsLendingErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: book b1", domain.ErrNotFound), fiber.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("%w: bad", domain.ErrValidation), fiber.StatusBadRequest, "VALIDATION"},
		{fmt.Errorf("%w: taken", domain.ErrConflict), fiber.StatusConflict, "CONFLICT"},
		{fmt.Errorf("%w: not yours", domain.ErrAuthorization), fiber.StatusForbidden, "FORBIDDEN"},
		{fmt.Errorf("%w: already rejected", domain.ErrState), fiber.StatusUnprocessableEntity, "INVALID_STATE"},
		{fmt.Errorf("database is locked"), fiber.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		app := newRequestApp(&fakeLending{err: tt.err})
		status, body := call(t, app, fiber.MethodPut, "/requests/r1/accept", "")
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, body.Code)
		assert.False(t, body.Success)
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	app := newRequestApp(&fakeLending{err: fmt.Errorf("dial tcp 10.0.0.5:3306: refused")})
	_, body := call(t, app, fiber.MethodPut, "/requests/r1/return", "")
	assert.NotContains(t, body.Error, "10.0.0.5")
}

func TestCreateRequestValidatesBody(t *testing.T) {
	svc := &fakeLending{}
	app := newRequestApp(svc)

	status, body := call(t, app, fiber.MethodPost, "/requests", `{"message":"hi"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body.Error, "bookid is required")

	status, _ = call(t, app, fiber.MethodPost, "/requests", `{not json`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = call(t, app, fiber.MethodPost, "/requests", `{"book_id":"b1","message":"hi"}`)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.True(t, body.Success)
	assert.Equal(t, "alice", svc.actor)
	assert.Equal(t, services.CreateRequestInput{BookID: "b1", Message: "hi"}, svc.created)
}

func TestDecideRoutesCarryPathID(t *testing.T) {
	app := newRequestApp(&fakeLending{})
	for path, want := range map[string]domain.RequestStatus{
		"/requests/r9/accept": domain.RequestAccepted,
		"/requests/r9/reject": domain.RequestRejected,
		"/requests/r9/return": domain.RequestReturned,
	} {
		status, body := call(t, app, fiber.MethodPut, path, "")
		require.Equal(t, fiber.StatusOK, status, path)
		data := body.Data.(map[string]interface{})
		assert.Equal(t, "r9", data["id"])
		assert.Equal(t, string(want), data["status"])
	}
}

// fakeBooks records the availability flag it was given
type fakeBooks struct {
	services.Books
	available *bool
}

func (f *fakeBooks) SetAvailability(_ context.Context, actorID, id string, available bool) (*domain.Book, error) {
	f.available = &available
	status := domain.BookUnavailable
	if available {
		status = domain.BookAvailable
	}
	return &domain.Book{ID: id, OwnerID: actorID, Status: status}, nil
}

func TestSetAvailabilityRequiresFlag(t *testing.T) {
	svc := &fakeBooks{}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", "alice")
		return c.Next()
	})
	app.Put("/books/:id/availability", NewBookHandler(svc).SetAvailability)

	status, _ := call(t, app, fiber.MethodPut, "/books/b1/availability", `{}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Nil(t, svc.available)

	status, _ = call(t, app, fiber.MethodPut, "/books/b1/availability", `{"available":false}`)
	assert.Equal(t, fiber.StatusOK, status)
	require.NotNil(t, svc.available)
	assert.False(t, *svc.available)
}
