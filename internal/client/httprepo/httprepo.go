// Package httprepo implements the client request repository over the
// lending HTTP API.
package httprepo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bookshare/internal/client"
	"bookshare/internal/core/domain"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultTimeout is used when the context carries no deadline
const DefaultTimeout = 10 * time.Second

// Repository talks to /api/v1 of the lending server
type Repository struct {
	baseURL string
	client  *fiber.Client
	timeout time.Duration
}

var _ client.Repository = (*Repository)(nil)

// Option configures a repository
type Option func(*Repository)

// WithTimeout sets the per-call timeout used without a context deadline
func WithTimeout(d time.Duration) Option {
	return func(r *Repository) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New creates a repository for the server at baseURL (e.g. http://localhost:3000)
func New(baseURL string, opts ...Option) *Repository {
	r := &Repository{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		client: &fiber.Client{
			UserAgent:   "lendctl/1.0",
			JSONEncoder: json.Marshal,
			JSONDecoder: json.Unmarshal,
		},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// envelope mirrors the server's response.Response
type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    jsoniter.RawMessage `json:"data"`
	Error   string              `json:"error"`
	Code    string              `json:"code"`
}

type bookList struct {
	Data []domain.Book `json:"data"`
	Meta struct {
		HasNext bool `json:"has_next"`
	} `json:"meta"`
}

type createBody struct {
	BookID  string `json:"book_id"`
	Message string `json:"message,omitempty"`
}

// Create opens a lending request
func (r *Repository) Create(ctx context.Context, id domain.Identity, bookID, message string) (*domain.LendingRequest, error) {
	if bookID == "" {
		return nil, fmt.Errorf("%w: book id is required", domain.ErrValidation)
	}
	var out domain.LendingRequest
	if err := r.do(ctx, fiber.MethodPost, "/requests", nil, id, createBody{BookID: bookID, Message: message}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Accept accepts a pending request
func (r *Repository) Accept(ctx context.Context, id domain.Identity, requestID string) (*domain.LendingRequest, error) {
	return r.decide(ctx, id, requestID, "accept")
}

// Reject rejects a pending request
func (r *Repository) Reject(ctx context.Context, id domain.Identity, requestID string) (*domain.LendingRequest, error) {
	return r.decide(ctx, id, requestID, "reject")
}

// Return returns an accepted request
func (r *Repository) Return(ctx context.Context, id domain.Identity, requestID string) (*domain.LendingRequest, error) {
	return r.decide(ctx, id, requestID, "return")
}

func (r *Repository) decide(ctx context.Context, id domain.Identity, requestID, verb string) (*domain.LendingRequest, error) {
	if requestID == "" {
		return nil, fmt.Errorf("%w: request id is required", domain.ErrValidation)
	}
	var out domain.LendingRequest
	path := "/requests/" + url.PathEscape(requestID) + "/" + verb
	if err := r.do(ctx, fiber.MethodPut, path, nil, id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestsFor lists requests userID received and sent
func (r *Repository) RequestsFor(ctx context.Context, id domain.Identity, userID string) (*domain.RequestsView, error) {
	var out domain.RequestsView
	if err := r.do(ctx, fiber.MethodGet, "/requests/user/"+url.PathEscape(userID), nil, id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Books fetches one page of books
func (r *Repository) Books(ctx context.Context, id domain.Identity, filter domain.BookFilter, page, limit int) (*client.BookPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	if filter.Genre != "" {
		q.Set("genre", filter.Genre)
	}
	if filter.OwnerID != "" {
		q.Set("owner", filter.OwnerID)
	}

	var out bookList
	if err := r.do(ctx, fiber.MethodGet, "/books", q, id, nil, &out); err != nil {
		return nil, err
	}
	return &client.BookPage{Books: out.Data, HasNext: out.Meta.HasNext}, nil
}

// do performs one call and maps the envelope back onto the lending errors.
// Transport failures, timeouts and 5xx/429 answers become ErrNetwork.
func (r *Repository) do(ctx context.Context, method, path string, query url.Values, id domain.Identity, body, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}

	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return fmt.Errorf("%w: %v", domain.ErrNetwork, context.DeadlineExceeded)
		}
	}

	target := r.baseURL + path
	var agent *fiber.Agent
	switch method {
	case fiber.MethodPost:
		agent = r.client.Post(target)
	case fiber.MethodPut:
		agent = r.client.Put(target)
	default:
		agent = r.client.Get(target)
	}
	if len(query) > 0 {
		agent.QueryString(query.Encode())
	}
	if id.Token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+id.Token)
	}
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if body != nil {
		agent.JSON(body)
	}
	agent.Timeout(timeout)

	status, raw, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrNetwork, method, path, errs[0])
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %s %s: status %d: undecodable body", domain.ErrNetwork, method, path, status)
	}

	switch {
	case status >= fiber.StatusInternalServerError, status == fiber.StatusTooManyRequests:
		return fmt.Errorf("%w: %s %s: status %d: %s", domain.ErrNetwork, method, path, status, env.Error)
	case status == fiber.StatusUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrAuthorization, env.Error)
	case !env.Success || status >= fiber.StatusBadRequest:
		return domain.FromCode(domain.Code(env.Code), env.Error)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %s %s: decode data: %v", domain.ErrNetwork, method, path, err)
	}
	return nil
}
