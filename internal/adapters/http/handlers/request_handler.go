package handlers

import (
	"context"

	"bookshare/internal/core/domain"
	"bookshare/internal/core/services"
	"bookshare/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// RequestHandler handles lending request endpoints
type RequestHandler struct {
	lendingService services.Lending
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(lendingService services.Lending) *RequestHandler {
	return &RequestHandler{lendingService: lendingService}
}

// Create opens a lending request
// @Summary Create lending request
// @Description Request an Available book; the book becomes Pending
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.CreateRequestInput true "Request data"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /requests [post]
func (h *RequestHandler) Create(c *fiber.Ctx) error {
	var input services.CreateRequestInput
	if err := parseBody(c, &input); err != nil {
		return writeError(c, err)
	}

	req, err := h.lendingService.Create(c.UserContext(), currentUser(c), input)
	if err != nil {
		return writeError(c, err)
	}
	return response.Created(c, "Request created successfully", req)
}

// Accept accepts a pending request
// @Summary Accept lending request
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /requests/{id}/accept [put]
func (h *RequestHandler) Accept(c *fiber.Ctx) error {
	return h.decide(c, "Request accepted", h.lendingService.Accept)
}

// Reject rejects a pending request
// @Summary Reject lending request
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /requests/{id}/reject [put]
func (h *RequestHandler) Reject(c *fiber.Ctx) error {
	return h.decide(c, "Request rejected", h.lendingService.Reject)
}

// Return marks an accepted request returned
// @Summary Return borrowed book
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /requests/{id}/return [put]
func (h *RequestHandler) Return(c *fiber.Ctx) error {
	return h.decide(c, "Book returned", h.lendingService.Return)
}

type decideFunc func(ctx context.Context, actorID, requestID string) (*domain.LendingRequest, error)

func (h *RequestHandler) decide(c *fiber.Ctx, message string, fn decideFunc) error {
	req, err := fn(c.UserContext(), currentUser(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, message, req)
}

// ForUser lists received and sent requests
// @Summary List requests for user
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /requests/user/{userId} [get]
func (h *RequestHandler) ForUser(c *fiber.Ctx) error {
	view, err := h.lendingService.RequestsFor(c.UserContext(), currentUser(c), c.Params("userId"))
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Requests retrieved", view)
}
