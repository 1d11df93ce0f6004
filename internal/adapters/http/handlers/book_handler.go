package handlers

import (
	"bookshare/internal/core/domain"
	"bookshare/internal/core/services"
	"bookshare/internal/pkg/pagination"
	"bookshare/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// BookHandler handles book endpoints
type BookHandler struct {
	bookService services.Books
}

// NewBookHandler creates a new book handler
func NewBookHandler(bookService services.Books) *BookHandler {
	return &BookHandler{bookService: bookService}
}

// AvailabilityRequest represents the owner's availability toggle
type AvailabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

// List lists books
// @Summary List books
// @Description List books with optional search, genre and owner filters
// @Tags Books
// @Produce json
// @Param search query string false "Title or author contains"
// @Param genre query string false "Genre"
// @Param owner query string false "Owner user id"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {object} response.Response
// @Router /books [get]
func (h *BookHandler) List(c *fiber.Ctx) error {
	params := pagination.GetParams(c)
	filter := domain.BookFilter{
		Search:  c.Query("search"),
		Genre:   c.Query("genre"),
		OwnerID: c.Query("owner"),
	}

	books, total, err := h.bookService.List(c.UserContext(), filter, params.Offset, params.Limit)
	if err != nil {
		return writeError(c, err)
	}

	return response.Success(c, "Books retrieved", pagination.NewResponse(books, params, total))
}

// Genres lists genres in use
// @Summary List genres
// @Tags Books
// @Produce json
// @Success 200 {object} response.Response
// @Router /books/genres [get]
func (h *BookHandler) Genres(c *fiber.Ctx) error {
	genres, err := h.bookService.Genres(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Genres retrieved", genres)
}

// Get gets one book
// @Summary Get book
// @Tags Books
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /books/{id} [get]
func (h *BookHandler) Get(c *fiber.Ctx) error {
	book, err := h.bookService.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Book retrieved", book)
}

// Create lists a new book
// @Summary Create book
// @Tags Books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.CreateBookInput true "Book data"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /books [post]
func (h *BookHandler) Create(c *fiber.Ctx) error {
	var input services.CreateBookInput
	if err := parseBody(c, &input); err != nil {
		return writeError(c, err)
	}

	book, err := h.bookService.Create(c.UserContext(), currentUser(c), input)
	if err != nil {
		return writeError(c, err)
	}
	return response.Created(c, "Book created successfully", book)
}

// SetAvailability toggles Available/Unavailable
// @Summary Set book availability
// @Tags Books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Param body body AvailabilityRequest true "Availability"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /books/{id}/availability [put]
func (h *BookHandler) SetAvailability(c *fiber.Ctx) error {
	var req AvailabilityRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}

	book, err := h.bookService.SetAvailability(c.UserContext(), currentUser(c), c.Params("id"), *req.Available)
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Availability updated", book)
}

// Delete removes a listing
// @Summary Delete book
// @Tags Books
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /books/{id} [delete]
func (h *BookHandler) Delete(c *fiber.Ctx) error {
	if err := h.bookService.Delete(c.UserContext(), currentUser(c), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Book deleted", nil)
}
