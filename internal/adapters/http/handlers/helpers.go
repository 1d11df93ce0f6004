package handlers

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"bookshare/internal/core/domain"
	"bookshare/internal/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// currentUser returns the authenticated user id set by AuthMiddleware
func currentUser(c *fiber.Ctx) string {
	userID, _ := c.Locals("userID").(string)
	return userID
}

// parseBody decodes and validates a JSON body
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrValidation)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s is %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// writeError maps a lending error onto its HTTP status and wire code
func writeError(c *fiber.Ctx, err error) error {
	msg := err.Error()
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return response.NotFound(c, msg)
	case errors.Is(err, domain.ErrValidation):
		return response.BadRequest(c, msg)
	case errors.Is(err, domain.ErrConflict):
		return response.Conflict(c, msg)
	case errors.Is(err, domain.ErrAuthorization):
		return response.Forbidden(c, msg)
	case errors.Is(err, domain.ErrState):
		return response.UnprocessableEntity(c, msg)
	default:
		log.Printf("❌ %s %s failed: %v", c.Method(), c.Path(), err)
		return response.InternalServerError(c, "Internal server error")
	}
}
