package server

import (
	"errors"

	"reciapp/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// identity returns the authenticated user id and role placed in locals by
// AuthRequired.
func identity(c *fiber.Ctx) (uint, models.Role) {
	userID, _ := c.Locals("userID").(uint)
	role, _ := c.Locals("role").(models.Role)
	return userID, role
}

// parseRequestID extracts the :id route parameter as a UUID string.
// On failure it writes a 400 JSON response and returns errResponseWritten.
func (s *Server) parseRequestID(c *fiber.Ctx) (string, error) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request ID"))
		return "", errResponseWritten
	}
	return id, nil
}

// respondServiceError maps a lifecycle error onto its HTTP status.
func respondServiceError(c *fiber.Ctx, err error) error {
	return models.RespondWithError(c, models.StatusForError(err), err)
}
