package server

import (
	"errors"

	"reciapp/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// GetMe resolves the authenticated subject to its stored identity. Clients
// use it to display the username behind the opaque credential.
func (s *Server) GetMe(c *fiber.Ctx) error {
	userID, _ := identity(c)

	user, err := s.userRepo.GetByID(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RespondWithError(c, fiber.StatusNotFound,
				models.NewNotFoundError("User", userID))
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}
	return c.JSON(user)
}
