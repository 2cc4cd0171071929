package server

import (
	"reciapp/internal/models"
	"reciapp/internal/service"

	"github.com/gofiber/fiber/v2"
)

// createRequestBody is the JSON payload for submitting a pickup request.
type createRequestBody struct {
	Materials []struct {
		MaterialType string  `json:"material_type"`
		QuantityKg   float64 `json:"quantity_kg"`
	} `json:"materials"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// CreateRequest handles the submission of a new pickup request.
func (s *Server) CreateRequest(c *fiber.Ctx) error {
	userID, role := identity(c)
	if role != models.RoleRequester {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewUnauthorizedError("Only requesters can submit requests"))
	}

	var body createRequestBody
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	in := service.CreateRequestInput{
		RequesterID: userID,
		Latitude:    body.Latitude,
		Longitude:   body.Longitude,
	}
	for _, m := range body.Materials {
		in.Materials = append(in.Materials, service.MaterialInput{
			MaterialType: models.MaterialType(m.MaterialType),
			QuantityKg:   m.QuantityKg,
		})
	}

	req, err := s.lifecycle.Create(c.UserContext(), in)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// GetRequest returns one request by id.
func (s *Server) GetRequest(c *fiber.Ctx) error {
	id, err := s.parseRequestID(c)
	if err != nil {
		return nil
	}

	req, err := s.lifecycle.GetRequest(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(req)
}

// GetSnapshot returns the pull-based resync payload for the caller's
// role: collectors get the pending list (optionally filtered with
// ?material=) plus their claimed request; requesters get their active
// request.
func (s *Server) GetSnapshot(c *fiber.Ctx) error {
	userID, role := identity(c)

	switch role {
	case models.RoleCollector:
		var material *models.MaterialType
		if q := c.Query("material"); q != "" {
			m := models.MaterialType(q)
			material = &m
		}
		snap, err := s.lifecycle.SnapshotForCollector(c.UserContext(), userID, material)
		if err != nil {
			return respondServiceError(c, err)
		}
		return c.JSON(snap)

	case models.RoleRequester:
		snap, err := s.lifecycle.SnapshotForRequester(c.UserContext(), userID)
		if err != nil {
			return respondServiceError(c, err)
		}
		return c.JSON(snap)
	}

	return models.RespondWithError(c, fiber.StatusForbidden,
		models.NewUnauthorizedError("Unknown role"))
}

// ClaimRequest handles a collector's atomic claim attempt.
func (s *Server) ClaimRequest(c *fiber.Ctx) error {
	userID, role := identity(c)
	if role != models.RoleCollector {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewUnauthorizedError("Only collectors can claim requests"))
	}

	id, err := s.parseRequestID(c)
	if err != nil {
		return nil
	}

	req, err := s.lifecycle.Claim(c.UserContext(), id, userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(req)
}

// CancelRequest handles a requester cancelling their request.
func (s *Server) CancelRequest(c *fiber.Ctx) error {
	userID, _ := identity(c)

	id, err := s.parseRequestID(c)
	if err != nil {
		return nil
	}

	req, err := s.lifecycle.Cancel(c.UserContext(), id, userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(req)
}

// completeRequestBody optionally carries the measured final quantity.
type completeRequestBody struct {
	CompletedKg *float64 `json:"completed_kg"`
}

// CompleteRequest handles either party finishing a claimed pickup.
func (s *Server) CompleteRequest(c *fiber.Ctx) error {
	userID, _ := identity(c)

	id, err := s.parseRequestID(c)
	if err != nil {
		return nil
	}

	var body completeRequestBody
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
	}

	req, err := s.lifecycle.Complete(c.UserContext(), id, userID, body.CompletedKg)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(req)
}

// GetMyStats reports the caller's completed pickup total in kilograms.
func (s *Server) GetMyStats(c *fiber.Ctx) error {
	userID, role := identity(c)
	if role != models.RoleCollector {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewUnauthorizedError("Only collectors have pickup stats"))
	}

	total, err := s.lifecycle.CollectorStats(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"collector_id": userID,
		"completed_kg": total,
	})
}
