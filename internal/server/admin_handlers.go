package server

import (
	"github.com/gofiber/fiber/v2"

	"firma/internal/models"
)

// ListRequests handles GET /api/admin/requests
func (s *Server) ListRequests(c *fiber.Ctx) error {
	summaries, err := s.workflow.List(c.UserContext())
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(fiber.Map{
		"requests": summaries,
		"count":    len(summaries),
	})
}

// DeleteRequestAdmin handles DELETE /api/admin/requests/:id
func (s *Server) DeleteRequestAdmin(c *fiber.Ctx) error {
	id, err := requestIDParam(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	if err := s.workflow.DeleteAdmin(c.UserContext(), id); err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	return c.JSON(fiber.Map{"message": "Request deleted"})
}
