package server

import (
	"sophia/internal/models"
	"sophia/internal/repository"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// QueryAudit handles GET /api/auditoria
func (s *Server) QueryAudit(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}

	var filter repository.AuditFilter
	if raw := c.Query("usuario_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid usuario_id"))
		}
		filter.UserID = &id
	}
	if raw := c.Query("canal_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid canal_id"))
		}
		filter.ChannelID = &id
	}
	filter.Action = models.AuditAction(c.Query("acao"))

	p := parsePagination(c, 50)
	entries, err := s.auditService.Query(ctx, actor, filter, p.Page, p.PerPage)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(entries)
}
