package server

import (
	"sophia/internal/models"

	"github.com/gofiber/fiber/v2"
)

// EscalateConversation handles POST /api/canais/:id/assumir
func (s *Server) EscalateConversation(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}

	var req struct {
		Reason string `json:"motivo"`
	}
	// Body is optional; a takeover without a stated reason is valid.
	_ = c.BodyParser(&req)

	ownership, err := s.escalationService.Escalate(ctx, actor, channelID, req.Reason, c.IP())
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(ownership)
}

// ReturnConversation handles POST /api/canais/:id/devolver
func (s *Server) ReturnConversation(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}

	ownership, err := s.escalationService.ReturnOwnership(ctx, actor, channelID, c.IP())
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(ownership)
}

// GetOwnership handles GET /api/canais/:id/responsavel
func (s *Server) GetOwnership(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}

	ownership, err := s.escalationService.GetOwnership(ctx, actor, channelID)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(ownership)
}

// RefreshSLA handles POST /api/sla/verificar
func (s *Server) RefreshSLA(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	if actor.Role != models.RoleSuperuser && actor.Role != models.RoleManager {
		return models.RespondAppError(c,
			models.NewForbiddenError("Only management may run the SLA sweep"))
	}

	breached, err := s.escalationService.RefreshSLA(ctx)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"estouradas": len(breached),
		"registros":  breached,
	})
}
