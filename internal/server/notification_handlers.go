package server

import (
	"sophia/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ListNotifications handles GET /api/notificacoes
func (s *Server) ListNotifications(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}

	onlyUnread := c.QueryBool("apenas_nao_lidas", false)
	p := parsePagination(c, 50)

	ns, err := s.notificationService.List(ctx, actor, onlyUnread, p.Page, p.PerPage)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(ns)
}

// GetNotificationUnreadCount handles GET /api/notificacoes/nao-lidas
func (s *Server) GetNotificationUnreadCount(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}

	count, err := s.notificationService.UnreadCount(ctx, actor)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(fiber.Map{"nao_lidas": count})
}

// MarkNotificationRead handles POST /api/notificacoes/:id/ler
func (s *Server) MarkNotificationRead(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	notificationID, err := s.parseUUID(c, "id", "notification ID")
	if err != nil {
		return nil
	}

	if err := s.notificationService.MarkRead(ctx, actor, notificationID); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
