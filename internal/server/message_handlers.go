package server

import (
	"sophia/internal/models"
	"sophia/internal/service"

	"github.com/gofiber/fiber/v2"
)

// SendMessage handles POST /api/canais/:id/mensagens
func (s *Server) SendMessage(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}

	var req service.SendMessageInput
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	req.IP = c.IP()

	msg, err := s.messageService.SendMessage(ctx, actor, channelID, req)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// ListMessages handles GET /api/canais/:id/mensagens
func (s *Server) ListMessages(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}

	p := parsePagination(c, 50)
	msgs, err := s.messageService.ListMessages(ctx, actor, channelID, p.Page, p.PerPage)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(msgs)
}

// EditMessage handles PUT /api/canais/:id/mensagens/:messageId
func (s *Server) EditMessage(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}
	messageID, err := s.parseUUID(c, "messageId", "message ID")
	if err != nil {
		return nil
	}

	var req struct {
		Content string `json:"conteudo"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	msg, err := s.messageService.EditMessage(ctx, actor, channelID, messageID, req.Content, c.IP())
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(msg)
}

// DeleteMessage handles DELETE /api/canais/:id/mensagens/:messageId
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}
	messageID, err := s.parseUUID(c, "messageId", "message ID")
	if err != nil {
		return nil
	}

	if err := s.messageService.DeleteMessage(ctx, actor, channelID, messageID, c.IP()); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RecordView handles POST /api/canais/:id/mensagens/:messageId/visualizar
func (s *Server) RecordView(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}
	messageID, err := s.parseUUID(c, "messageId", "message ID")
	if err != nil {
		return nil
	}

	if err := s.messageService.RecordView(ctx, actor, channelID, messageID); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListMessageViews handles GET /api/canais/:id/mensagens/:messageId/visualizacoes
func (s *Server) ListMessageViews(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}
	messageID, err := s.parseUUID(c, "messageId", "message ID")
	if err != nil {
		return nil
	}

	views, err := s.messageService.ListViews(ctx, actor, channelID, messageID)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(views)
}

// AcknowledgeMessage handles POST /api/canais/:id/mensagens/:messageId/confirmar
func (s *Server) AcknowledgeMessage(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}
	messageID, err := s.parseUUID(c, "messageId", "message ID")
	if err != nil {
		return nil
	}

	if err := s.messageService.Acknowledge(ctx, actor, channelID, messageID); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(fiber.Map{"confirmada": true})
}

// MarkChannelRead handles POST /api/canais/:id/ler
func (s *Server) MarkChannelRead(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}

	if err := s.messageService.MarkChannelRead(ctx, actor, channelID); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetUnreadCount handles GET /api/canais/:id/nao-lidas
func (s *Server) GetUnreadCount(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}

	count, err := s.messageService.UnreadCount(ctx, actor, channelID)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(fiber.Map{"nao_lidas": count})
}
