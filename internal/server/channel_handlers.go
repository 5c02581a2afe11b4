package server

import (
	"sophia/internal/models"
	"sophia/internal/repository"
	"sophia/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateChannel handles POST /api/canais
func (s *Server) CreateChannel(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}

	var req service.CreateChannelInput
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	req.IP = c.IP()

	channel, created, err := s.channelService.CreateChannel(ctx, actor, req)
	if err != nil {
		return models.RespondAppError(c, err)
	}

	status := fiber.StatusCreated
	if !created {
		// Existing Direct channel returned instead of a duplicate.
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(channel)
}

// ListChannels handles GET /api/canais
func (s *Server) ListChannels(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}

	filter := repository.ChannelFilter{
		Kind:   models.ChannelKind(c.Query("tipo")),
		Status: models.ChannelStatus(c.Query("status")),
	}

	channels, err := s.channelService.ListVisibleChannels(ctx, actor, filter)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(channels)
}

// GetChannel handles GET /api/canais/:id
func (s *Server) GetChannel(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}

	channel, err := s.channelService.GetChannelForUser(ctx, actor, channelID)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(channel)
}

// ArchiveChannel handles POST /api/canais/:id/arquivar
func (s *Server) ArchiveChannel(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}

	if err := s.channelService.ArchiveChannel(ctx, actor, channelID, c.IP()); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(fiber.Map{"status": string(models.ChannelArchived)})
}

// DeleteChannel handles DELETE /api/canais/:id
func (s *Server) DeleteChannel(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}

	if err := s.channelService.DeleteChannel(ctx, actor, channelID, c.IP()); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MuteChannel handles POST /api/canais/:id/silenciar
func (s *Server) MuteChannel(c *fiber.Ctx) error {
	return s.setMuted(c, true)
}

// UnmuteChannel handles DELETE /api/canais/:id/silenciar
func (s *Server) UnmuteChannel(c *fiber.Ctx) error {
	return s.setMuted(c, false)
}

func (s *Server) setMuted(c *fiber.Ctx, muted bool) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}

	if err := s.channelService.SetMuted(ctx, actor, channelID, muted); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(fiber.Map{"silenciado": muted})
}

// PinChannel handles POST /api/canais/:id/fixar
func (s *Server) PinChannel(c *fiber.Ctx) error {
	return s.setPinned(c, true)
}

// UnpinChannel handles DELETE /api/canais/:id/fixar
func (s *Server) UnpinChannel(c *fiber.Ctx) error {
	return s.setPinned(c, false)
}

func (s *Server) setPinned(c *fiber.Ctx, pinned bool) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}

	if err := s.channelService.SetPinned(ctx, actor, channelID, pinned); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(fiber.Map{"fixado": pinned})
}

// AddParticipants handles POST /api/canais/:id/participantes
func (s *Server) AddParticipants(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}

	var req service.AddParticipantsInput
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	req.IP = c.IP()

	added, err := s.membershipService.AddParticipants(ctx, actor, channelID, req)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"adicionados": added})
}

// UpdateParticipant handles PATCH /api/canais/:id/participantes/:userId
func (s *Server) UpdateParticipant(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}
	userID, err := s.parseUUID(c, "userId", "user ID")
	if err != nil {
		return nil
	}

	var req service.ParticipantUpdateInput
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	participant, err := s.membershipService.UpdateParticipant(ctx, actor, channelID, userID, req)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(participant)
}

// RemoveParticipant handles DELETE /api/canais/:id/participantes/:userId
func (s *Server) RemoveParticipant(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor, err := s.actor(c)
	if err != nil {
		return nil
	}
	channelID, err := s.parseUUID(c, "id", "channel ID")
	if err != nil {
		return nil
	}
	userID, err := s.parseUUID(c, "userId", "user ID")
	if err != nil {
		return nil
	}

	if err := s.membershipService.RemoveParticipant(ctx, actor, channelID, userID, c.IP()); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
