package server

import (
	"errors"

	"sophia/internal/authz"
	"sophia/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// Pagination holds the parsed pagina/por_pagina query parameters.
type Pagination struct {
	Page    int
	PerPage int
}

// parsePagination extracts pagina and por_pagina with the given default page
// size. Bounds are enforced again at the service layer.
func parsePagination(c *fiber.Ctx, defaultPerPage int) Pagination {
	page := c.QueryInt("pagina", 1)
	if page <= 0 {
		page = 1
	}
	perPage := c.QueryInt("por_pagina", defaultPerPage)
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	return Pagination{Page: page, PerPage: perPage}
}

// parseUUID extracts a route parameter as a UUID. On failure it writes a 400
// JSON response and returns errResponseWritten; callers should then return nil.
func (s *Server) parseUUID(c *fiber.Ctx, param, label string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+label))
		return uuid.Nil, errResponseWritten
	}
	return id, nil
}

// actor resolves the authenticated caller into an authorization actor. On
// failure it writes the error response and returns errResponseWritten.
func (s *Server) actor(c *fiber.Ctx) (authz.Actor, error) {
	raw, _ := c.Locals("userID").(string)
	userID, err := uuid.Parse(raw)
	if err != nil {
		_ = models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Missing authenticated user"))
		return authz.Actor{}, errResponseWritten
	}

	actor, err := s.directory.ResolveActor(c.UserContext(), userID)
	if err != nil {
		_ = models.RespondAppError(c, err)
		return authz.Actor{}, errResponseWritten
	}
	return actor, nil
}
