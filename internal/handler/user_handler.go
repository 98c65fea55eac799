package handler

import (
	"phantom-mask/internal/service"

	"github.com/gofiber/fiber/v2"
)

type UserHandler struct {
	query service.QueryService
}

func NewUserHandler(q service.QueryService) *UserHandler {
	return &UserHandler{query: q}
}

// GET /users/:id
func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "Invalid user id")
	}
	user, err := h.query.GetUser(c.UserContext(), uint(id))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": user})
}
