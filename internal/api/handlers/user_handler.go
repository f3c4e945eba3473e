package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/humanmade/backend/internal/users"
	"github.com/humanmade/backend/pkg/apperror"
)

type UserHandler struct {
	users *users.Service
}

func NewUserHandler(users *users.Service) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) Register(c *fiber.Ctx) error {
	var req struct {
		ID       string `json:"id"`
		Password string `json:"password"`
	}

	if err := c.BodyParser(&req); err != nil {
		return respondError(c, apperror.Validation("Invalid request body"))
	}

	u, err := h.users.Register(c.Context(), req.ID, req.Password)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(u)
}
