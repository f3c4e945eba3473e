package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/humanmade/backend/internal/rating"
	"github.com/humanmade/backend/internal/storage/models"
	"github.com/humanmade/backend/internal/users"
	"github.com/humanmade/backend/pkg/apperror"
)

const defaultListLimit = 100

type AdminHandler struct {
	ratings *rating.Service
	users   *users.Service
}

func NewAdminHandler(ratings *rating.Service, users *users.Service) *AdminHandler {
	return &AdminHandler{
		ratings: ratings,
		users:   users,
	}
}

type ratingView struct {
	models.Rating
	SubmittedAt time.Time `json:"submitted_at"`
}

func (h *AdminHandler) ListRatings(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 {
		return respondError(c, apperror.Validation("limit must be positive"))
	}

	rows, err := h.ratings.ListRatings(c.Context(), c.Query("type"), c.Query("target"), uint(limit))
	if err != nil {
		return respondError(c, err)
	}

	views := make([]ratingView, 0, len(rows))
	for _, r := range rows {
		views = append(views, ratingView{Rating: r, SubmittedAt: r.SubmittedAt()})
	}
	return c.JSON(fiber.Map{
		"ratings": views,
	})
}

func (h *AdminHandler) CountRatings(c *fiber.Ctx) error {
	n, err := h.ratings.CountRatings(c.Context(), c.Query("type"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"count": n,
	})
}

func (h *AdminHandler) DeleteRating(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return respondError(c, apperror.Validation("rating id must be a positive integer"))
	}

	if err := h.ratings.DeleteRating(c.Context(), int64(id)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListScores lists every summary of a type without an identity.
func (h *AdminHandler) ListScores(c *fiber.Ctx) error {
	scores, err := h.ratings.ListSummaries(c.Context(), c.Query("type"), "")
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"scores": scores,
	})
}

func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	list, err := h.users.ListUsers(c.Context(), c.Query("role"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"users": list,
	})
}

func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == c.Locals(AdminUserKey) {
		return respondError(c, apperror.Validation("administrators cannot delete themselves"))
	}

	if err := h.users.DeleteUser(c.Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
