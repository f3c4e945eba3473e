package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/humanmade/backend/internal/rating"
	"github.com/humanmade/backend/pkg/apperror"
	"github.com/humanmade/backend/pkg/logger"
)

type RatingHandler struct {
	ratings *rating.Service
}

func NewRatingHandler(ratings *rating.Service) *RatingHandler {
	return &RatingHandler{
		ratings: ratings,
	}
}

// axesRequest also accepts the ai_* keys older extension builds send.
type axesRequest struct {
	Audio    *int `json:"audio"`
	Visual   *int `json:"visual"`
	Text     *int `json:"text"`
	AIAudio  *int `json:"ai_audio"`
	AIVisual *int `json:"ai_visual"`
	AIText   *int `json:"ai_text"`
}

func (a axesRequest) axes() rating.Axes {
	return rating.Axes{
		Audio:  firstSet(a.Audio, a.AIAudio),
		Visual: firstSet(a.Visual, a.AIVisual),
		Text:   firstSet(a.Text, a.AIText),
	}
}

func firstSet(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func (h *RatingHandler) SubmitRating(c *fiber.Ctx) error {
	var req struct {
		Type   string      `json:"type"`
		Target string      `json:"target"`
		Author string      `json:"author"`
		Rating axesRequest `json:"rating"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Debug("Failed to parse rating body", zap.Error(err))
		return respondError(c, apperror.Validation("Invalid request body"))
	}

	id, err := h.ratings.Submit(c.Context(), c.IP(), rating.Submission{
		Type:   req.Type,
		Target: req.Target,
		Author: req.Author,
		Rating: req.Rating.axes(),
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"id":      id,
	})
}

// GetScore returns one summary when target is given, else every summary of type.
func (h *RatingHandler) GetScore(c *fiber.Ctx) error {
	typ := c.Query("type")
	target := c.Query("target")
	identity := c.Query("identity")

	if target != "" {
		summary, err := h.ratings.Summary(c.Context(), typ, target, identity)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(summary)
	}

	summaries, err := h.ratings.ListSummaries(c.Context(), typ, identity)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"scores": summaries,
	})
}
