package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/humanmade/backend/internal/metrics"
	"github.com/humanmade/backend/internal/middleware/ratelimit"
	"github.com/humanmade/backend/internal/middleware/validation"
	"github.com/humanmade/backend/internal/rating"
	"github.com/humanmade/backend/internal/users"
	"github.com/humanmade/backend/pkg/logger"
)

type Routes struct {
	Ratings        *rating.Service
	Users          *users.Service
	Store          Pinger
	SubmitLimiter  *ratelimit.RateLimiter
	ReadLimiter    *ratelimit.RateLimiter
	MaxFieldLength int
}

// Register mounts every route under /api/v1.
func Register(app *fiber.App, r Routes) {
	ratingHandler := NewRatingHandler(r.Ratings)
	userHandler := NewUserHandler(r.Users)
	adminHandler := NewAdminHandler(r.Ratings, r.Users)
	healthHandler := NewHealthHandler(r.Store)

	api := app.Group("/api/v1")

	validationLogger := logger.Named("validation")

	// The submit limiter counts every POST, including bodies validation rejects.
	rate := []fiber.Handler{}
	if r.SubmitLimiter != nil {
		rate = append(rate, r.SubmitLimiter.Middleware())
	}
	rate = append(rate, validation.Middleware(validation.Config{
		StringFields:   []string{"type", "target", "author"},
		MaxFieldLength: r.MaxFieldLength,
		Logger:         validationLogger,
	}), ratingHandler.SubmitRating)
	api.Post("/rate", rate...)

	score := []fiber.Handler{}
	if r.ReadLimiter != nil {
		score = append(score, r.ReadLimiter.Middleware())
	}
	score = append(score, ratingHandler.GetScore)
	api.Get("/score", score...)

	api.Post("/users/register", validation.Middleware(validation.Config{
		StringFields:   []string{"id"},
		MaxFieldLength: users.MaxIDLength,
		Logger:         validationLogger,
	}), userHandler.Register)

	admin := api.Group("/admin", AdminAuth(r.Users))
	admin.Get("/ratings", adminHandler.ListRatings)
	admin.Get("/ratings/count", adminHandler.CountRatings)
	admin.Delete("/ratings/:id", adminHandler.DeleteRating)
	admin.Get("/scores", adminHandler.ListScores)
	admin.Get("/users", adminHandler.ListUsers)
	admin.Delete("/users/:id", adminHandler.DeleteUser)

	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)
	api.Get("/metrics", metrics.MetricsHandler())
}
