package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"go.uber.org/zap"

	"github.com/humanmade/backend/internal/storage/models"
	"github.com/humanmade/backend/internal/users"
	"github.com/humanmade/backend/pkg/logger"
)

// AdminUserKey is the Locals key holding the authenticated admin's id.
const AdminUserKey = "admin_user"

// AdminAuth guards a route group with HTTP basic auth against the user table.
// Only users with the admin role get through.
func AdminAuth(svc *users.Service) fiber.Handler {
	return basicauth.New(basicauth.Config{
		Realm:           "humanmade admin",
		ContextUsername: AdminUserKey,
		Authorizer: func(name, password string) bool {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			u, err := svc.Authenticate(ctx, name, password)
			if err != nil {
				if !errors.Is(err, users.ErrInvalidCredentials) {
					logger.Error("Admin authentication failed", zap.Error(err))
				}
				return false
			}
			if u.Role != models.RoleAdmin {
				logger.Warn("Non-admin user tried an admin route", zap.String("user", name))
				return false
			}
			return true
		},
		Unauthorized: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="humanmade admin"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
				"code":  "unauthorized",
			})
		},
	})
}
