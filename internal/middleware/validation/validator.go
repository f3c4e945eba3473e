package validation

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/humanmade/backend/pkg/apperror"
)

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

type Config struct {
	// StringFields are top-level fields that, when present, must be strings
	// no longer than MaxFieldLength.
	StringFields        []string
	MaxFieldLength      int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects write requests whose body is not a JSON object or whose
// string fields are oversized or carry markup. Handlers parse the body again
// into their own request types.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxFieldLength == 0 {
		cfg.MaxFieldLength = 30
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		allowed := false
		for _, allowedType := range cfg.AllowedContentTypes {
			if strings.Contains(contentType, allowedType) {
				allowed = true
				break
			}
		}
		if !allowed {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
				"code":  apperror.CodeInvalid,
			})
		}

		var body map[string]interface{}
		if err := json.Unmarshal(c.Body(), &body); err != nil || body == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
				"code":  apperror.CodeInvalid,
			})
		}

		for _, field := range cfg.StringFields {
			raw, ok := body[field]
			if !ok || raw == nil {
				continue
			}

			s, ok := raw.(string)
			if !ok {
				return badField(c, field, "must be a string")
			}
			if len(s) > cfg.MaxFieldLength {
				return badField(c, field, "exceeds maximum length")
			}
			if strings.ContainsRune(s, 0) || xssPattern.MatchString(s) {
				cfg.Logger.Warn("Rejected field content",
					zap.String("ip", c.IP()),
					zap.String("field", field),
				)
				return badField(c, field, "has invalid content")
			}
		}

		return c.Next()
	}
}

func badField(c *fiber.Ctx, field, problem string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": field + " " + problem,
		"code":  apperror.CodeInvalid,
	})
}
