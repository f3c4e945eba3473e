package ratelimit

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/humanmade/backend/internal/metrics"
	"github.com/humanmade/backend/pkg/apperror"
)

// Request is what the limiter records about one inbound call.
type Request struct {
	Key       string
	Timestamp time.Time
	Path      string
	Method    string
	UserAgent string
}

// RateLimiter is a sliding-window counter per source key. It lives in process
// memory only; a restart forgets every window.
type RateLimiter struct {
	name    string
	mu      sync.Mutex
	windows map[string][]Request
	max     int
	window  time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

type Config struct {
	// Name labels metrics and logs, e.g. "submit" or "read".
	Name                string
	MaxRequestsInWindow int
	Window              time.Duration
	Logger              *zap.Logger
	Now                 func() time.Time
}

func New(cfg Config) *RateLimiter {
	if cfg.MaxRequestsInWindow == 0 {
		cfg.MaxRequestsInWindow = 10
	}
	if cfg.Window == 0 {
		cfg.Window = time.Minute
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &RateLimiter{
		name:    cfg.Name,
		windows: make(map[string][]Request),
		max:     cfg.MaxRequestsInWindow,
		window:  cfg.Window,
		now:     cfg.Now,
		logger:  cfg.Logger,
	}
}

// Check records req and fails with a RateLimited error once req.Key has made
// more than MaxRequestsInWindow requests inside the window. Rejected requests
// are recorded too, so a client that keeps hammering stays blocked.
func (rl *RateLimiter) Check(req Request) error {
	if req.Timestamp.IsZero() {
		req.Timestamp = rl.now()
	}

	rl.mu.Lock()
	rl.prune(req.Timestamp)
	reqs := append(rl.windows[req.Key], req)
	rl.windows[req.Key] = reqs
	inWindow := len(reqs)
	tracked := len(rl.windows)
	rl.mu.Unlock()

	metrics.TrackedSources.WithLabelValues(rl.name).Set(float64(tracked))

	if inWindow > rl.max {
		metrics.RateLimited.WithLabelValues(rl.name).Inc()
		rl.logger.Warn("Rate limit exceeded",
			zap.String("limiter", rl.name),
			zap.String("key", req.Key),
			zap.String("path", req.Path),
			zap.String("method", req.Method),
			zap.Int("in_window", inWindow),
		)
		return apperror.RateLimited(apperror.CodeTooManyRequests, "Rate limit exceeded. Please try again later.")
	}
	return nil
}

// prune drops every entry older than now-window and forgets empty keys.
// Entries are appended in arrival order, so the kept part is a suffix.
func (rl *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-rl.window)
	for key, reqs := range rl.windows {
		i := 0
		for i < len(reqs) && reqs[i].Timestamp.Before(cutoff) {
			i++
		}
		switch {
		case i == len(reqs):
			delete(rl.windows, key)
		case i > 0:
			rl.windows[key] = append([]Request(nil), reqs[i:]...)
		}
	}
}

// Len is the number of source keys currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// InWindow is the number of requests key has in its window right now.
func (rl *RateLimiter) InWindow(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.prune(rl.now())
	return len(rl.windows[key])
}

// RequestFrom builds a Request keyed by the caller's IP.
func RequestFrom(c *fiber.Ctx) Request {
	return Request{
		Key:       c.IP(),
		Path:      c.Path(),
		Method:    c.Method(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := rl.Check(RequestFrom(c)); err != nil {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
				"code":  apperror.CodeTooManyRequests,
			})
		}
		return c.Next()
	}
}
