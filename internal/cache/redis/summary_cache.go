package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/humanmade/backend/internal/metrics"
	"github.com/humanmade/backend/internal/storage/models"
	"github.com/humanmade/backend/pkg/logger"
	"github.com/humanmade/backend/pkg/utils"
)

const (
	DefaultTTL              = 5 * time.Minute
	DefaultFailureThreshold = 5
	DefaultCooldown         = 30 * time.Second

	summaryPrefix   = "summary"
	summariesPrefix = "summaries"
)

// SummaryCache keeps computed scores in Redis. Keys are built so that one
// (type, target) pair, and every listing of a type, can be dropped by pattern:
//
//	summary:<hash(type, target)>:<hash(identity)>
//	summaries:<hash(type)>:<hash(identity)>
type SummaryCache struct {
	store   Store
	ttl     time.Duration
	breaker *breaker
}

type SummaryCacheConfig struct {
	TTL time.Duration
	// FailureThreshold consecutive store errors open the breaker for Cooldown.
	FailureThreshold int
	Cooldown         time.Duration
	Now              func() time.Time
}

func NewSummaryCache(store Store, cfg SummaryCacheConfig) *SummaryCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SummaryCache{
		store:   store,
		ttl:     cfg.TTL,
		breaker: newBreaker(cfg.FailureThreshold, cfg.Cooldown, cfg.Now, logger.Named("redis")),
	}
}

func summaryKey(typ, target, identity string) string {
	return fmt.Sprintf("%s:%s:%s", summaryPrefix, utils.HashParts(typ, target), utils.HashParts(identity))
}

func summariesKey(typ, identity string) string {
	return fmt.Sprintf("%s:%s:%s", summariesPrefix, utils.HashParts(typ), utils.HashParts(identity))
}

func (c *SummaryCache) GetSummary(ctx context.Context, typ, target, identity string) (*models.Summary, bool, error) {
	var s models.Summary
	ok, err := c.get(ctx, summaryPrefix, summaryKey(typ, target, identity), &s)
	if err != nil || !ok {
		return nil, false, err
	}
	return &s, true, nil
}

func (c *SummaryCache) SetSummary(ctx context.Context, s *models.Summary, identity string) error {
	return c.set(ctx, summaryKey(s.Meta.Type, s.Meta.Target, identity), s)
}

func (c *SummaryCache) GetSummaries(ctx context.Context, typ, identity string) ([]models.Summary, bool, error) {
	var list []models.Summary
	ok, err := c.get(ctx, summariesPrefix, summariesKey(typ, identity), &list)
	if err != nil || !ok {
		return nil, false, err
	}
	if list == nil {
		list = []models.Summary{}
	}
	return list, true, nil
}

func (c *SummaryCache) SetSummaries(ctx context.Context, typ, identity string, summaries []models.Summary) error {
	return c.set(ctx, summariesKey(typ, identity), summaries)
}

// Invalidate drops every cached view of (typ, target) and every listing of typ.
func (c *SummaryCache) Invalidate(ctx context.Context, typ, target string) error {
	patterns := []string{
		fmt.Sprintf("%s:%s:*", summaryPrefix, utils.HashParts(typ, target)),
		fmt.Sprintf("%s:%s:*", summariesPrefix, utils.HashParts(typ)),
	}

	return c.breaker.do(ctx, func() error {
		var keys []string
		for _, p := range patterns {
			found, err := c.store.Keys(ctx, p)
			if err != nil {
				return err
			}
			keys = append(keys, found...)
		}
		if err := c.store.Delete(ctx, keys...); err != nil {
			return err
		}

		logger.Debug("Summary cache invalidated",
			zap.String("type", typ),
			zap.String("target", target),
			zap.Int("keys", len(keys)),
		)
		return nil
	})
}

func (c *SummaryCache) get(ctx context.Context, cacheType, key string, out interface{}) (bool, error) {
	var data []byte
	err := c.breaker.do(ctx, func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		metrics.CacheMisses.WithLabelValues(cacheType).Inc()
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if data == nil {
		metrics.CacheMisses.WithLabelValues(cacheType).Inc()
		return false, nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		metrics.CacheMisses.WithLabelValues(cacheType).Inc()
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	metrics.CacheHits.WithLabelValues(cacheType).Inc()
	return true, nil
}

func (c *SummaryCache) set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return c.breaker.do(ctx, func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
}
