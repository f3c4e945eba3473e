package rating

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/humanmade/backend/internal/metrics"
	"github.com/humanmade/backend/internal/storage/models"
	"github.com/humanmade/backend/internal/storage/schema"
	"github.com/humanmade/backend/internal/storage/sqlite"
	"github.com/humanmade/backend/pkg/apperror"
	"github.com/humanmade/backend/pkg/logger"
	"github.com/humanmade/backend/pkg/timebucket"
)

const (
	MinAxisValue = 0
	MaxAxisValue = 4

	DefaultDuplicateWindow int64 = 24
)

// ErrAlreadyRated is returned when the author rated the same target inside the
// duplicate window. Clients should not retry it.
var ErrAlreadyRated = apperror.RateLimited("already_rated", "You have already rated this target recently.")

// SummaryCache stores computed summaries. Implementations must treat every
// error as a miss; the service never fails a read because of the cache.
type SummaryCache interface {
	GetSummary(ctx context.Context, typ, target, identity string) (*models.Summary, bool, error)
	SetSummary(ctx context.Context, s *models.Summary, identity string) error
	GetSummaries(ctx context.Context, typ, identity string) ([]models.Summary, bool, error)
	SetSummaries(ctx context.Context, typ, identity string, summaries []models.Summary) error
	Invalidate(ctx context.Context, typ, target string) error
}

// Axes holds one opinion per axis. Nil means no opinion on that axis.
type Axes struct {
	Audio  *int `json:"audio"`
	Visual *int `json:"visual"`
	Text   *int `json:"text"`
}

type Submission struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	Author string `json:"author"`
	Rating Axes   `json:"rating"`
}

type Config struct {
	Cache SummaryCache
	// DuplicateWindow is counted in hour buckets.
	DuplicateWindow int64
	Now             func() time.Time
}

type Service struct {
	db              *sqlite.Client
	cache           SummaryCache
	duplicateWindow int64
	now             func() time.Time
}

func NewService(db *sqlite.Client, cfg Config) *Service {
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = DefaultDuplicateWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		db:              db,
		cache:           cfg.Cache,
		duplicateWindow: cfg.DuplicateWindow,
		now:             cfg.Now,
	}
}

// Submit stores one rating received from source and returns its id. The
// duplicate check and the insert share a single transaction. Request volume
// is limited in front of the handler, not here.
func (s *Service) Submit(ctx context.Context, source string, sub Submission) (int64, error) {
	now := s.now()

	sub.Type = strings.TrimSpace(sub.Type)
	sub.Target = strings.TrimSpace(sub.Target)
	sub.Author = strings.TrimSpace(sub.Author)
	if sub.Type == "" || sub.Target == "" || sub.Author == "" {
		metrics.RatingsSubmitted.WithLabelValues("invalid").Inc()
		return 0, apperror.Validation("Invalid opinion data: type, target and author are required")
	}

	author := sub.Author
	row := models.Rating{
		Type:       sub.Type,
		Target:     sub.Target,
		Author:     &author,
		Source:     source,
		Timestamp:  timebucket.FromTime(now),
		AudioAxis:  clampAxis(sub.Rating.Audio),
		VisualAxis: clampAxis(sub.Rating.Visual),
		TextAxis:   clampAxis(sub.Rating.Text),
	}

	var id int64
	err := s.db.WithTx(ctx, func(tx *sqlite.Client) error {
		existing, err := tx.Count(ctx, schema.RatingTableName, sqlite.Where{
			sqlite.Eq(schema.RatingType, sub.Type),
			sqlite.Eq(schema.RatingTarget, sub.Target),
			sqlite.Eq(schema.RatingAuthor, sub.Author),
			sqlite.Gt(schema.RatingTimestamp, timebucket.Since(now, s.duplicateWindow)),
		})
		if err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyRated
		}

		key, err := tx.Insert(ctx, schema.RatingTableName, row.Record())
		if err != nil {
			return err
		}
		id, _ = key.(int64)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyRated) {
			metrics.RatingsSubmitted.WithLabelValues("duplicate").Inc()
			metrics.RateLimited.WithLabelValues("duplicate").Inc()
		} else {
			metrics.RatingsSubmitted.WithLabelValues("error").Inc()
		}
		return 0, err
	}

	metrics.RatingsSubmitted.WithLabelValues("ok").Inc()
	logger.Info("Rating stored",
		zap.Int64("id", id),
		zap.String("type", sub.Type),
		zap.String("target", sub.Target),
	)

	s.invalidate(ctx, sub.Type, sub.Target)
	return id, nil
}

// ListRatings returns raw rows for administration, newest first.
func (s *Service) ListRatings(ctx context.Context, typ, target string, limit uint) ([]models.Rating, error) {
	if typ == "" {
		return nil, apperror.Validation("type is required")
	}
	return sqlite.List[models.Rating](ctx, s.db, schema.RatingTableName, sqlite.ListOptions{
		Where: sqlite.Where{
			sqlite.Eq(schema.RatingType, typ),
			sqlite.If(target != "", sqlite.Eq(schema.RatingTarget, target)),
		},
		OrderBy: []sqlite.Order{{Column: schema.RatingID, Desc: true}},
		Limit:   limit,
	})
}

// CountRatings counts all ratings, or those of one type when typ is set.
func (s *Service) CountRatings(ctx context.Context, typ string) (int64, error) {
	return s.db.Count(ctx, schema.RatingTableName, sqlite.Where{
		sqlite.If(typ != "", sqlite.Eq(schema.RatingType, typ)),
	})
}

func (s *Service) DeleteRating(ctx context.Context, id int64) error {
	rows, err := sqlite.List[models.Rating](ctx, s.db, schema.RatingTableName, sqlite.ListOptions{
		Where: sqlite.Where{sqlite.Eq(schema.RatingID, id)},
		Limit: 1,
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return apperror.NotFound("rating %d does not exist", id)
	}

	if _, err := s.db.Delete(ctx, schema.RatingTableName, sqlite.Where{sqlite.Eq(schema.RatingID, id)}); err != nil {
		return err
	}

	metrics.RatingsDeleted.Inc()
	logger.Info("Rating deleted", zap.Int64("id", id), zap.String("target", rows[0].Target))

	s.invalidate(ctx, rows[0].Type, rows[0].Target)
	return nil
}

func (s *Service) invalidate(ctx context.Context, typ, target string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, typ, target); err != nil {
		logger.Warn("Failed to invalidate summary cache",
			zap.String("type", typ),
			zap.String("target", target),
			zap.Error(err),
		)
	}
}

func clampAxis(v *int) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	if n < MinAxisValue {
		n = MinAxisValue
	}
	if n > MaxAxisValue {
		n = MaxAxisValue
	}
	return &n
}
