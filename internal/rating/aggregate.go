package rating

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/humanmade/backend/internal/metrics"
	"github.com/humanmade/backend/internal/storage/models"
	"github.com/humanmade/backend/internal/storage/schema"
	"github.com/humanmade/backend/internal/storage/sqlite"
	"github.com/humanmade/backend/pkg/apperror"
	"github.com/humanmade/backend/pkg/logger"
)

const (
	aliasRatings   = "ratings"
	aliasUserRated = "user_rated"
)

type axis struct {
	column string
	set    func(s *models.AxisScores, v *float64)
}

var axes = []axis{
	{schema.RatingAudioAxis, func(s *models.AxisScores, v *float64) { s.Audio = v }},
	{schema.RatingVisualAxis, func(s *models.AxisScores, v *float64) { s.Visual = v }},
	{schema.RatingTextAxis, func(s *models.AxisScores, v *float64) { s.Text = v }},
}

func sumAlias(column string) string   { return column + "_sum" }
func countAlias(column string) string { return column + "_count" }

// summaryProjections selects per axis SUM and COUNT (COUNT skips NULLs), the
// group size, and when an identity is given how many of the rows are its own.
func summaryProjections(identity string) []sqlite.Projection {
	p := []sqlite.Projection{
		sqlite.Col(schema.RatingTarget),
		sqlite.Expr("COUNT(*) AS " + aliasRatings),
	}
	for _, a := range axes {
		p = append(p,
			sqlite.Expr("SUM("+a.column+") AS "+sumAlias(a.column)),
			sqlite.Expr("COUNT("+a.column+") AS "+countAlias(a.column)),
		)
	}
	if identity != "" {
		p = append(p, sqlite.Expr(
			"SUM(CASE WHEN "+schema.RatingAuthor+" = ? THEN 1 ELSE 0 END) AS "+aliasUserRated, identity))
	}
	return p
}

// Summary returns the score of one target. A target without ratings is
// NotFound. identity may be empty.
func (s *Service) Summary(ctx context.Context, typ, target, identity string) (*models.Summary, error) {
	if typ == "" || target == "" {
		return nil, apperror.Validation("type and target are required")
	}

	if s.cache != nil {
		cached, ok, err := s.cache.GetSummary(ctx, typ, target, identity)
		if err != nil {
			logger.Debug("Summary cache read failed", zap.Error(err))
		} else if ok {
			metrics.SummaryQueries.WithLabelValues("target", "cached").Inc()
			return cached, nil
		}
	}

	summaries, err := s.summaries(ctx, "target", typ, target, identity)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		metrics.SummaryQueries.WithLabelValues("target", "not_found").Inc()
		return nil, apperror.NotFound("No ratings found for this target")
	}

	summary := &summaries[0]
	if s.cache != nil {
		if err := s.cache.SetSummary(ctx, summary, identity); err != nil {
			logger.Debug("Summary cache write failed", zap.Error(err))
		}
	}
	return summary, nil
}

// ListSummaries returns one summary per rated target of typ, ordered by target.
func (s *Service) ListSummaries(ctx context.Context, typ, identity string) ([]models.Summary, error) {
	if typ == "" {
		return nil, apperror.Validation("type is required")
	}

	if s.cache != nil {
		cached, ok, err := s.cache.GetSummaries(ctx, typ, identity)
		if err != nil {
			logger.Debug("Summary cache read failed", zap.Error(err))
		} else if ok {
			metrics.SummaryQueries.WithLabelValues("list", "cached").Inc()
			return cached, nil
		}
	}

	summaries, err := s.summaries(ctx, "list", typ, "", identity)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetSummaries(ctx, typ, identity, summaries); err != nil {
			logger.Debug("Summary cache write failed", zap.Error(err))
		}
	}
	return summaries, nil
}

// summaries issues the single aggregate query. Without a target it groups by
// target; with one it aggregates the matching rows directly.
func (s *Service) summaries(ctx context.Context, scope, typ, target, identity string) ([]models.Summary, error) {
	start := time.Now()
	defer func() {
		metrics.SummaryDuration.WithLabelValues(scope).Observe(time.Since(start).Seconds())
	}()

	opts := sqlite.ComputedOptions{
		Select: summaryProjections(identity),
		Where: sqlite.Where{
			sqlite.Eq(schema.RatingType, typ),
			sqlite.If(target != "", sqlite.Eq(schema.RatingTarget, target)),
		},
	}
	if target == "" {
		opts.GroupBy = []string{schema.RatingTarget}
		opts.OrderBy = []sqlite.Order{{Column: schema.RatingTarget}}
	}

	rows, err := s.db.ListComputed(ctx, schema.RatingTableName, opts)
	if err != nil {
		metrics.SummaryQueries.WithLabelValues(scope, "error").Inc()
		return nil, err
	}

	summaries := reshape(typ, target, identity, rows)
	metrics.SummaryQueries.WithLabelValues(scope, "ok").Inc()
	return summaries, nil
}

// reshape turns aggregate records into summaries. An ungrouped aggregate over
// zero rows still yields one record, with ratings = 0; such records are dropped.
func reshape(typ, target, identity string, rows []sqlite.Record) []models.Summary {
	summaries := make([]models.Summary, 0, len(rows))
	for _, r := range rows {
		total, _ := asInt64(r[aliasRatings])
		if total == 0 {
			continue
		}

		t, _ := r[schema.RatingTarget].(string)
		if t == "" {
			t = target
		}

		summary := models.Summary{
			Meta:    models.SummaryMeta{Type: typ, Target: t},
			Ratings: total,
		}
		for _, a := range axes {
			a.set(&summary.Score, average(r[sumAlias(a.column)], r[countAlias(a.column)]))
		}
		if identity != "" {
			own, _ := asInt64(r[aliasUserRated])
			summary.UserRated = own > 0
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

func average(sum, count interface{}) *float64 {
	n, ok := asInt64(count)
	if !ok || n <= 0 {
		return nil
	}
	total, ok := asFloat64(sum)
	if !ok {
		return nil
	}
	avg := total / float64(n)
	return &avg
}

func asInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func asFloat64(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
