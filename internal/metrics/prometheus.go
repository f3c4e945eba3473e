package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RatingsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "humanmade_ratings_submitted_total",
			Help: "Rating submissions by outcome",
		},
		[]string{"status"},
	)

	RatingsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "humanmade_ratings_deleted_total",
			Help: "Ratings removed by administrators",
		},
	)

	SummaryQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "humanmade_summary_queries_total",
			Help: "Summary queries by scope and outcome",
		},
		[]string{"scope", "status"},
	)

	SummaryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "humanmade_summary_duration_seconds",
			Help:    "Time spent computing summaries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"scope"},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "humanmade_rate_limited_total",
			Help: "Requests rejected by the abuse guard",
		},
		[]string{"guard"},
	)

	TrackedSources = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "humanmade_rate_limit_tracked_sources",
			Help: "Source keys currently held in a request window",
		},
		[]string{"limiter"},
	)

	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "humanmade_store_operation_duration_seconds",
			Help:    "SQLite statement duration",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"op", "table"},
	)

	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "humanmade_store_errors_total",
			Help: "Failed SQLite statements",
		},
		[]string{"op", "table"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "humanmade_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "humanmade_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RatingsSubmitted)
		prometheus.MustRegister(RatingsDeleted)
		prometheus.MustRegister(SummaryQueries)
		prometheus.MustRegister(SummaryDuration)
		prometheus.MustRegister(RateLimited)
		prometheus.MustRegister(TrackedSources)
		prometheus.MustRegister(StoreOperationDuration)
		prometheus.MustRegister(StoreErrors)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
