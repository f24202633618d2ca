package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
// Make fields public so they can be accessed from other packages.
type AppMetrics struct {
	HTTPRequestsTotal        metric.Int64Counter
	HTTPRequestDuration      metric.Float64Histogram
	PoolsGeneratedTotal      metric.Int64Counter
	ChallengesCreatedTotal   metric.Int64Counter
	PersistFailuresTotal     metric.Int64Counter
	ReplacementAttemptsTotal metric.Int64Counter
	PoolCacheLookupsTotal    metric.Int64Counter
	POIQueryDurationSeconds  metric.Float64Histogram
	CompletionEventsTotal    metric.Int64Counter
	DBQueryErrorsTotal       metric.Int64Counter
}

var (
	// Global instance of AppMetrics (initialized once)
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments ONLY ONCE.
// It gets the Meter from the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("loci-challenges")
		var err error
		m := &AppMetrics{}

		m.HTTPRequestsTotal, err = meter.Int64Counter(
			"http_requests_total",
			metric.WithDescription("Total number of HTTP requests completed"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create http_requests_total: %v", err)
		}

		m.HTTPRequestDuration, err = meter.Float64Histogram(
			"http_request_duration_seconds",
			metric.WithDescription("Duration of HTTP requests in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create http_request_duration_seconds: %v", err)
		}

		m.PoolsGeneratedTotal, err = meter.Int64Counter(
			"challenge_pools_generated_total",
			metric.WithDescription("Challenge pools generated, by fallback tier"),
			metric.WithUnit("{pool}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create challenge_pools_generated_total: %v", err)
		}

		m.ChallengesCreatedTotal, err = meter.Int64Counter(
			"challenges_created_total",
			metric.WithDescription("Challenges created, by durability and origin"),
			metric.WithUnit("{challenge}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create challenges_created_total: %v", err)
		}

		m.PersistFailuresTotal, err = meter.Int64Counter(
			"challenge_persist_failures_total",
			metric.WithDescription("Challenge Store create calls that failed, leaving an ephemeral challenge"),
			metric.WithUnit("{error}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create challenge_persist_failures_total: %v", err)
		}

		m.ReplacementAttemptsTotal, err = meter.Int64Counter(
			"challenge_replacement_attempts_total",
			metric.WithDescription("Replacement attempts, by outcome"),
			metric.WithUnit("{attempt}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create challenge_replacement_attempts_total: %v", err)
		}

		m.PoolCacheLookupsTotal, err = meter.Int64Counter(
			"challenge_pool_cache_lookups_total",
			metric.WithDescription("Pool cache lookups, by result (hit, miss, expired, error)"),
			metric.WithUnit("{lookup}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create challenge_pool_cache_lookups_total: %v", err)
		}

		m.POIQueryDurationSeconds, err = meter.Float64Histogram(
			"poi_query_duration_seconds",
			metric.WithDescription("Duration of POI Service queries in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create poi_query_duration_seconds: %v", err)
		}

		m.CompletionEventsTotal, err = meter.Int64Counter(
			"challenge_completion_events_total",
			metric.WithDescription("challengeCompleted events received, by handling result"),
			metric.WithUnit("{event}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create challenge_completion_events_total: %v", err)
		}

		m.DBQueryErrorsTotal, err = meter.Int64Counter(
			"db_query_errors_total",
			metric.WithDescription("Total number of database query errors"),
			metric.WithUnit("{error}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_errors_total: %v", err)
		}

		appMetrics = m
	})
}

// Get returns the global AppMetrics, initializing it against the current MeterProvider when
// InitAppMetrics was not called first (tests, tools).
func Get() *AppMetrics {
	InitAppMetrics()
	return appMetrics
}
