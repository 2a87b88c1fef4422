// Package telemetry provides structured logging setup and Prometheus metrics.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<MOMOFIN_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// The endpoint is not mounted on the gin router, so it is never reachable
// through the public API ingress. It is only started when
// telemetry.metrics.enabled is true.
//
// # Metric Groups
//
//   - HTTP: request count and latency by method, route template and status.
//     Routes use c.FullPath() (e.g. /documents/:id) rather than the raw URL to
//     keep label cardinality bounded.
//   - Authentication: momofin_auth_attempts_total by operation and outcome.
//   - Integrity: momofin_digest_duration_seconds by HMAC algorithm and
//     momofin_documents_total by outcome (stored, duplicate, verified,
//     unverified, intact, corrupted).
//   - Activity log: momofin_activity_log_write_errors_total counts entries that
//     could not be persisted.
//   - Database pool: db_open_connections, sampled every 30 seconds by
//     StartDBStatsCollector.
//
// # Logging
//
// SetupLogger installs a log/slog default handler (JSON or text) at the
// configured level; every package logs through slog.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// AuthAttemptsTotal counts login and registration outcomes.
//
// operation: "login" | "register"
// outcome:   "success" | "invalid_credentials" | "organization_not_found" | "conflict"
//
// A sustained rise in rate(momofin_auth_attempts_total{outcome="invalid_credentials"}[5m])
// is the usual credential-stuffing signal.
var AuthAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "momofin_auth_attempts_total",
		Help: "Total number of authentication and registration attempts, by operation and outcome.",
	},
	[]string{"operation", "outcome"},
)

// Document integrity metrics.
var (
	DigestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "momofin_digest_duration_seconds",
			Help:    "Time spent computing keyed document digests, by algorithm.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"algorithm"},
	)

	// DocumentsTotal outcome: "stored" | "duplicate" | "verified" | "unverified" | "intact" | "corrupted"
	DocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "momofin_documents_total",
			Help: "Total number of document submissions, verifications and integrity checks, by outcome.",
		},
		[]string{"outcome"},
	)
)

// ActivityLogWriteErrorsTotal counts activity log entries that could not be persisted.
var ActivityLogWriteErrorsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "momofin_activity_log_write_errors_total",
		Help: "Total number of activity log entries that failed to persist.",
	},
)

// DBOpenConnections tracks the number of open connections held by the sql.DB pool.
// It is sampled every 30 seconds by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// dbStatsInterval is how often StartDBStatsCollector samples the pool.
var dbStatsInterval = 30 * time.Second

// StartDBStatsCollector samples pool statistics every dbStatsInterval until ctx
// is cancelled or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(dbStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
