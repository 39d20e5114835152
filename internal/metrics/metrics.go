// Package metrics provides Prometheus instrumentation for backends,
// the cache wrapper, and the sync engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Backend operation metrics
	backendOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_backend_op_duration_seconds",
			Help:    "Backend operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	backendOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_backend_op_errors_total",
			Help: "Total failed backend operations",
		},
		[]string{"backend", "op"},
	)

	// Cache wrapper metrics
	cacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_cache_events_total",
			Help: "Cache wrapper events (hit, miss, purge)",
		},
		[]string{"event"},
	)

	// Sync engine metrics
	syncActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_sync_actions_total",
			Help: "Sync actions applied, by type",
		},
		[]string{"action"},
	)

	syncUploadRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_sync_upload_retries_total",
			Help: "Total retried upload attempts during sync",
		},
	)

	syncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_sync_run_duration_seconds",
			Help:    "Duration of complete sync runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// Layered filesystem metrics
	layerRepairs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_layer_dir_repairs_total",
			Help: "Missing write-layer directories created during writes",
		},
	)
)

// RecordBackendOp records the duration and outcome of one backend operation.
func RecordBackendOp(backend, op string, duration time.Duration, success bool) {
	backendOpDuration.WithLabelValues(backend, op).Observe(duration.Seconds())
	if !success {
		backendOpErrors.WithLabelValues(backend, op).Inc()
	}
}

// RecordCacheHit records a read served from the cache backend.
func RecordCacheHit() { cacheEvents.WithLabelValues("hit").Inc() }

// RecordCacheMiss records a read that had to materialize from source.
func RecordCacheMiss() { cacheEvents.WithLabelValues("miss").Inc() }

// RecordCachePurge records an invalidated cache entry.
func RecordCachePurge() { cacheEvents.WithLabelValues("purge").Inc() }

// RecordSyncAction records one applied sync action.
func RecordSyncAction(action string) {
	syncActionsTotal.WithLabelValues(action).Inc()
}

// RecordSyncUploadRetry records one retried upload attempt.
func RecordSyncUploadRetry() { syncUploadRetries.Inc() }

// RecordSyncRun records the duration of a completed sync run.
func RecordSyncRun(duration time.Duration) {
	syncRunDuration.Observe(duration.Seconds())
}

// RecordLayerRepair records an auto-created write-layer directory.
func RecordLayerRepair() { layerRepairs.Inc() }

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
