// Package metrics exposes the Prometheus registry shared by dexmirror.
// All metrics are defined in their respective packages (store, client,
// ratelimit, ingest, api) via promauto to avoid circular dependencies.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every dexmirror metric is registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer backing Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the metrics in Gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Store Metrics (pkg/store):
//   - dexmirror_store_errors_total{operation} (Counter): Failed store operations
//
// Upstream Metrics (pkg/client):
//   - dexmirror_upstream_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - dexmirror_upstream_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - dexmirror_upstream_errors_total{class} (Counter): Errors by class (client, server, network, decode)
//
// Pacer Metrics (pkg/ratelimit):
//   - dexmirror_pacer_wait_seconds (Histogram): Time spent waiting between ids
//   - dexmirror_pacer_cancelled_total (Counter): Waits aborted by context cancellation
//
// Ingest Metrics (pkg/ingest):
//   - dexmirror_ingest_records_total{outcome} (Counter): Ids by outcome (added, skipped, failed)
//   - dexmirror_ingest_runs_total{result} (Counter): Runs by result (success, error)
//   - dexmirror_ingest_run_duration_seconds (Histogram): Run duration
//
// API Metrics (pkg/api):
//   - dexmirror_http_requests_total{route, status} (Counter): API requests by route and status
//   - dexmirror_http_request_duration_seconds{route} (Histogram): API request duration by route
//
// Example Prometheus Queries:
//
//   # Ingest failure ratio
//   sum(rate(dexmirror_ingest_records_total{outcome="failed"}[1h])) /
//   sum(rate(dexmirror_ingest_records_total[1h]))
//
//   # Upstream error rate by class
//   sum by (class) (rate(dexmirror_upstream_errors_total[5m]))
//
//   # P95 API latency
//   histogram_quantile(0.95, rate(dexmirror_http_request_duration_seconds_bucket[5m]))
