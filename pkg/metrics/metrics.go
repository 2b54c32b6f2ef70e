// Package metrics exposes the Prometheus registry used by connsync.
// All metrics are defined in their respective packages (client, credentials,
// records, cache, ratelimit, events, syncer) to maintain modularity and avoid
// circular dependencies.
//
// This package provides the scrape handler and a reference for all metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by connsync.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the metrics registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics scrape handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Run Metrics (pkg/syncer):
//   - connsync_runs_total{platform, status} (Counter): Finished runs by status
//   - connsync_run_duration_seconds{platform} (Histogram): Run duration
//   - connsync_runs_active (Gauge): Runs in progress
//   - connsync_pages_total{platform} (Counter): Listing pages fetched
//   - connsync_items_total{platform, decision} (Counter): Items by decision (new, duplicate, skipped)
//
// Request Metrics (pkg/client):
//   - connsync_requests_total{platform, status} (Counter): Listing requests by HTTP status
//   - connsync_request_duration_seconds{platform} (Histogram): Request duration
//   - connsync_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Throttle Metrics (pkg/ratelimit):
//   - connsync_throttle_cooldowns_total{platform} (Counter): Cooldowns recorded after a 429
//   - connsync_throttle_blocks_total{platform} (Counter): Requests refused during a cooldown
//
// Credential Metrics (pkg/credentials):
//   - connsync_credential_wait_seconds{outcome} (Histogram): Time spent waiting for credentials
//   - connsync_credential_requests_total{result} (Counter): Acquisition requests sent
//
// Store Metrics (pkg/records, pkg/cache):
//   - connsync_store_read_failures_total{reason} (Counter): Reads treated as empty (fail open)
//   - connsync_store_appends_total{platform, result} (Counter): Records appended
//   - connsync_index_hits_total, connsync_index_misses_total (Counter): Identity index lookups
//   - connsync_index_rebuilds_total (Counter): Identity index rebuilds
//   - connsync_index_errors_total{operation} (Counter): Identity index Redis errors
//
// Event Metrics (pkg/events):
//   - connsync_events_total{notifier, type, result} (Counter): Notifications delivered
//
// Example Prometheus Queries:
//
//   # Failed Run Rate
//   sum(rate(connsync_runs_total{status="RUN_FAILED"}[1h])) / sum(rate(connsync_runs_total[1h]))
//
//   # New Records per Hour
//   sum(increase(connsync_items_total{decision="new"}[1h])) by (platform)
//
//   # Throttling
//   increase(connsync_throttle_cooldowns_total[1h]) > 0
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(connsync_request_duration_seconds_bucket[5m]))
