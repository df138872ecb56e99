// Package metrics defines and registers all custom Prometheus metrics for
// the timesheet client. It is the single source of truth for metric names,
// labels, and help strings.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "timesheet"

// ── Transport metrics ─────────────────────────────────────────────────────────

// RequestsTotal counts API requests that completed with a response.
// Labels:
//   - method: HTTP method (e.g. "GET")
//   - status: numeric HTTP status of the reply (e.g. "200")
var RequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Total number of API requests, by method and response status.",
	},
	[]string{"method", "status"},
)

// RequestErrorsTotal counts requests that failed before a response arrived.
// Label:
//   - reason: short description of the failure (e.g. "network", "encode")
var RequestErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "request_errors_total",
		Help:      "Total number of API requests that failed without a response.",
	},
	[]string{"reason"},
)

// ── Offline cache metrics ─────────────────────────────────────────────────────

// CacheDecisionsTotal counts fetch-interception outcomes.
// Label:
//   - result: "hit", "miss", "bypass", "passthrough", or "offline"
var CacheDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_decisions_total",
		Help:      "Total number of intercepted fetches, labelled by cache decision.",
	},
	[]string{"result"},
)

// ── Store metrics ─────────────────────────────────────────────────────────────

// StaleResponsesDroppedTotal counts responses discarded by the stale-request
// guard because a newer fetch was issued before they resolved.
// Label:
//   - store: the resource store name (e.g. "users")
var StaleResponsesDroppedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_responses_dropped_total",
		Help:      "Total number of superseded fetch responses discarded unapplied.",
	},
	[]string{"store"},
)

// PagesFetchedTotal counts pages retrieved by paginated fetches, including
// every page of a full drain.
// Label:
//   - store: the resource store name
var PagesFetchedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pages_fetched_total",
		Help:      "Total number of collection pages fetched.",
	},
	[]string{"store"},
)
