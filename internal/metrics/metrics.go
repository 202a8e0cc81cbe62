// Package metrics defines the Prometheus metrics exported on /metrics.
// All metrics register with the default registry on package load.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "resource_hub"

// ── HTTP metrics ──────────────────────────────────────────────────────────────

// HTTPRequestsTotal counts handled requests.
// Labels:
//   - method: HTTP method
//   - route: the matched route template (e.g. "/api/resources/:id/"), or "unmatched"
//   - status: response status code
var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests, by method, route and status.",
	},
	[]string{"method", "route", "status"},
)

// HTTPRequestDuration measures request latency per route.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests from first byte to response.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route"},
)

// ── Resource metrics ──────────────────────────────────────────────────────────

// ResourceMutationsTotal counts committed resource writes.
// Label:
//   - action: "created", "updated" or "deleted"
var ResourceMutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resource_mutations_total",
		Help:      "Total number of committed resource creates, updates and deletes.",
	},
	[]string{"action"},
)

// PermissionDeniedTotal counts requests refused by the permission gate.
// Labels:
//   - action: read, create, update or delete
//   - role: the caller's role
var PermissionDeniedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "permission_denied_total",
		Help:      "Total number of operations refused by the permission gate.",
	},
	[]string{"action", "role"},
)

// ── Event stream metrics ──────────────────────────────────────────────────────

// EventSubscribers tracks open live event stream connections.
var EventSubscribers = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "event_subscribers",
		Help:      "Current number of connected live event stream clients.",
	},
)
