package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration tracks HTTP request latency by method, route, and
// status code.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "vectoraiz",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// ResourceGuardTripsTotal counts disk/memory threshold crossings by
// resource and severity (warn/critical).
var ResourceGuardTripsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vectoraiz",
		Subsystem: "resource_guard",
		Name:      "trips_total",
		Help:      "Total number of resource guard threshold trips.",
	},
	[]string{"resource", "severity"},
)

// IngestionBlockedGauge reflects the current ingestion-blocked flag (0 or 1).
var IngestionBlockedGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "vectoraiz",
		Subsystem: "resource_guard",
		Name:      "ingestion_blocked",
		Help:      "1 when ingestion is currently blocked by a resource guard, else 0.",
	},
)

// SerialStateGauge reflects the current metering state machine state
// (0=UNPROVISIONED, 1=PROVISIONED, 2=ACTIVE, 3=DEGRADED, 4=MIGRATED).
var SerialStateGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "vectoraiz",
		Subsystem: "serial",
		Name:      "state",
		Help:      "Current serial metering state machine state.",
	},
)

// AuthorityCallsTotal counts calls to the remote serial authority by method
// and outcome (ok, denied, network_error, http_error).
var AuthorityCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vectoraiz",
		Subsystem: "serial",
		Name:      "authority_calls_total",
		Help:      "Total number of calls to the remote serial authority.",
	},
	[]string{"method", "outcome"},
)

// MeterDecisionsTotal counts metering decisions by category and outcome
// (allowed, denied, offline).
var MeterDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vectoraiz",
		Subsystem: "serial",
		Name:      "meter_decisions_total",
		Help:      "Total number of metering decisions by category and outcome.",
	},
	[]string{"category", "outcome"},
)

// OfflineQueueDepthGauge reflects the current depth of the offline meter queue.
var OfflineQueueDepthGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "vectoraiz",
		Subsystem: "serial",
		Name:      "offline_queue_depth",
		Help:      "Current number of pending meter events in the offline queue.",
	},
)

// DiagnosticBundlesTotal counts diagnostic bundle generations by outcome
// (ok, timeout, rate_limited).
var DiagnosticBundlesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vectoraiz",
		Subsystem: "diagnostics",
		Name:      "bundles_total",
		Help:      "Total number of diagnostic bundle generation attempts by outcome.",
	},
	[]string{"outcome"},
)

// TrackedIssuesTotal counts issues recorded by the issue tracker, by code.
var TrackedIssuesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vectoraiz",
		Subsystem: "issues",
		Name:      "recorded_total",
		Help:      "Total number of tracked issues recorded, by code.",
	},
	[]string{"code"},
)

// All returns every vectoraiz-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		ResourceGuardTripsTotal,
		IngestionBlockedGauge,
		SerialStateGauge,
		AuthorityCallsTotal,
		MeterDecisionsTotal,
		OfflineQueueDepthGauge,
		DiagnosticBundlesTotal,
		TrackedIssuesTotal,
	}
}
