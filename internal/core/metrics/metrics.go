// Package metrics defines the Prometheus collectors InboxKeeper exports.
//
// Collectors register with the default registry; `inboxkeeper serve`
// exposes them on the admin listener at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared by the counters below.
const (
	ResultApplied   = "applied"
	ResultFailed    = "failed"
	ResultOrganized = "organized"
	ResultSkipped   = "skipped"
	ResultCompleted = "completed"
	ResultCancelled = "cancelled"

	// UnknownAction labels actions with no registered handler, keeping
	// client-supplied type strings out of the label set.
	UnknownAction = "unknown"
)

// Organize metrics
var (
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxkeeper_messages_total",
			Help: "Messages seen by organize runs",
		},
		[]string{"result"},
	)

	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxkeeper_actions_total",
			Help: "Dispatched actions by type and result",
		},
		[]string{"action", "result"},
	)

	LinksExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inboxkeeper_links_extracted_total",
			Help: "Links extracted from organized messages",
		},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxkeeper_runs_total",
			Help: "Organize runs by outcome",
		},
		[]string{"result"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inboxkeeper_run_duration_seconds",
			Help:    "Duration of organize runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)
)

// API metrics
var (
	GRPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxkeeper_grpc_requests_total",
			Help: "gRPC requests by method and status code",
		},
		[]string{"method", "code"},
	)

	GRPCRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inboxkeeper_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"method"},
	)
)
