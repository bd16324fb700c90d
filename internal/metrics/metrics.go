// Package metrics defines the Prometheus instruments for a transactor.
//
// All operations are thread-safe via Prometheus's internal locking.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "transactor"

	// Direction label values for FramesTotal.
	DirectionIn  = "in"
	DirectionOut = "out"

	// Outcome label values for RunsTotal.
	OutcomeClean  = "clean"
	OutcomeFailed = "failed"

	// Kind label values for AnomaliesTotal.
	AnomalyMalformed = "malformed"
	AnomalySchema    = "schema"
	AnomalyUnknownID = "unknown_id"
)

// Metrics holds the counters and gauges for one transactor.
type Metrics struct {
	// FramesTotal counts frames by direction (in, out) and op.
	FramesTotal *prometheus.CounterVec

	// RequestsServedTotal counts inbound requests answered by the handler.
	RequestsServedTotal prometheus.Counter

	// ResponsesResolvedTotal counts inbound responses matched to a pending request.
	ResponsesResolvedTotal prometheus.Counter

	// AnomaliesTotal counts rejected frames and unmatched responses by kind.
	AnomaliesTotal *prometheus.CounterVec

	// PendingRequests reports outbound requests awaiting a response.
	PendingRequests prometheus.GaugeFunc

	// RunsTotal counts background loop runs by outcome (clean, failed).
	RunsTotal *prometheus.CounterVec
}

// New creates the instruments and registers them with reg.
// A nil reg creates working instruments that are not exported anywhere.
// pending is sampled whenever PendingRequests is collected.
func New(reg prometheus.Registerer, constLabels prometheus.Labels, pending func() float64) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "frames_total",
			Help:        "Frames read from or written to the stream, by direction and op.",
			ConstLabels: constLabels,
		}, []string{"direction", "op"}),
		RequestsServedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "requests_served_total",
			Help:        "Inbound requests answered by the request handler.",
			ConstLabels: constLabels,
		}),
		ResponsesResolvedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "responses_resolved_total",
			Help:        "Inbound responses delivered to a waiting request.",
			ConstLabels: constLabels,
		}),
		AnomaliesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "anomalies_total",
			Help:        "Protocol anomalies that were reported and skipped, by kind.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		PendingRequests: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "pending_requests",
			Help:        "Outbound requests awaiting a response.",
			ConstLabels: constLabels,
		}, pending),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "runs_total",
			Help:        "Background loop runs that have ended, by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
	}
}
