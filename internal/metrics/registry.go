// Package metrics defines the process-wide Prometheus registry handed to
// every pipeline stage at construction. There are no package-level globals:
// each stage receives the *Registry it writes to explicitly, per the
// Watcher's single-writer/multi-reader design (spec.md §9).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// State values for the current_state gauge.
const (
	StateUnknown = 0
	StateContent = 1
	StateSlate   = 2
)

// Registry holds every counter and gauge listed in spec.md §6, registered
// against its own prometheus.Registry so /metrics never mixes in Go runtime
// collectors the spec doesn't call for.
type Registry struct {
	reg *prometheus.Registry

	FramesReceived       prometheus.Counter
	FramesSampled        prometheus.Counter
	FramesDecodedErrors  prometheus.Counter
	SlateMatches         *prometheus.CounterVec
	Transitions          *prometheus.CounterVec
	TransitionsUnmatched prometheus.Counter
	ActionsDispatched    *prometheus.CounterVec
	ActionsFailed        *prometheus.CounterVec
	ActionsDropped       prometheus.Counter
	CurrentState         prometheus.Gauge
	SlateMatchScore      prometheus.Gauge
}

// New builds and registers every metric on a fresh registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frames_received_total",
			Help: "UDP datagrams received on the ingest port, before RTP validation.",
		}),
		FramesSampled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frames_sampled_total",
			Help: "Decoded frames accepted by the sampler for comparison.",
		}),
		FramesDecodedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frames_decoded_errors_total",
			Help: "Individual frame decode failures, absorbed and skipped.",
		}),
		SlateMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slate_matches_total",
			Help: "Sampled frames classified as a given slate.",
		}, []string{"slate_id"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitions_total",
			Help: "Transition events dispatched, labeled by from/to classification.",
		}, []string{"from", "to"}),
		TransitionsUnmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitions_unmatched_total",
			Help: "Transition events with no matching configured rule.",
		}),
		ActionsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actions_dispatched_total",
			Help: "Actions started by an executor worker, labeled by description.",
		}, []string{"action_desc"}),
		ActionsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actions_failed_total",
			Help: "Actions that exhausted their retry budget, labeled by description.",
		}, []string{"action_desc"}),
		ActionsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "actions_dropped_total",
			Help: "Pending actions dropped due to queue overflow.",
		}),
		CurrentState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "current_state",
			Help: "Current classification: 0=unknown, 1=content, 2=slate.",
		}),
		SlateMatchScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slate_match_score",
			Help: "Last observed best similarity score against any slate.",
		}),
	}

	reg.MustRegister(
		r.FramesReceived,
		r.FramesSampled,
		r.FramesDecodedErrors,
		r.SlateMatches,
		r.Transitions,
		r.TransitionsUnmatched,
		r.ActionsDispatched,
		r.ActionsFailed,
		r.ActionsDropped,
		r.CurrentState,
		r.SlateMatchScore,
	)

	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for promhttp.Handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// FrameReceived implements internal/ingest.Metrics.
func (r *Registry) FrameReceived() {
	r.FramesReceived.Inc()
}

// FrameSampled implements internal/ingest.Metrics.
func (r *Registry) FrameSampled() {
	r.FramesSampled.Inc()
}

// FrameDecodeError implements internal/ingest.Metrics.
func (r *Registry) FrameDecodeError() {
	r.FramesDecodedErrors.Inc()
}

// ActionDispatched implements internal/action.Metrics.
func (r *Registry) ActionDispatched(actionDesc string) {
	r.ActionsDispatched.WithLabelValues(actionDesc).Inc()
}

// ActionFailed implements internal/action.Metrics.
func (r *Registry) ActionFailed(actionDesc string) {
	r.ActionsFailed.WithLabelValues(actionDesc).Inc()
}

// ActionDropped implements internal/action.Metrics.
func (r *Registry) ActionDropped() {
	r.ActionsDropped.Inc()
}
