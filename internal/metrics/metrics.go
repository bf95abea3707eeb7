// Package metrics holds the prometheus collectors of a recording session.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "replay"

// Metrics is the set of collectors shared by the recording pipeline.
type Metrics struct {
	// Frames counts processed frames by outcome
	// (full_snapshot, incremental, unchanged, dropped).
	Frames *prometheus.CounterVec
	// FrameDuration tracks diff+encode latency per frame.
	FrameDuration prometheus.Histogram
	// DiffOperations counts diff operations by kind (add, remove, update).
	DiffOperations *prometheus.CounterVec

	EventsAppended prometheus.Counter
	WriteFailures  prometheus.Counter
	LinesSkipped   prometheus.Counter
	LinesPruned    prometheus.Counter

	// ModeTransitions counts accepted mode changes by from/to.
	ModeTransitions *prometheus.CounterVec
	// InitialMode counts sessions by the mode they started in.
	InitialMode *prometheus.CounterVec
	// HarvestBuffered is the number of events held back during a harvest.
	HarvestBuffered prometheus.Gauge

	// QueueDropped counts frames dropped because the capture queue was full.
	QueueDropped prometheus.Counter
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is what tests and embedders
// without a metrics endpoint want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Frames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames processed, by outcome.",
		}, []string{"outcome"}),
		FrameDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_process_seconds",
			Help:      "Time spent diffing and encoding one frame.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
		}),
		DiffOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diff_operations_total",
			Help:      "Diff operations emitted, by kind.",
		}, []string{"op"}),
		EventsAppended: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_events_appended_total",
			Help:      "Events appended to the session log.",
		}),
		WriteFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_write_failures_total",
			Help:      "Session log appends, prunes and clears that failed.",
		}),
		LinesSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_lines_skipped_total",
			Help:      "Malformed session log lines skipped on read.",
		}),
		LinesPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_lines_pruned_total",
			Help:      "Session log lines dropped by pruning.",
		}),
		ModeTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_transitions_total",
			Help:      "Recording mode changes.",
		}, []string{"from", "to"}),
		InitialMode: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "initial_mode_total",
			Help:      "Sessions by initial recording mode.",
		}, []string{"mode"}),
		HarvestBuffered: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "harvest_buffered_events",
			Help:      "Events held in memory while a harvest is in progress.",
		}),
		QueueDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_dropped_frames_total",
			Help:      "Frames dropped because the capture queue was full.",
		}),
	}
}

// Or returns m, or a fresh unregistered set when m is nil.
func Or(m *Metrics) *Metrics {
	if m != nil {
		return m
	}
	return New(nil)
}
