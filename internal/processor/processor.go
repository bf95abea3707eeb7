// Package processor decides, frame by frame, whether to emit a full
// snapshot or an incremental diff, and encodes the result.
package processor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crimson-sun/replay/internal/diff"
	"github.com/crimson-sun/replay/internal/encoder"
	"github.com/crimson-sun/replay/internal/metrics"
	"github.com/crimson-sun/replay/internal/model"
	"github.com/crimson-sun/replay/internal/wire"
)

// ErrNilFrame is returned when a frame or its root is nil.
var ErrNilFrame = errors.New("processor: nil frame")

var encodeIncremental = encoder.Incremental

// Option configures a Processor.
type Option func(*Processor)

// WithHref sets the href written into Meta events.
func WithHref(href string) Option {
	return func(p *Processor) { p.href = href }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithMetrics sets the metrics sink. Default: unregistered collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// Processor turns a sequence of frames into replay events. It remembers
// the most recent frame and diffs each new one against it.
// Safe for concurrent use, though frames are expected from one goroutine.
type Processor struct {
	href    string
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	last      *model.Frame
	lastFlat  []model.SnapshotNode
	forceFull bool
}

// New creates a Processor with no prior frame.
func New(opts ...Option) *Processor {
	p := &Processor{href: "app://"}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.metrics = metrics.Or(p.metrics)
	return p
}

// Process encodes f. It returns [Meta, FullSnapshot] for the first frame,
// after OnNewScreen or ForceFullSnapshot, and whenever the viewport size
// or the root element changed. Otherwise it returns one Incremental event,
// or nothing if the frame is unchanged.
func (p *Processor) Process(f *model.Frame) ([]wire.Event, error) {
	if f == nil || f.Root == nil {
		return nil, ErrNilFrame
	}
	start := time.Now()
	defer func() { p.metrics.FrameDuration.Observe(time.Since(start).Seconds()) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	flat := model.Flatten(f.Root)
	if p.needsFullSnapshot(f) {
		events, err := p.fullSnapshot(f)
		if err != nil {
			return nil, err
		}
		p.remember(f, flat)
		p.forceFull = false
		p.logger.Debug("processor: full snapshot", "ts", f.TimestampMs, "nodes", len(flat))
		p.metrics.Frames.WithLabelValues("full_snapshot").Inc()
		return events, nil
	}

	ops := diff.Diff(p.lastFlat, flat)
	p.remember(f, flat)
	if len(ops) == 0 {
		p.metrics.Frames.WithLabelValues("unchanged").Inc()
		return nil, nil
	}
	for op, n := range diff.Count(ops) {
		p.metrics.DiffOperations.WithLabelValues(op).Add(float64(n))
	}

	e, err := encodeIncremental(f.TimestampMs, ops)
	if err != nil {
		// f is already the diff base, so its changes would never be written.
		p.forceFull = true
		return nil, fmt.Errorf("processor: incremental: %w", err)
	}
	p.logger.Debug("processor: incremental", "ts", f.TimestampMs, "ops", encoder.Describe(ops))
	p.metrics.Frames.WithLabelValues("incremental").Inc()
	return []wire.Event{e}, nil
}

// ProcessFrames processes frames in order and concatenates their events.
func (p *Processor) ProcessFrames(frames []*model.Frame) ([]wire.Event, error) {
	var out []wire.Event
	for i, f := range frames {
		events, err := p.Process(f)
		if err != nil {
			return out, fmt.Errorf("processor: frame %d: %w", i, err)
		}
		out = append(out, events...)
	}
	return out, nil
}

// OnNewScreen forgets the previous frame so the next one is encoded as a
// full snapshot.
func (p *Processor) OnNewScreen() {
	p.mu.Lock()
	p.last = nil
	p.lastFlat = nil
	p.mu.Unlock()
}

// ForceFullSnapshot makes the next processed frame a full snapshot.
func (p *Processor) ForceFullSnapshot() {
	p.mu.Lock()
	p.forceFull = true
	p.mu.Unlock()
}

func (p *Processor) needsFullSnapshot(f *model.Frame) bool {
	switch {
	case p.last == nil, p.forceFull:
		return true
	case f.Width != p.last.Width, f.Height != p.last.Height:
		return true
	default:
		return f.Root.ID != p.last.Root.ID
	}
}

func (p *Processor) fullSnapshot(f *model.Frame) ([]wire.Event, error) {
	meta, err := encoder.Meta(f.TimestampMs, p.href, f.Width, f.Height)
	if err != nil {
		return nil, fmt.Errorf("processor: meta: %w", err)
	}
	full, err := encoder.FullSnapshot(f.TimestampMs, f.Root)
	if err != nil {
		return nil, fmt.Errorf("processor: full snapshot: %w", err)
	}
	return []wire.Event{meta, full}, nil
}

func (p *Processor) remember(f *model.Frame, flat []model.SnapshotNode) {
	p.last = f
	p.lastFlat = flat
}
