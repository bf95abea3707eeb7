// Package pipeline moves captured frames off the capture goroutine:
// triggers are debounced, the resulting frames queue on a buffered
// channel, and a single background goroutine feeds them to the handler.
package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/crimson-sun/replay/internal/debounce"
	"github.com/crimson-sun/replay/internal/metrics"
	"github.com/crimson-sun/replay/internal/model"
)

const (
	defaultBufferSize   = 64
	defaultDrainTimeout = 5 * time.Second
)

// Handler consumes frames. Frames reach it one at a time, in order.
type Handler interface {
	HandleFrame(f *model.Frame) error
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithBufferSize sets the queue capacity. Default: 64.
func WithBufferSize(n int) Option {
	return func(r *Recorder) { r.bufSize = n }
}

// WithOnError sets the callback invoked when the handler fails.
// Default: logs a warning via slog.
func WithOnError(f func(error)) Option {
	return func(r *Recorder) { r.errFunc = f }
}

// WithDropOnFull drops frames when the queue is full instead of blocking
// the capture goroutine.
func WithDropOnFull() Option {
	return func(r *Recorder) { r.dropOnFull = true }
}

// WithDebouncer sets the debouncer triggers go through. Default: a
// debouncer on the wall clock with the standard delays.
func WithDebouncer(d *debounce.Debouncer) Option {
	return func(r *Recorder) { r.debouncer = d }
}

// WithDrainTimeout bounds how long Close waits for queued frames.
// Default: 5s.
func WithDrainTimeout(d time.Duration) Option {
	return func(r *Recorder) { r.drainTimeout = d }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// WithMetrics sets the metrics sink. Default: unregistered collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// task is a queued frame, or a step to run between frames.
type task struct {
	frame *model.Frame
	fn    func()
}

// Recorder decouples capture triggers from frame processing.
type Recorder struct {
	handler      Handler
	debouncer    *debounce.Debouncer
	ch           chan task
	done         chan struct{}
	errFunc      func(error)
	bufSize      int
	dropOnFull   bool
	drainTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// New creates a Recorder feeding h. The drain goroutine starts immediately.
func New(h Handler, opts ...Option) *Recorder {
	r := &Recorder{
		handler:      h,
		bufSize:      defaultBufferSize,
		drainTimeout: defaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.errFunc == nil {
		r.errFunc = func(err error) { r.logger.Warn("pipeline: frame handling failed", "error", err) }
	}
	if r.debouncer == nil {
		r.debouncer = debounce.New(debounce.WithLogger(r.logger))
	}
	r.metrics = metrics.Or(r.metrics)
	r.ch = make(chan task, r.bufSize)
	r.done = make(chan struct{})
	go r.drain()
	return r
}

// Trigger asks for a capture. Bursts of triggers are coalesced and only
// the last capture function runs; a nil frame from it is ignored.
func (r *Recorder) Trigger(capture func() *model.Frame) {
	r.debouncer.Debounce(func() {
		if f := capture(); f != nil {
			r.enqueue(task{frame: f})
		}
	})
}

// Record submits an already captured frame through the debouncer.
func (r *Recorder) Record(f *model.Frame) {
	r.Trigger(func() *model.Frame { return f })
}

// Submit queues f immediately, bypassing the debouncer.
func (r *Recorder) Submit(f *model.Frame) {
	if f != nil {
		r.enqueue(task{frame: f})
	}
}

// Do runs fn on the drain goroutine once every frame queued before it has
// been handled. Steps are never dropped, even with WithDropOnFull.
func (r *Recorder) Do(fn func()) {
	if fn != nil {
		r.enqueue(task{fn: fn})
	}
}

// Close cancels any pending trigger, stops accepting frames and waits
// (up to the drain timeout) for queued frames to be handled.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.debouncer.Stop()
		r.mu.Lock()
		r.closed = true
		close(r.ch)
		r.mu.Unlock()

		select {
		case <-r.done:
		case <-time.After(r.drainTimeout):
			r.logger.Warn("pipeline: drain timed out")
		}
	})
}

func (r *Recorder) enqueue(t task) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	if r.dropOnFull && t.frame != nil {
		select {
		case r.ch <- t:
		default:
			r.metrics.QueueDropped.Inc()
			r.logger.Warn("pipeline: queue full, dropping frame", "ts", t.frame.TimestampMs)
		}
		return
	}
	r.ch <- t
}

// drain hands queued frames to the handler.
func (r *Recorder) drain() {
	defer close(r.done)
	for t := range r.ch {
		if t.fn != nil {
			t.fn()
			continue
		}
		if err := r.handler.HandleFrame(t.frame); err != nil {
			r.errFunc(err)
		}
	}
}
