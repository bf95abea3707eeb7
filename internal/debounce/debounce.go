// Package debounce coalesces bursts of capture triggers.
//
// A trigger is executed after a quiet delay unless another trigger
// replaces it first. To bound latency under sustained activity, a trigger
// that arrives more than the max delay after the last executed run (or
// after the first trigger of a burst that has not run yet) executes
// immediately.
package debounce

import (
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultDelay    = 64 * time.Millisecond
	DefaultMaxDelay = 1000 * time.Millisecond
)

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithClock sets the clock. Default: RealClock.
func WithClock(c Clock) Option {
	return func(d *Debouncer) { d.clock = c }
}

// WithDelay sets the quiet delay. Default: 64ms.
func WithDelay(delay time.Duration) Option {
	return func(d *Debouncer) { d.delay = delay }
}

// WithMaxDelay sets the latency bound. Default: 1s.
func WithMaxDelay(max time.Duration) Option {
	return func(d *Debouncer) { d.maxDelay = max }
}

// WithLogger sets the logger used to report panicking actions.
func WithLogger(l *slog.Logger) Option {
	return func(d *Debouncer) { d.logger = l }
}

// Debouncer runs the most recently supplied action once triggers go quiet.
type Debouncer struct {
	clock    Clock
	delay    time.Duration
	maxDelay time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	gen        uint64
	timer      Timer
	lastRun    time.Time
	burstStart time.Time
}

// New creates a Debouncer.
func New(opts ...Option) *Debouncer {
	d := &Debouncer{
		clock:    RealClock{},
		delay:    DefaultDelay,
		maxDelay: DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Debounce schedules action, replacing any pending one. The action runs
// on the clock's timer goroutine, or on the caller's goroutine when it
// runs immediately.
func (d *Debouncer) Debounce(action func()) {
	d.mu.Lock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	now := d.clock.Now()
	anchor := d.lastRun
	if anchor.IsZero() {
		if d.burstStart.IsZero() {
			d.burstStart = now
		}
		anchor = d.burstStart
	}

	if now.Sub(anchor) > d.maxDelay {
		d.markRun(now)
		d.mu.Unlock()
		d.run(action)
		return
	}

	gen := d.gen
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.gen != gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.markRun(d.clock.Now())
		d.mu.Unlock()
		d.run(action)
	})
	d.mu.Unlock()
}

// Stop cancels the pending action, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// markRun must be called with mu held.
func (d *Debouncer) markRun(at time.Time) {
	d.lastRun = at
	d.burstStart = time.Time{}
}

func (d *Debouncer) run(action func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("debounce: action panicked", "panic", r)
		}
	}()
	action()
}
