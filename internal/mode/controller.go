package mode

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/crimson-sun/replay/internal/metrics"
	"github.com/crimson-sun/replay/internal/model"
	"github.com/crimson-sun/replay/internal/processor"
	"github.com/crimson-sun/replay/internal/sink"
	"github.com/crimson-sun/replay/internal/wire"
)

const (
	// DefaultErrorWindow is how much recent activity error mode keeps.
	DefaultErrorWindow = 15 * time.Second
	// DefaultPruneInterval bounds how often error mode rewrites the log.
	DefaultPruneInterval = time.Second
)

// Reasons recorded with transitions.
const (
	ReasonError     = "error"
	ReasonCrash     = "crash"
	ReasonHTTPError = "http_error"
	ReasonPause     = "pause"
)

// Pruner trims old entries from the log error mode writes to.
type Pruner interface {
	PruneOlderThan(maxAge time.Duration) int
}

// Option configures a Controller.
type Option func(*Controller)

// WithPruner sets what error mode prunes to keep its sliding window.
// Without one, error mode behaves like full mode.
func WithPruner(p Pruner) Option {
	return func(c *Controller) { c.pruner = p }
}

// WithErrorWindow sets the sliding window kept in error mode. Default: 15s.
func WithErrorWindow(d time.Duration) Option {
	return func(c *Controller) { c.window = d }
}

// WithPruneInterval sets the minimum time between two prunes in error
// mode. Zero or less prunes after every frame. Default: 1s.
func WithPruneInterval(d time.Duration) Option {
	return func(c *Controller) { c.pruneInterval = d }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metrics sink. Default: unregistered collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller routes frames according to the current mode. All state is
// guarded by one mutex, so frames may arrive while the control goroutine
// changes modes or brackets a harvest.
type Controller struct {
	proc          *processor.Processor
	sink          sink.Sink
	pruner        Pruner
	window        time.Duration
	pruneInterval time.Duration
	prune         *rate.Sometimes
	logger        *slog.Logger
	metrics       *metrics.Metrics

	mu          sync.Mutex
	initialized bool
	mode        Mode
	takeFull    bool
	harvesting  bool
	buffer      []wire.Event
}

// NewController creates an uninitialized controller feeding proc's output
// to s.
func NewController(proc *processor.Processor, s sink.Sink, opts ...Option) *Controller {
	c := &Controller{
		proc:          proc,
		sink:          s,
		window:        DefaultErrorWindow,
		pruneInterval: DefaultPruneInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.metrics = metrics.Or(c.metrics)
	if c.pruneInterval > 0 {
		c.prune = &rate.Sometimes{Interval: c.pruneInterval}
	} else {
		c.prune = &rate.Sometimes{Every: 1}
	}
	return c
}

// Initialize sets the starting mode.
func (c *Controller) Initialize(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = true
	c.mode = m
	c.takeFull = m != Off
	c.metrics.InitialMode.WithLabelValues(m.String()).Inc()
	c.logger.Info("mode: initialized", "mode", m)
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Harvesting reports whether a harvest is in progress.
func (c *Controller) Harvesting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.harvesting
}

// TransitionTo switches to target. It returns false when the controller
// is uninitialized or already in target. Leaving off or entering full
// makes the next frame a full snapshot, since the last processed frame
// no longer describes what the log holds.
func (c *Controller) TransitionTo(target Mode, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transition(target, reason)
}

// SwitchOnError moves error mode to full mode. It returns false in any
// other mode.
func (c *Controller) SwitchOnError() bool {
	return c.switchOnError(ReasonError)
}

// HandleCrash reports an unhandled crash; it switches error mode to full.
func (c *Controller) HandleCrash() bool {
	return c.switchOnError(ReasonCrash)
}

// HandleHTTPError reports a completed request. Client and server errors
// switch error mode to full.
func (c *Controller) HandleHTTPError(status int) bool {
	if status < 400 || status > 599 {
		return false
	}
	return c.switchOnError(ReasonHTTPError)
}

// Pause turns recording off. It returns false if it already is.
func (c *Controller) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == Off {
		return false
	}
	return c.transition(Off, ReasonPause)
}

// OnHarvestStart starts holding events in memory so the reporter can read
// the log undisturbed. It only applies in full mode, but once started the
// bracket lasts until OnHarvestComplete whatever the mode becomes.
func (c *Controller) OnHarvestStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != Full {
		return false
	}
	c.harvesting = true
	return true
}

// OnHarvestComplete writes the events held since OnHarvestStart, in order.
func (c *Controller) OnHarvestComplete() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.harvesting {
		return nil
	}
	c.harvesting = false
	events := c.buffer
	c.buffer = nil
	c.metrics.HarvestBuffered.Set(0)
	if len(events) == 0 {
		return nil
	}
	err := c.sink.Append(events)
	if c.mode == Error {
		c.pruneWindow()
	}
	return err
}

// HandleFrame processes one captured frame according to the current mode.
// Frames are dropped while off or before Initialize.
func (c *Controller) HandleFrame(f *model.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized || c.mode == Off {
		c.metrics.Frames.WithLabelValues("dropped").Inc()
		return nil
	}
	if c.takeFull {
		c.proc.ForceFullSnapshot()
		c.takeFull = false
	}

	events, err := c.proc.Process(f)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	// Held events must reach the log before anything newer.
	if c.harvesting {
		c.buffer = append(c.buffer, events...)
		c.metrics.HarvestBuffered.Set(float64(len(c.buffer)))
		return nil
	}

	switch c.mode {
	case Full:
		return c.sink.Append(events)
	default:
		err := c.sink.Append(events)
		c.pruneWindow()
		return err
	}
}

// transition must be called with mu held.
func (c *Controller) transition(target Mode, reason string) bool {
	if !c.initialized || c.mode == target {
		return false
	}
	from := c.mode
	c.mode = target
	if target == Full || from == Off {
		c.takeFull = true
	}
	c.metrics.ModeTransitions.WithLabelValues(from.String(), target.String()).Inc()
	c.logger.Info("mode: transition", "from", from, "to", target, "reason", reason)
	return true
}

func (c *Controller) switchOnError(reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != Error {
		return false
	}
	return c.transition(Full, reason)
}

// pruneWindow must be called with mu held.
func (c *Controller) pruneWindow() {
	if c.pruner == nil {
		return
	}
	c.prune.Do(func() {
		if n := c.pruner.PruneOlderThan(c.window); n > 0 {
			// The window may now start mid-stream; re-anchor it.
			c.takeFull = true
			c.logger.Debug("mode: pruned error window", "lines", n)
		}
	})
}
