package replay

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/crimson-sun/replay/internal/config"
	"github.com/crimson-sun/replay/internal/debounce"
	"github.com/crimson-sun/replay/internal/eventlog"
	"github.com/crimson-sun/replay/internal/metrics"
	"github.com/crimson-sun/replay/internal/mode"
	"github.com/crimson-sun/replay/internal/pipeline"
	"github.com/crimson-sun/replay/internal/processor"
	"github.com/crimson-sun/replay/internal/sink"
	"github.com/crimson-sun/replay/internal/sink/multi"
	"github.com/crimson-sun/replay/internal/wire"
)

// ErrClosed is returned by operations on a closed Session.
var ErrClosed = errors.New("replay: session closed")

// Session records one app session into its own log.
// Safe for concurrent use.
type Session struct {
	id      string
	storage *eventlog.DirStorage
	log     *eventlog.Log
	proc    *processor.Processor
	ctrl    *mode.Controller
	rec     *pipeline.Recorder
	logger  *slog.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// New opens a session log and starts recording in the configured mode.
func New(opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.cfgFile != "" {
		cfg, err := config.LoadFile(o.cfgFile)
		if err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
		// Explicit options still win over the file.
		o = options{cfg: cfg}
		for _, opt := range opts {
			opt(&o)
		}
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	initial, err := o.cfg.Mode()
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	id := o.cfg.Storage.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", id)
	m := metrics.New(o.registerer)

	storage, err := eventlog.NewDirStorage(o.cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	log := eventlog.New(storage, id, eventlog.WithLogger(logger), eventlog.WithMetrics(m))
	if err := log.Initialize(); err != nil {
		return nil, fmt.Errorf("replay: open log: %w", err)
	}

	proc := processor.New(
		processor.WithHref(o.cfg.Recording.Href),
		processor.WithLogger(logger),
		processor.WithMetrics(m),
	)
	sinks := []sink.Sink{log}
	for _, f := range o.listeners {
		sinks = append(sinks, listener(f, logger))
	}
	ctrl := mode.NewController(proc, multi.New(sinks...),
		mode.WithPruner(log),
		mode.WithErrorWindow(o.cfg.Recording.ErrorWindow),
		mode.WithLogger(logger),
		mode.WithMetrics(m),
	)
	ctrl.Initialize(initial)

	debOpts := []debounce.Option{
		debounce.WithDelay(o.cfg.Recording.QuietDelay),
		debounce.WithMaxDelay(o.cfg.Recording.MaxDelay),
		debounce.WithLogger(logger),
	}
	if o.clock != nil {
		debOpts = append(debOpts, debounce.WithClock(o.clock))
	}
	recOpts := []pipeline.Option{
		pipeline.WithBufferSize(o.cfg.Recording.QueueSize),
		pipeline.WithDebouncer(debounce.New(debOpts...)),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
	}
	if o.dropOnFull {
		recOpts = append(recOpts, pipeline.WithDropOnFull())
	}

	return &Session{
		id:      id,
		storage: storage,
		log:     log,
		proc:    proc,
		ctrl:    ctrl,
		rec:     pipeline.New(ctrl, recOpts...),
		logger:  logger,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Path returns the session log's file path.
func (s *Session) Path() string { return s.storage.Path(s.log.Name()) }

// Mode returns the current recording mode.
func (s *Session) Mode() Mode { return s.ctrl.Mode() }

// Trigger requests a capture. Bursts are coalesced and only the last
// capture function runs, off the caller's goroutine. A nil frame is
// ignored.
func (s *Session) Trigger(capture func() *Frame) { s.rec.Trigger(capture) }

// Record submits an already captured frame through the debouncer.
func (s *Session) Record(f *Frame) { s.rec.Record(f) }

// Capture queues f for processing immediately, bypassing the debouncer.
func (s *Session) Capture(f *Frame) { s.rec.Submit(f) }

// OnNewScreen makes the next frame a full snapshot. Frames captured
// before the call are still encoded against the previous screen.
func (s *Session) OnNewScreen() { s.rec.Do(s.proc.OnNewScreen) }

// TransitionTo switches the recording mode. It reports whether the mode
// changed.
func (s *Session) TransitionTo(m Mode, reason string) bool { return s.ctrl.TransitionTo(m, reason) }

// SwitchOnError keeps the error window and continues in full mode. It
// only applies in error mode.
func (s *Session) SwitchOnError() bool { return s.ctrl.SwitchOnError() }

// HandleCrash reports an unhandled crash.
func (s *Session) HandleCrash() bool { return s.ctrl.HandleCrash() }

// HandleHTTPError reports a completed request with the given status.
func (s *Session) HandleHTTPError(status int) bool { return s.ctrl.HandleHTTPError(status) }

// Pause stops recording until the next transition.
func (s *Session) Pause() bool { return s.ctrl.Pause() }

// OnHarvestStart holds new events in memory until OnHarvestComplete.
func (s *Session) OnHarvestStart() bool { return s.ctrl.OnHarvestStart() }

// OnHarvestComplete writes the events held since OnHarvestStart.
func (s *Session) OnHarvestComplete() error { return s.ctrl.OnHarvestComplete() }

// ReadAll returns every event in the session log.
func (s *Session) ReadAll() ([]Event, error) { return s.log.ReadAll() }

// Harvest hands the recorded events to upload and, when it succeeds,
// clears the log. Events produced meanwhile are held back and written
// afterwards. In error mode nothing is harvested: the window is kept
// until an error switches the session to full mode.
func (s *Session) Harvest(upload func(events []Event) error) error {
	if s.isClosed() {
		return ErrClosed
	}
	if s.ctrl.Mode() == ModeError {
		return nil
	}
	s.ctrl.OnHarvestStart()

	events, err := s.log.ReadAll()
	if err == nil && len(events) > 0 {
		if err = upload(events); err == nil {
			s.log.ClearWhileRunning()
		}
	}
	if ferr := s.ctrl.OnHarvestComplete(); ferr != nil {
		err = errors.Join(err, ferr)
	}
	if err != nil {
		return fmt.Errorf("replay: harvest: %w", err)
	}
	return nil
}

// Discard stops recording and deletes the session log.
func (s *Session) Discard() error {
	s.Close()
	if err := s.log.Discard(); err != nil {
		return fmt.Errorf("replay: discard: %w", err)
	}
	return nil
}

// Close stops recording, waits for queued frames and releases the log.
// The log file is kept for a later upload.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.rec.Close()
		if err := s.ctrl.OnHarvestComplete(); err != nil {
			s.logger.Warn("replay: flushing harvest buffer", "error", err)
		}
		s.log.Shutdown()
	})
	return nil
}

// listener adapts f to a sink whose failures are logged, not returned.
func listener(f func(events []Event) error, logger *slog.Logger) sink.Sink {
	return sink.Func(func(events []wire.Event) error {
		if err := f(events); err != nil {
			logger.Warn("replay: listener failed", "events", len(events), "error", err)
		}
		return nil
	})
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
