package replay

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/crimson-sun/replay/internal/config"
)

type options struct {
	cfg        config.Config
	cfgFile    string
	logger     *slog.Logger
	registerer prometheus.Registerer
	clock      Clock
	listeners  []func(events []Event) error
	dropOnFull bool
}

// Option configures a Session.
type Option func(*options)

// WithEnv applies the REPLAY_* environment variables that are set, on top
// of the defaults or the config file. Options given after it take
// precedence.
func WithEnv() Option {
	return func(o *options) { o.cfg.ApplyEnv() }
}

// WithConfigFile loads settings from a YAML file (environment variables
// override it). The file is read by New; a read error fails New.
func WithConfigFile(path string) Option {
	return func(o *options) { o.cfgFile = path }
}

// WithDir sets the directory session logs are written to.
func WithDir(dir string) Option {
	return func(o *options) { o.cfg.Storage.Dir = dir }
}

// WithSessionID sets the session identifier. Default: a random UUID.
func WithSessionID(id string) Option {
	return func(o *options) { o.cfg.Storage.SessionID = id }
}

// WithMode sets the initial recording mode. Default: ModeError.
func WithMode(m Mode) Option {
	return func(o *options) { o.cfg.Recording.Mode = m.String() }
}

// WithHref sets the href reported in meta events. Default: "app://".
func WithHref(href string) Option {
	return func(o *options) { o.cfg.Recording.Href = href }
}

// WithErrorWindow sets how much recent activity error mode keeps.
// Default: 15s.
func WithErrorWindow(d time.Duration) Option {
	return func(o *options) { o.cfg.Recording.ErrorWindow = d }
}

// WithDelays sets the debouncer's quiet delay and latency bound.
// Default: 64ms and 1s.
func WithDelays(quiet, max time.Duration) Option {
	return func(o *options) {
		o.cfg.Recording.QuietDelay = quiet
		o.cfg.Recording.MaxDelay = max
	}
}

// WithQueueSize sets how many captured frames may wait for processing.
// Default: 64.
func WithQueueSize(n int) Option {
	return func(o *options) { o.cfg.Recording.QueueSize = n }
}

// WithDropOnFull drops frames instead of blocking the capturing goroutine
// when the processing queue is full.
func WithDropOnFull() Option {
	return func(o *options) { o.dropOnFull = true }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the session's metrics. Default: unregistered.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// WithClock sets the clock driving the trigger debouncer.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithListener receives every batch of events the session writes to its
// log, in order. Listener errors are logged and do not stop recording.
func WithListener(f func(events []Event) error) Option {
	return func(o *options) { o.listeners = append(o.listeners, f) }
}

func defaultOptions() options {
	return options{cfg: config.Default()}
}
