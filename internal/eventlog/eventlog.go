// Package eventlog persists replay events as an append-only NDJSON log,
// one file per session.
//
// All operations on a Log serialize on a single mutex, so appends, prunes
// and clears are totally ordered and lines never interleave. Write
// failures are logged and counted rather than returned: the next append
// may succeed once the disk recovers, and upload retries are the
// reporter's business.
package eventlog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/crimson-sun/replay/internal/metrics"
	"github.com/crimson-sun/replay/internal/wire"
)

const (
	filePrefix = "sessionreplay-"
	fileSuffix = ".ndjson"
)

// ErrClosed is returned when appending to a log after Shutdown.
var ErrClosed = errors.New("eventlog: log is shut down")

// FileName returns the log file name for a session.
func FileName(sessionID string) string {
	return filePrefix + sessionID + fileSuffix
}

// SessionIDFromName is the inverse of FileName.
func SessionIDFromName(name string) (string, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	return id, id != ""
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Log) { g.logger = l }
}

// WithMetrics sets the metrics sink. Default: unregistered collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Log) { g.metrics = m }
}

// WithClock sets the time source used by PruneOlderThan. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Log) { g.now = now }
}

// Log is the event log of one session.
type Log struct {
	storage   Storage
	sessionID string
	name      string
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu       sync.Mutex
	h        Handle
	shutdown bool
}

// New returns the log of sessionID in storage. Nothing is opened until
// Initialize or the first Append.
func New(storage Storage, sessionID string, opts ...Option) *Log {
	g := &Log{
		storage:   storage,
		sessionID: sessionID,
		name:      FileName(sessionID),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With("session", sessionID)
	g.metrics = metrics.Or(g.metrics)
	return g
}

// SessionID returns the session the log belongs to.
func (g *Log) SessionID() string { return g.sessionID }

// Name returns the log's storage name.
func (g *Log) Name() string { return g.name }

// Initialize opens the log, resuming an existing file of the same
// session. A trailing partial line left by a crash is terminated so it
// stays an isolated, skippable line. Calling Initialize on an open log
// does nothing.
func (g *Log) Initialize() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.shutdown = false
	return g.open()
}

// Append writes events, one line each, as a single write followed by a
// sync. It only fails after Shutdown; I/O errors are logged and counted,
// and the handle is reopened by the next call.
func (g *Log) Append(events []wire.Event) error {
	if len(events) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, e := range events {
		line, err := wire.MarshalLine(e)
		if err != nil {
			g.logger.Warn("eventlog: dropping unencodable event", "type", e.Type, "error", err)
			continue
		}
		buf.Write(line)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.shutdown {
		return ErrClosed
	}
	if err := g.open(); err != nil {
		g.fail("append", err)
		return nil
	}
	// After a failed write the file may end mid-line. Dropping the handle
	// makes the next open terminate that line before anything follows it.
	if _, err := g.h.Write(buf.Bytes()); err != nil {
		g.fail("append", err)
		g.close()
		return nil
	}
	if err := g.h.Sync(); err != nil {
		g.fail("sync", err)
		g.close()
		return nil
	}
	g.metrics.EventsAppended.Add(float64(len(events)))
	return nil
}

// ReadAll returns every well-formed event in the log, in order. Malformed
// lines are skipped. A log that does not exist yet is empty.
func (g *Log) ReadAll() ([]wire.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var events []wire.Event
	err := g.scan(func(line []byte) {
		e, err := wire.UnmarshalLine(line)
		if err != nil {
			g.metrics.LinesSkipped.Inc()
			g.logger.Debug("eventlog: skipping malformed line", "error", err)
			return
		}
		events = append(events, e)
	})
	return events, err
}

// PruneOlderThan drops lines whose timestamp is before now-maxAge. Lines
// without a readable timestamp are kept. The file is rewritten atomically
// and the append handle reopened on the new content. It returns the number
// of lines dropped; failures are logged and report zero.
func (g *Log) PruneOlderThan(maxAge time.Duration) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().UnixMilli() - maxAge.Milliseconds()
	var kept bytes.Buffer
	pruned := 0
	err := g.scan(func(line []byte) {
		ts, err := wire.LineTimestamp(line)
		if err == nil && ts < cutoff {
			pruned++
			return
		}
		kept.Write(line)
		kept.WriteByte('\n')
	})
	if err != nil {
		g.fail("prune", err)
		return 0
	}
	if pruned == 0 {
		return 0
	}

	reopen := g.h != nil
	g.close()
	if err := g.storage.Replace(g.name, kept.Bytes()); err != nil {
		g.fail("prune", err)
		pruned = 0
	}
	if reopen {
		if err := g.open(); err != nil {
			g.fail("prune reopen", err)
		}
	}
	g.metrics.LinesPruned.Add(float64(pruned))
	return pruned
}

// ClearWhileRunning empties the log in place. The append handle stays
// open, so there is no window in which appends fail.
func (g *Log) ClearWhileRunning() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.shutdown {
		return
	}
	if err := g.open(); err != nil {
		g.fail("clear", err)
		return
	}
	if err := g.h.Truncate(0); err != nil {
		g.fail("clear", err)
	}
}

// Shutdown releases the file handle. It is safe to call repeatedly;
// Initialize reopens the log.
func (g *Log) Shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.shutdown = true
	g.close()
}

// Discard shuts the log down and deletes it, typically once it has been
// uploaded.
func (g *Log) Discard() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.shutdown = true
	g.close()
	return g.storage.Remove(g.name)
}

// open must be called with mu held.
func (g *Log) open() error {
	if g.h != nil {
		return nil
	}
	h, err := g.storage.Open(g.name)
	if err != nil {
		return err
	}
	if err := terminatePartialLine(h); err != nil {
		h.Close()
		return fmt.Errorf("eventlog: repair %s: %w", g.name, err)
	}
	g.h = h
	return nil
}

// close must be called with mu held.
func (g *Log) close() {
	if g.h == nil {
		return
	}
	if err := g.h.Close(); err != nil {
		g.logger.Warn("eventlog: close failed", "error", err)
	}
	g.h = nil
}

// scan calls fn for every non-blank line, without its newline.
// Must be called with mu held.
func (g *Log) scan(fn func(line []byte)) error {
	r, err := g.storage.Reader(g.name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer r.Close()

	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			fn(trimmed)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("eventlog: read %s: %w", g.name, err)
		}
	}
}

func (g *Log) fail(op string, err error) {
	g.metrics.WriteFailures.Inc()
	g.logger.Warn("eventlog: "+op+" failed", "error", err)
}

// terminatePartialLine appends a newline when the file does not end in one.
func terminatePartialLine(h Handle) error {
	info, err := h.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := h.ReadAt(last, info.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = h.Write([]byte{'\n'})
	return err
}

// Orphans lists sessions, other than active, whose logs are still in
// storage. They are left behind by runs that ended before uploading.
func Orphans(s Storage, active string) ([]string, error) {
	names, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range names {
		id, ok := SessionIDFromName(name)
		if ok && id != active {
			out = append(out, id)
		}
	}
	return out, nil
}
