package replay

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/replay/internal/config"
	"github.com/crimson-sun/replay/internal/debounce"
	"github.com/crimson-sun/replay/internal/wire"
)

func screen(ts int64, label string) *Frame {
	return &Frame{
		TimestampMs: ts,
		Width:       390,
		Height:      844,
		Root: &Node{ID: 16, Bounds: Rect{Width: 390, Height: 844}, Children: []Node{
			{ID: 17, Kind: Text{Content: label}, Bounds: Rect{X: 10, Y: 20, Width: 100, Height: 24}},
			{ID: 18, Kind: Input{Value: "", Hint: "email"}},
		}},
	}
}

func now() int64 { return time.Now().UnixMilli() }

func open(t *testing.T, opts ...Option) *Session {
	t.Helper()
	base := []Option{WithDir(t.TempDir()), WithSessionID("test")}
	s, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func types(events []Event) []wire.EventType {
	out := make([]wire.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func eventually(t *testing.T, s *Session, n int) []Event {
	t.Helper()
	var events []Event
	require.Eventually(t, func() bool {
		var err error
		events, err = s.ReadAll()
		return err == nil && len(events) == n
	}, 2*time.Second, 5*time.Millisecond)
	return events
}

var (
	meta = wire.TypeMeta
	full = wire.TypeFullSnapshot
	incr = wire.TypeIncremental
)

func TestFullModeWritesLog(t *testing.T) {
	s := open(t, WithMode(ModeFull))
	ts := now()
	s.Capture(screen(ts, "Sign in"))
	s.Capture(screen(ts+100, "Signing in"))
	require.NoError(t, s.Close())

	events, err := s.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []wire.EventType{meta, full, incr}, types(events))
	assert.Equal(t, "sessionreplay-test.ndjson", filepath.Base(s.Path()))
	assert.FileExists(t, s.Path())
}

func TestOffModeWritesNothing(t *testing.T) {
	s := open(t, WithMode(ModeOff))
	s.Capture(screen(now(), "a"))
	require.NoError(t, s.Close())

	events, err := s.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTriggerIsDebounced(t *testing.T) {
	clock := debounce.NewManualClock(time.Now())
	s := open(t, WithMode(ModeFull), WithClock(clock))

	ts := now()
	for i := range 3 {
		s.Trigger(func() *Frame { return screen(ts+int64(i), "tick") })
		clock.Advance(10 * time.Millisecond)
	}
	clock.Advance(debounce.DefaultDelay)
	require.NoError(t, s.Close())

	events, err := s.ReadAll()
	require.NoError(t, err)
	require.Equal(t, []wire.EventType{meta, full}, types(events))
	assert.Equal(t, ts+2, events[1].Timestamp)
}

func TestHarvestUploadsAndClears(t *testing.T) {
	s := open(t, WithMode(ModeFull))
	ts := now()
	s.Capture(screen(ts, "a"))
	eventually(t, s, 2)

	var uploaded []Event
	require.NoError(t, s.Harvest(func(events []Event) error {
		uploaded = events
		return nil
	}))
	assert.Equal(t, []wire.EventType{meta, full}, types(uploaded))

	events, err := s.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, events)

	s.Capture(screen(ts+50, "b"))
	assert.Equal(t, []wire.EventType{incr}, types(eventually(t, s, 1)))
}

func TestHarvestFailureKeepsLog(t *testing.T) {
	s := open(t, WithMode(ModeFull))
	s.Capture(screen(now(), "a"))
	eventually(t, s, 2)

	boom := errors.New("network down")
	err := s.Harvest(func([]Event) error { return boom })
	assert.ErrorIs(t, err, boom)
	eventually(t, s, 2)
}

func TestHarvestSkippedInErrorMode(t *testing.T) {
	s := open(t, WithMode(ModeError))
	s.Capture(screen(now(), "a"))
	eventually(t, s, 2)

	called := false
	require.NoError(t, s.Harvest(func([]Event) error {
		called = true
		return nil
	}))
	assert.False(t, called)
	eventually(t, s, 2)
}

func TestErrorSwitchKeepsWindowAndTakesFullSnapshot(t *testing.T) {
	s := open(t, WithMode(ModeError))
	ts := now()
	s.Capture(screen(ts, "a"))
	s.Capture(screen(ts+10, "b"))
	eventually(t, s, 3)

	require.True(t, s.HandleHTTPError(500))
	assert.Equal(t, ModeFull, s.Mode())
	assert.False(t, s.SwitchOnError(), "already full")

	s.Capture(screen(ts+20, "b"))
	events := eventually(t, s, 5)
	assert.Equal(t, []wire.EventType{meta, full, incr, meta, full}, types(events))
}

func TestPauseAndResume(t *testing.T) {
	s := open(t, WithMode(ModeFull))
	ts := now()
	s.Capture(screen(ts, "a"))
	eventually(t, s, 2)

	require.True(t, s.Pause())
	s.Capture(screen(ts+10, "b"))
	require.True(t, s.TransitionTo(ModeFull, "resume"))
	s.Capture(screen(ts+20, "c"))
	events := eventually(t, s, 4)
	assert.Equal(t, ts+20, events[3].Timestamp)
}

func TestOnNewScreenForcesFullSnapshot(t *testing.T) {
	s := open(t, WithMode(ModeFull))
	ts := now()
	s.Capture(screen(ts, "a"))
	eventually(t, s, 2)
	s.OnNewScreen()
	s.Capture(screen(ts+10, "a"))
	assert.Equal(t, []wire.EventType{meta, full, meta, full}, types(eventually(t, s, 4)))
}

func TestOnNewScreenAppliesAfterQueuedFrames(t *testing.T) {
	s := open(t, WithMode(ModeFull))
	ts := now()
	s.Capture(screen(ts, "a"))
	s.OnNewScreen()
	s.Capture(screen(ts+10, "a"))

	events := eventually(t, s, 4)
	assert.Equal(t, []wire.EventType{meta, full, meta, full}, types(events))
	assert.Equal(t, ts, events[1].Timestamp)
	assert.Equal(t, ts+10, events[3].Timestamp)
}

func TestListenerSeesEvents(t *testing.T) {
	var mu sync.Mutex
	var seen []Event
	s := open(t, WithMode(ModeFull), WithListener(func(events []Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, events...)
		return errors.New("ignored")
	}))
	s.Capture(screen(now(), "a"))
	require.NoError(t, s.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 2)
}

func TestDiscardRemovesLog(t *testing.T) {
	s := open(t, WithMode(ModeFull))
	s.Capture(screen(now(), "a"))
	eventually(t, s, 2)

	require.NoError(t, s.Discard())
	_, err := os.Stat(s.Path())
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorIs(t, s.Harvest(func([]Event) error { return nil }), ErrClosed)
}

func TestResumesExistingLog(t *testing.T) {
	dir := t.TempDir()
	s, err := New(WithDir(dir), WithSessionID("same"), WithMode(ModeFull))
	require.NoError(t, err)
	s.Capture(screen(now(), "a"))
	require.NoError(t, s.Close())

	s, err = New(WithDir(dir), WithSessionID("same"), WithMode(ModeFull))
	require.NoError(t, err)
	defer s.Close()
	s.Capture(screen(now(), "a"))
	assert.Equal(t, []wire.EventType{meta, full, meta, full}, types(eventually(t, s, 4)))
}

func TestSessionIDIsMinted(t *testing.T) {
	s, err := New(WithDir(t.TempDir()))
	require.NoError(t, err)
	defer s.Close()
	_, err = uuid.Parse(s.ID())
	assert.NoError(t, err)
	assert.Equal(t, ModeError, s.Mode())
}

func TestInvalidConfiguration(t *testing.T) {
	_, err := New(WithDir(t.TempDir()), WithQueueSize(0))
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = New(WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigFileWithOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "replay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recording:\n  mode: off\nstorage:\n  dir: "+dir+"\n"), 0o644))

	s, err := New(WithConfigFile(path), WithSessionID("cfg"))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, ModeOff, s.Mode())
	assert.Equal(t, filepath.Join(dir, "sessionreplay-cfg.ndjson"), s.Path())

	s2, err := New(WithConfigFile(path), WithMode(ModeFull), WithSessionID("cfg2"))
	require.NoError(t, err)
	defer s2.Close()
	assert.Equal(t, ModeFull, s2.Mode(), "explicit options win over the file")
}

func TestEnvOverlaysConfigFile(t *testing.T) {
	for _, key := range []string{"REPLAY_MODE", "REPLAY_DIR", "REPLAY_QUEUE_SIZE"} {
		t.Setenv(key, "")
	}
	t.Setenv("REPLAY_SESSION_ID", "from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "replay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recording:\n  mode: full\nstorage:\n  dir: "+dir+"\n"), 0o644))

	s, err := New(WithConfigFile(path), WithEnv())
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, ModeFull, s.Mode(), "file values survive WithEnv")
	assert.Equal(t, filepath.Join(dir, "sessionreplay-from-env.ndjson"), s.Path())
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := open(t, WithMode(ModeFull), WithRegisterer(reg))
	s.Capture(screen(now(), "a"))
	require.NoError(t, s.Close())

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["replay_log_events_appended_total"])
	assert.True(t, names["replay_frames_total"])
}
