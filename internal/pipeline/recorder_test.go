package pipeline

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/replay/internal/debounce"
	"github.com/crimson-sun/replay/internal/metrics"
	"github.com/crimson-sun/replay/internal/model"
)

type fakeHandler struct {
	mu     sync.Mutex
	frames []int64
	err    error
	delay  time.Duration
}

func (h *fakeHandler) HandleFrame(f *model.Frame) error {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, f.TimestampMs)
	return h.err
}

func (h *fakeHandler) seen() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.frames...)
}

func frame(ts int64) *model.Frame {
	return &model.Frame{TimestampMs: ts, Root: &model.SnapshotNode{ID: 16}}
}

func manual() (*debounce.Debouncer, *debounce.ManualClock) {
	clock := debounce.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return debounce.New(debounce.WithClock(clock)), clock
}

func TestRecordDebouncesBursts(t *testing.T) {
	h := &fakeHandler{}
	d, clock := manual()
	r := New(h, WithDebouncer(d))

	r.Record(frame(1))
	clock.Advance(10 * time.Millisecond)
	r.Record(frame(2))
	clock.Advance(10 * time.Millisecond)
	r.Record(frame(3))
	clock.Advance(debounce.DefaultDelay)

	r.Close()
	assert.Equal(t, []int64{3}, h.seen())
}

func TestTriggerCapturesLazily(t *testing.T) {
	h := &fakeHandler{}
	d, clock := manual()
	r := New(h, WithDebouncer(d))

	var captures atomic.Int32
	for range 5 {
		r.Trigger(func() *model.Frame {
			captures.Add(1)
			return frame(9)
		})
	}
	r.Trigger(func() *model.Frame { return nil })
	clock.Advance(debounce.DefaultDelay)
	r.Close()

	assert.Zero(t, captures.Load(), "only the last capture runs")
	assert.Empty(t, h.seen())
}

func TestSubmitPreservesOrder(t *testing.T) {
	h := &fakeHandler{}
	r := New(h, WithBufferSize(4))
	for i := range 20 {
		r.Submit(frame(int64(i)))
	}
	r.Close()

	seen := h.seen()
	require.Len(t, seen, 20)
	for i, ts := range seen {
		assert.Equal(t, int64(i), ts)
	}
}

func TestDoRunsAfterQueuedFrames(t *testing.T) {
	h := &fakeHandler{delay: 5 * time.Millisecond}
	r := New(h, WithBufferSize(8), WithDropOnFull())
	r.Submit(frame(1))
	r.Submit(frame(2))
	var seenAtStep []int64
	r.Do(func() { seenAtStep = h.seen() })
	r.Submit(frame(3))
	r.Close()

	assert.Equal(t, []int64{1, 2}, seenAtStep)
	assert.Equal(t, []int64{1, 2, 3}, h.seen())
}

func TestHandlerErrorsGoToCallback(t *testing.T) {
	h := &fakeHandler{err: errors.New("boom")}
	var got atomic.Int32
	r := New(h, WithOnError(func(error) { got.Add(1) }))
	r.Submit(frame(1))
	r.Submit(frame(2))
	r.Close()
	assert.Equal(t, int32(2), got.Load())
}

func TestDropOnFull(t *testing.T) {
	h := &fakeHandler{delay: 20 * time.Millisecond}
	m := metrics.New(nil)
	r := New(h, WithBufferSize(1), WithDropOnFull(), WithMetrics(m))
	for i := range 20 {
		r.Submit(frame(int64(i)))
	}
	r.Close()

	assert.Less(t, len(h.seen()), 20)
	assert.NotEmpty(t, h.seen())
	assert.Equal(t, float64(20-len(h.seen())), testutil.ToFloat64(m.QueueDropped))
}

func TestCloseIsIdempotentAndRejectsLateFrames(t *testing.T) {
	h := &fakeHandler{}
	r := New(h)
	r.Close()
	r.Close()
	r.Submit(frame(1))
	assert.Empty(t, h.seen())
}

func TestCloseCancelsPendingTrigger(t *testing.T) {
	h := &fakeHandler{}
	d, clock := manual()
	r := New(h, WithDebouncer(d))
	r.Record(frame(1))
	r.Close()
	clock.Advance(time.Second)
	assert.Empty(t, h.seen())
}
