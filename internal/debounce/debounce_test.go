package debounce

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func setup(opts ...Option) (*Debouncer, *ManualClock) {
	clock := NewManualClock(start)
	return New(append([]Option{WithClock(clock)}, opts...)...), clock
}

func TestFirstTriggerWaitsForQuietDelay(t *testing.T) {
	d, clock := setup()
	runs := 0
	d.Debounce(func() { runs++ })

	clock.Advance(63 * time.Millisecond)
	assert.Zero(t, runs)
	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, runs)
	assert.Zero(t, clock.Pending())
}

func TestRapidTriggersCollapseToLast(t *testing.T) {
	d, clock := setup()
	var ran []int
	for i := range 5 {
		d.Debounce(func() { ran = append(ran, i) })
		clock.Advance(10 * time.Millisecond)
	}
	clock.Advance(time.Second)
	assert.Equal(t, []int{4}, ran)
}

func TestTriggerAfterMaxDelayRunsImmediately(t *testing.T) {
	d, clock := setup()
	runs := 0
	d.Debounce(func() { runs++ })
	clock.Advance(DefaultDelay)
	assert.Equal(t, 1, runs)

	clock.Advance(2 * time.Second)
	d.Debounce(func() { runs++ })
	assert.Equal(t, 2, runs, "ran without waiting")
	assert.Zero(t, clock.Pending())
}

func TestSustainedBurstIsBounded(t *testing.T) {
	d, clock := setup()
	var runAt []time.Duration
	for range 30 {
		d.Debounce(func() { runAt = append(runAt, clock.Now().Sub(start)) })
		clock.Advance(50 * time.Millisecond)
	}
	assert.NotEmpty(t, runAt, "a steady trigger stream still produces runs")
	assert.Equal(t, 1050*time.Millisecond, runAt[0])
}

func TestPanickingActionDoesNotBreakDebouncer(t *testing.T) {
	var logs bytes.Buffer
	d, clock := setup(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	d.Debounce(func() { panic("boom") })
	clock.Advance(DefaultDelay)
	assert.Contains(t, logs.String(), "action panicked")

	runs := 0
	d.Debounce(func() { runs++ })
	clock.Advance(DefaultDelay)
	assert.Equal(t, 1, runs)
}

func TestStopCancelsPending(t *testing.T) {
	d, clock := setup()
	runs := 0
	d.Debounce(func() { runs++ })
	d.Stop()
	clock.Advance(time.Second)
	assert.Zero(t, runs)
}

func TestCustomDelays(t *testing.T) {
	d, clock := setup(WithDelay(10*time.Millisecond), WithMaxDelay(20*time.Millisecond))
	runs := 0
	d.Debounce(func() { runs++ })
	clock.Advance(10 * time.Millisecond)
	assert.Equal(t, 1, runs)

	clock.Advance(25 * time.Millisecond)
	d.Debounce(func() { runs++ })
	assert.Equal(t, 2, runs)
}

func TestRealClock(t *testing.T) {
	d := New(WithDelay(time.Millisecond))
	done := make(chan struct{})
	d.Debounce(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("action never ran")
	}
}
