package multi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crimson-sun/replay/internal/sink"
	"github.com/crimson-sun/replay/internal/wire"
)

// recorder records calls for test assertions.
type recorder struct {
	batches [][]wire.Event
	err     error
}

func (r *recorder) Append(events []wire.Event) error {
	r.batches = append(r.batches, events)
	return r.err
}

func batch(ts ...int64) []wire.Event {
	out := make([]wire.Event, len(ts))
	for i, t := range ts {
		out[i] = wire.Event{Type: wire.TypeIncremental, Timestamp: t}
	}
	return out
}

func TestFanOutDeliversToAll(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := New(a, nil, b)
	assert.Equal(t, 2, m.Len())

	assert.NoError(t, m.Append(batch(1, 2)))
	for _, r := range []*recorder{a, b} {
		assert.Equal(t, [][]wire.Event{batch(1, 2)}, r.batches)
	}
}

func TestErrorDoesNotPreventDelivery(t *testing.T) {
	failing := &recorder{err: errors.New("boom")}
	ok := &recorder{}
	m := New(failing, ok)

	err := m.Append(batch(1))
	assert.ErrorContains(t, err, "boom")
	assert.Len(t, ok.batches, 1)
}

func TestJoinsAllErrors(t *testing.T) {
	e1, e2 := errors.New("first"), errors.New("second")
	m := New(&recorder{err: e1}, sink.Func(func([]wire.Event) error { return e2 }))
	err := m.Append(batch(1))
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)
}

func TestEmptyMulti(t *testing.T) {
	assert.NoError(t, New().Append(batch(1)))
}
