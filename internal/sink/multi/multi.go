package multi

import (
	"errors"

	"github.com/crimson-sun/replay/internal/sink"
	"github.com/crimson-sun/replay/internal/wire"
)

// Multi fans out event batches to several sinks, sequentially.
// If one sink fails, the remaining sinks still receive the batch.
type Multi struct {
	sinks []sink.Sink
}

// New creates a Multi that fans out to the given sinks. Nil sinks are skipped.
func New(sinks ...sink.Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Append delivers events to every wrapped sink. Errors are collected
// but do not prevent delivery to subsequent sinks.
func (m *Multi) Append(events []wire.Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Append(events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of wrapped sinks.
func (m *Multi) Len() int { return len(m.sinks) }
