// Package sink defines where encoded replay events go.
package sink

import "github.com/crimson-sun/replay/internal/wire"

// Sink receives batches of encoded events in the order they were produced.
type Sink interface {
	Append(events []wire.Event) error
}

// Func adapts a plain function to Sink.
type Func func(events []wire.Event) error

func (f Func) Append(events []wire.Event) error { return f(events) }

// Discard drops everything.
var Discard Sink = Func(func([]wire.Event) error { return nil })
