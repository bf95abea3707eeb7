package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/crimson-sun/replay/internal/wire"
)

// Writer writes events as JSON lines to an io.Writer, optionally
// pretty-printed. Used to print session logs and to mirror a live
// recording to stdout.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// New creates a Writer on w.
func New(w io.Writer, pretty bool) *Writer {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return &Writer{enc: enc}
}

func (s *Writer) Append(events []wire.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		if err := s.enc.Encode(e); err != nil {
			return fmt.Errorf("stream sink: %w", err)
		}
	}
	return nil
}
