package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/crimson-sun/replay/internal/sink/stream"
	"github.com/crimson-sun/replay/internal/wire"
)

func newTailCmd(a *app) *cobra.Command {
	var follow, pretty bool
	var lines int
	cmd := &cobra.Command{
		Use:   "tail SESSION",
		Short: "Print the last events of a session log, optionally following it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := a.open(args[0])
			out := stream.New(cmd.OutOrStdout(), pretty)

			t := &tailer{path: a.storage.Path(log.Name())}
			events, err := t.read()
			if err != nil {
				return err
			}
			if lines >= 0 && len(events) > lines {
				events = events[len(events)-lines:]
			}
			if err := out.Append(events); err != nil {
				return err
			}
			if !follow {
				return nil
			}
			return t.follow(cmd.Context(), func(events []wire.Event) {
				if err := out.Append(events); err != nil {
					a.logger.Warn("replayctl: write failed", "error", err)
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing events as they are appended")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent each event")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "number of trailing events to print first (-1 for all)")
	return cmd
}

// tailer reads complete lines appended to a log since the last read.
// A file that shrinks (cleared or pruned) is read again from the start.
type tailer struct {
	path    string
	offset  int64
	partial []byte
}

// read returns the events in complete lines written since the last call.
func (t *tailer) read() ([]wire.Event, error) {
	f, err := os.Open(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("replayctl: tail: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("replayctl: tail: %w", err)
	}
	if info.Size() < t.offset {
		t.offset, t.partial = 0, nil
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("replayctl: tail: %w", err)
	}

	var events []wire.Event
	br := bufio.NewReader(f)
	for {
		chunk, err := br.ReadBytes('\n')
		t.offset += int64(len(chunk))
		if errors.Is(err, io.EOF) {
			t.partial = append(t.partial, chunk...)
			return events, nil
		}
		if err != nil {
			return events, fmt.Errorf("replayctl: tail: %w", err)
		}
		line := append(t.partial, chunk...)
		t.partial = nil
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if e, err := wire.UnmarshalLine(trimmed); err == nil {
				events = append(events, e)
			}
		}
	}
}

func (t *tailer) skipToEnd() {
	t.partial = nil
	t.offset = 0
	if info, err := os.Stat(t.path); err == nil {
		t.offset = info.Size()
	}
}

// follow watches the log's directory and emits new events until ctx is
// done. Watching the directory keeps working when a prune renames a new
// file over the log.
func (t *tailer) follow(ctx context.Context, emit func([]wire.Event)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("replayctl: tail: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(t.path)); err != nil {
		return fmt.Errorf("replayctl: tail: watch: %w", err)
	}

	flush := func() error {
		events, err := t.read()
		if len(events) > 0 {
			emit(events)
		}
		return err
	}
	// Catch up on anything written before the watch was in place.
	if err := flush(); err != nil {
		return err
	}

	name := filepath.Base(t.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Has(fsnotify.Remove) {
				t.offset, t.partial = 0, nil
				continue
			}
			if ev.Has(fsnotify.Create) && t.offset > 0 {
				// A prune renamed a rewritten copy over the log. Its
				// lines were already printed.
				t.skipToEnd()
				continue
			}
			if err := flush(); err != nil {
				return err
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("replayctl: tail: %w", err)
		}
	}
}
