package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/replay/internal/eventlog"
	"github.com/crimson-sun/replay/internal/sink/stream"
	"github.com/crimson-sun/replay/internal/verify"
	"github.com/crimson-sun/replay/internal/wire"
)

// errProblems makes verify exit non-zero after printing its report.
var errProblems = errors.New("replayctl: log does not replay cleanly")

func newLsCmd(a *app) *cobra.Command {
	var exclude string
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List session logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ids, err := a.sessions(exclude)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tSIZE\tMODIFIED")
			for _, id := range ids {
				info, err := os.Stat(a.storage.Path(eventlog.FileName(id)))
				if err != nil {
					a.logger.Warn("replayctl: stat failed", "session", id, "error", err)
					continue
				}
				fmt.Fprintf(w, "%s\t%d\t%s\n", id, info.Size(), info.ModTime().UTC().Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&exclude, "exclude", "", "session id to leave out, typically the active one")
	return cmd
}

func newCatCmd(a *app) *cobra.Command {
	var pretty bool
	var only string
	cmd := &cobra.Command{
		Use:   "cat SESSION",
		Short: "Print the events of a session log as NDJSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := a.open(args[0]).ReadAll()
			if err != nil {
				return err
			}
			if only != "" {
				events = slices.DeleteFunc(events, func(e wire.Event) bool { return e.Type.String() != only })
			}
			return stream.New(cmd.OutOrStdout(), pretty).Append(events)
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent each event")
	cmd.Flags().StringVar(&only, "type", "", "only print events of this type: meta, full_snapshot, incremental")
	return cmd
}

// logStats summarizes one session log.
type logStats struct {
	Session       string `json:"session"`
	Events        int    `json:"events"`
	Metas         int    `json:"metas"`
	FullSnapshots int    `json:"fullSnapshots"`
	Incrementals  int    `json:"incrementals"`
	FirstMs       int64  `json:"firstMs"`
	LastMs        int64  `json:"lastMs"`
	Bytes         int64  `json:"bytes"`
}

func newStatsCmd(a *app) *cobra.Command {
	var asJSON bool
	var parallel int
	cmd := &cobra.Command{
		Use:   "stats [SESSION...]",
		Short: "Summarize session logs (all of them by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := args
			if len(ids) == 0 {
				var err error
				if ids, err = a.sessions(""); err != nil {
					return err
				}
			}
			stats, err := a.collectStats(cmd.Context(), ids, parallel)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tEVENTS\tMETA\tFULL\tINCR\tSPAN\tBYTES")
			for _, s := range stats {
				span := time.Duration(s.LastMs-s.FirstMs) * time.Millisecond
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\t%d\n",
					s.Session, s.Events, s.Metas, s.FullSnapshots, s.Incrementals, span, s.Bytes)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().IntVar(&parallel, "parallel", 4, "logs read concurrently")
	return cmd
}

// collectStats reads the logs concurrently; results keep the order of ids.
func (a *app) collectStats(ctx context.Context, ids []string, parallel int) ([]logStats, error) {
	out := make([]logStats, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			log := a.open(id)
			events, err := log.ReadAll()
			if err != nil {
				return err
			}
			s := logStats{Session: log.SessionID(), Events: len(events)}
			for j, e := range events {
				if j == 0 || e.Timestamp < s.FirstMs {
					s.FirstMs = e.Timestamp
				}
				s.LastMs = max(s.LastMs, e.Timestamp)
				switch e.Type {
				case wire.TypeMeta:
					s.Metas++
				case wire.TypeFullSnapshot:
					s.FullSnapshots++
				case wire.TypeIncremental:
					s.Incrementals++
				}
			}
			info, err := os.Stat(a.storage.Path(log.Name()))
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if err == nil {
				s.Bytes = info.Size()
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func newPruneCmd(a *app) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune SESSION",
		Short: "Drop events older than a duration from a session log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := a.open(args[0])
			n := log.PruneOlderThan(olderThan)
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d events from %s\n", n, log.SessionID())
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 15*time.Second, "maximum age of kept events")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "verify SESSION",
		Short: "Check that a session log replays cleanly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := a.open(args[0]).ReadAll()
			if err != nil {
				return err
			}
			r := verify.Events(events)
			out := cmd.OutOrStdout()
			if asJSON {
				if err := json.NewEncoder(out).Encode(r); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "%d events: %d meta, %d full snapshots, %d incremental; %d nodes at end\n",
					r.Events, r.Metas, r.FullSnapshots, r.Incrementals, r.Nodes)
				for _, p := range r.Problems {
					fmt.Fprintln(out, p)
				}
			}
			if !r.OK() {
				return fmt.Errorf("%w: %d problems", errProblems, len(r.Problems))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
