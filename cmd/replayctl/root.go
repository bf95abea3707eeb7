package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/replay/internal/config"
	"github.com/crimson-sun/replay/internal/eventlog"
	"github.com/crimson-sun/replay/internal/logging"
)

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	dir        string
	logLevel   string
	jsonLogs   bool

	cfg     config.Config
	logger  *slog.Logger
	storage *eventlog.DirStorage
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "replayctl",
		Short:         "Inspect and maintain session replay logs",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file (default: REPLAY_* environment)")
	flags.StringVar(&a.dir, "dir", "", "directory holding session logs (overrides configuration)")
	flags.StringVar(&a.logLevel, "log-level", "", "diagnostic log level: debug, info, warn, error")
	flags.BoolVar(&a.jsonLogs, "json-logs", false, "write diagnostics as JSON")

	root.AddCommand(
		newLsCmd(a),
		newCatCmd(a),
		newStatsCmd(a),
		newPruneCmd(a),
		newTailCmd(a),
		newVerifyCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if a.configPath != "" {
		cfg, err := config.LoadFile(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	} else {
		a.cfg = config.Load()
	}
	if a.dir != "" {
		a.cfg.Storage.Dir = a.dir
	}
	if a.logLevel != "" {
		a.cfg.Log.Level = a.logLevel
	}

	a.logger = logging.New(cmd.ErrOrStderr(), a.jsonLogs || a.cfg.Log.JSON, logging.ParseLevel(a.cfg.Log.Level))

	storage, err := eventlog.NewDirStorage(a.cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("replayctl: %w", err)
	}
	a.storage = storage
	a.logger.Debug("replayctl: using log directory", "dir", storage.Dir())
	return nil
}

// open returns the log of a session given its id or file name.
func (a *app) open(arg string) *eventlog.Log {
	id := arg
	if v, ok := eventlog.SessionIDFromName(arg); ok {
		id = v
	}
	return eventlog.New(a.storage, id, eventlog.WithLogger(a.logger))
}

// sessions lists the session ids with a log in the directory, except
// exclude.
func (a *app) sessions(exclude string) ([]string, error) {
	return eventlog.Orphans(a.storage, exclude)
}
