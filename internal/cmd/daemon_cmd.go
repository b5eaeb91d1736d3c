package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"shellsense/internal/config"
	"shellsense/internal/daemon"
	"shellsense/internal/embed"
	"shellsense/internal/provider"
	"shellsense/internal/store"
	"shellsense/internal/suggest"
	"shellsense/internal/vector"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the background suggestion daemon",
	Long: `Manage the background suggestion daemon.

The daemon owns the history database and vector index, and serves
suggestions over a per-user Unix socket.

Subcommands:
  start  - Start the daemon in the background
  run    - Run the daemon in the foreground
  stop   - Stop the daemon
  status - Check whether the daemon is running`,
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := RunDaemon(cmd.Context())
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(daemon.ExitCodeAlreadyRunning)
		}
		return err
	},
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := config.DefaultPaths()
		if daemon.IsRunning(paths) {
			fmt.Println("daemon already running")
			return nil
		}
		if err := spawnDaemon(paths); err != nil {
			return err
		}
		if err := daemon.WaitForSocket(cmd.Context(), paths, 5*time.Second); err != nil {
			return err
		}
		fmt.Println("daemon started")
		return nil
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := daemon.Stop(config.DefaultPaths()); err != nil {
			return err
		}
		fmt.Println("daemon stopped")
		return nil
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the daemon is running",
	Run: func(cmd *cobra.Command, args []string) {
		paths := config.DefaultPaths()
		if daemon.IsRunning(paths) {
			pid, _ := daemon.ReadPID(paths.PIDFile())
			fmt.Printf("daemon running (pid %d)\n", pid)
		} else {
			fmt.Println("daemon not running")
		}
	},
}

func init() {
	daemonCmd.AddCommand(daemonRunCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

// RunDaemon wires the daemon's dependencies and blocks until shutdown.
// It is shared by "sense daemon run" and the sensed binary.
func RunDaemon(ctx context.Context) error {
	paths := config.DefaultPaths()
	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	cfg, err := config.Load(paths.ConfigFile())
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Daemon.LogLevel)
	slog.SetDefault(logger)

	st, err := store.NewSQLiteStore(paths.DatabaseFile(), logger)
	if err != nil {
		return fmt.Errorf("open command store: %w", err)
	}
	defer st.Close()

	embedder := embed.NewHashingEmbedder(cfg.Index.Dimension)
	index, err := vector.New(vector.Options{
		Dimension: cfg.Index.Dimension,
		Trees:     cfg.Index.Trees,
	})
	if err != nil {
		return fmt.Errorf("create vector index: %w", err)
	}
	if err := index.Load(paths.IndexFile()); err != nil {
		logger.Warn("vector index load failed, starting empty",
			"path", paths.IndexFile(), "error", err)
	}

	indexer := daemon.NewIndexer(daemon.IndexerConfig{
		Index:     index,
		Embedder:  embedder,
		IndexPath: paths.IndexFile(),
		BatchSize: cfg.Index.BuildBatch,
		Interval:  time.Duration(cfg.Index.BuildIntervalMs) * time.Millisecond,
		Logger:    logger,
	})

	cascade := suggest.New(st, index, embedder, logger)
	registry := provider.NewRegistry(provider.NewRuleExplainer())

	watcher, err := config.NewWatcher(paths.ConfigFile(), cfg, logger)
	if err != nil {
		logger.Warn("config watcher unavailable, SIGHUP reload only", "error", err)
	} else {
		defer watcher.Close()
	}

	return daemon.Run(ctx, &daemon.ServerConfig{
		Store:    st,
		Cascade:  cascade,
		Indexer:  indexer,
		Registry: registry,
		Config:   cfg,
		Paths:    paths,
		Logger:   logger,
		ReloadFn: func() error {
			next, err := config.Load(paths.ConfigFile())
			if err != nil {
				return err
			}
			cfg.Replace(next)
			return nil
		},
	})
}

// spawnDaemon starts "sense daemon run" in its own session with output
// going to a log file.
func spawnDaemon(paths *config.Paths) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	logPath := filepath.Join(paths.DataDir, "daemon.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open daemon log: %w", err)
	}
	defer logFile.Close()

	proc := exec.Command(exe, "daemon", "run")
	proc.Stdout = logFile
	proc.Stderr = logFile
	proc.Stdin = nil
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := proc.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	return proc.Process.Release()
}

// newLogger builds the daemon's structured logger.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
