package integration

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shellsense/internal/config"
	"shellsense/internal/daemon"
	"shellsense/internal/embed"
	"shellsense/internal/ipc"
	"shellsense/internal/provider"
	"shellsense/internal/store"
	"shellsense/internal/suggest"
	"shellsense/internal/vector"
)

// TestEnv is a full daemon running over a temp socket plus a connected
// client.
type TestEnv struct {
	Server *daemon.Server
	Store  *store.SQLiteStore
	Client *ipc.Client
	Config *config.Config
	Paths  *config.Paths

	cancel context.CancelFunc
	done   chan error
}

// SetupTestEnv starts a daemon with real storage under a temp directory
// and connects a client to it.
func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	dir := t.TempDir()
	paths := &config.Paths{
		ConfigDir:  filepath.Join(dir, "config"),
		DataDir:    filepath.Join(dir, "data"),
		RuntimeDir: filepath.Join(dir, "run"),
	}
	require.NoError(t, paths.EnsureDirectories())

	cfg := config.Default()
	cfg.Daemon.RequestTimeoutMs = 2000
	cfg.History.RetentionDays = 0 // keep test records out of the startup prune

	logger := slog.Default()

	st, err := store.NewSQLiteStore(paths.DatabaseFile(), logger)
	require.NoError(t, err)

	embedder := embed.NewHashingEmbedder(cfg.Index.Dimension)
	index, err := vector.New(vector.Options{Dimension: cfg.Index.Dimension, Trees: cfg.Index.Trees})
	require.NoError(t, err)

	indexer := daemon.NewIndexer(daemon.IndexerConfig{
		Index:     index,
		Embedder:  embedder,
		IndexPath: paths.IndexFile(),
		BatchSize: 4,
		Interval:  time.Hour,
		Logger:    logger,
	})

	srv, err := daemon.NewServer(&daemon.ServerConfig{
		Store:    st,
		Cascade:  suggest.New(st, index, embedder, logger),
		Indexer:  indexer,
		Registry: provider.NewRegistry(provider.NewRuleExplainer()),
		Config:   cfg,
		Paths:    paths,
		Logger:   logger,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Start(ctx)
	}()

	require.NoError(t, daemon.WaitForSocket(ctx, paths, 5*time.Second))

	// The socket file appears at bind() time, slightly before listen()
	// completes, so the first dial can land in that window and get
	// ECONNREFUSED. Retry briefly.
	var client *ipc.Client
	deadline := time.Now().Add(5 * time.Second)
	for {
		client, err = ipc.Dial(paths)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)

	return &TestEnv{
		Server: srv,
		Store:  st,
		Client: client,
		Config: cfg,
		Paths:  paths,
		cancel: cancel,
		done:   done,
	}
}

// Teardown stops everything and waits for the daemon to exit.
func (e *TestEnv) Teardown() {
	e.Client.Close()
	e.cancel()
	e.Server.Shutdown()
	<-e.done
	e.Store.Close()
}
