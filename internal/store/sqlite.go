package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// walCheckpointInterval is how often the WAL file is checkpointed to
// prevent unbounded growth during long-running daemon sessions.
const walCheckpointInterval = 5 * time.Minute

// SQLiteStore implements Store using SQLite with an FTS5 full-text index.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	// fts5Available is false when the SQLite build lacks the FTS5 module;
	// SearchText then degrades to a LIKE-based token scan.
	fts5Available bool

	stopCh    chan struct{}
	stoppedCh chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewSQLiteStore opens (or creates) the command store at dbPath.
// The database runs in WAL mode with synchronous=FULL so that a successful
// Log is durable across process crashes.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// modernc.org/sqlite uses _pragma=name(value) syntax
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite handles concurrency better with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &SQLiteStore{
		db:        db,
		logger:    logger,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}

	s.fts5Available = s.probeFTS5()
	if !s.fts5Available {
		s.logger.Warn("FTS5 not available; full-text search degrades to token scan")
	}

	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	go s.walCheckpointLoop()

	return s, nil
}

// Close closes the database connection. Safe to call multiple times.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.stoppedCh

		// Final checkpoint merges the WAL into the main database file.
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// DB exposes the underlying connection for advanced callers.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) walCheckpointLoop() {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(walCheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
				s.logger.Warn("WAL checkpoint failed", "error", err)
			}
		}
	}
}

// probeFTS5 reports whether the FTS5 module is compiled into this build.
func (s *SQLiteStore) probeFTS5() bool {
	_, err := s.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS _fts5_probe USING fts5(probe)`)
	if err != nil {
		return !strings.Contains(err.Error(), "no such module")
	}
	_, _ = s.db.Exec(`DROP TABLE IF EXISTS _fts5_probe`)
	return true
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	currentVersion := 0
	row := s.db.QueryRowContext(ctx, `SELECT version FROM schema_meta ORDER BY version DESC LIMIT 1`)
	if err := row.Scan(&currentVersion); err != nil {
		if err == sql.ErrNoRows || strings.Contains(err.Error(), "no such table") {
			currentVersion = 0
		} else {
			return fmt.Errorf("read schema version: %w", err)
		}
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{version: 1, sql: migrationV1},
	}
	if s.fts5Available {
		migrations = append(migrations, struct {
			version int
			sql     string
		}{version: 2, sql: migrationV2FTS})
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration v%d failed: %w", m.version, err)
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO schema_meta (version, applied_at_unix_ms)
			VALUES (?, ?)
		`, m.version, time.Now().UnixMilli())
		if err != nil {
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// migrationV1 creates the command history schema.
const migrationV1 = `
CREATE TABLE IF NOT EXISTS schema_meta (
  version INTEGER PRIMARY KEY,
  applied_at_unix_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS commands (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  command TEXT NOT NULL,
  cwd TEXT NOT NULL,
  exit_code INTEGER NOT NULL DEFAULT 0,
  duration_s REAL NOT NULL DEFAULT 0,
  ts_unix_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_commands_ts ON commands(ts_unix_ms DESC);
CREATE INDEX IF NOT EXISTS idx_commands_cwd ON commands(cwd, ts_unix_ms DESC);
`

// migrationV2FTS adds the FTS5 index over command text, kept in sync by
// triggers on the external-content table.
const migrationV2FTS = `
CREATE VIRTUAL TABLE IF NOT EXISTS command_fts
USING fts5(command, content='commands', content_rowid='id');

CREATE TRIGGER IF NOT EXISTS commands_fts_insert AFTER INSERT ON commands BEGIN
  INSERT INTO command_fts(rowid, command) VALUES (new.id, new.command);
END;

CREATE TRIGGER IF NOT EXISTS commands_fts_delete AFTER DELETE ON commands BEGIN
  INSERT INTO command_fts(command_fts, rowid, command) VALUES ('delete', old.id, old.command);
END;
`
