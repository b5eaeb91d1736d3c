// Package store provides the persistent command history for shellsense.
// The daemon is the single writer; clients never open the database directly.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrWriteFailed indicates a failed write against the command store.
var ErrWriteFailed = errors.New("command store write failed")

// ErrReadFailed indicates a failed read against the command store.
var ErrReadFailed = errors.New("command store read failed")

// CommandRecord is one executed shell invocation. Records are immutable
// once stored; only retention pruning removes them.
type CommandRecord struct {
	ID              int64     `json:"id"`
	Command         string    `json:"command"`
	CWD             string    `json:"cwd"`
	ExitCode        int       `json:"exit_code"`
	DurationSeconds float64   `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}

// Analytics summarizes the stored history.
type Analytics struct {
	TotalCommands    int64          `json:"total_commands"`
	DistinctCommands int64          `json:"distinct_commands"`
	SuccessRate      float64        `json:"success_rate"`
	TopCommands      []CommandCount `json:"top_commands"`
}

// CommandCount is a command with its occurrence count.
type CommandCount struct {
	Command string `json:"command"`
	Count   int64  `json:"count"`
}

// Store is the interface the daemon and suggestion cascade depend on.
type Store interface {
	// Log appends a command record, assigning the id and timestamp.
	// The record is durable before Log returns.
	Log(ctx context.Context, command, cwd string, exitCode int, durationSeconds float64) (int64, error)

	// SearchPrefix returns most-recent-first records whose command text
	// starts with partial, case-insensitively. cwdFilter restricts results
	// to a working directory when non-empty.
	SearchPrefix(ctx context.Context, partial, cwdFilter string, limit int) ([]CommandRecord, error)

	// SearchText performs token-based full-text search ranked by a blend
	// of term relevance and recency, ties broken most-recent-first.
	SearchText(ctx context.Context, query string, limit int) ([]CommandRecord, error)

	// Recent returns the most recent records, optionally filtered by cwd.
	Recent(ctx context.Context, limit int, cwdFilter string) ([]CommandRecord, error)

	// Prune removes records older than the given instant and reports how
	// many were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)

	// Analytics summarizes the stored history.
	Analytics(ctx context.Context) (*Analytics, error)

	Close() error
}
