package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLogAssignsMonotonicIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		id, err := s.Log(ctx, "git status", "/repo", 0, 0.1)
		if err != nil {
			t.Fatalf("Log: %v", err)
		}
		if id <= last {
			t.Fatalf("id %d not greater than previous %d", id, last)
		}
		last = id
	}
}

func TestLogRejectsEmptyCommand(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Log(context.Background(), "", "/", 0, 0); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestSearchPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, cmd := range []string{"git status", "git stash", "ls -la", "git push"} {
		if _, err := s.Log(ctx, cmd, "/repo", 0, 0); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	recs, err := s.SearchPrefix(ctx, "git st", "", 10)
	if err != nil {
		t.Fatalf("SearchPrefix: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	// Most recent first: git stash was logged after git status.
	if recs[0].Command != "git stash" || recs[1].Command != "git status" {
		t.Fatalf("wrong order: %q, %q", recs[0].Command, recs[1].Command)
	}
}

func TestSearchPrefixCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Log(ctx, "Git Status", "/repo", 0, 0); err != nil {
		t.Fatalf("Log: %v", err)
	}

	recs, err := s.SearchPrefix(ctx, "git st", "", 10)
	if err != nil {
		t.Fatalf("SearchPrefix: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
}

func TestSearchPrefixEscapesWildcards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Log(ctx, "grep 100% done", "/", 0, 0); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if _, err := s.Log(ctx, "grep 100x done", "/", 0, 0); err != nil {
		t.Fatalf("Log: %v", err)
	}

	recs, err := s.SearchPrefix(ctx, "grep 100%", "", 10)
	if err != nil {
		t.Fatalf("SearchPrefix: %v", err)
	}
	if len(recs) != 1 || recs[0].Command != "grep 100% done" {
		t.Fatalf("wildcard leaked into prefix match: %+v", recs)
	}
}

func TestSearchPrefixCwdFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Log(ctx, "make test", "/a", 0, 0)
	s.Log(ctx, "make test", "/b", 0, 0)

	recs, err := s.SearchPrefix(ctx, "make", "/a", 10)
	if err != nil {
		t.Fatalf("SearchPrefix: %v", err)
	}
	if len(recs) != 1 || recs[0].CWD != "/a" {
		t.Fatalf("cwd filter not applied: %+v", recs)
	}
}

func TestRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, cmd := range []string{"first", "second", "third"} {
		if _, err := s.Log(ctx, cmd, "/", 0, 0); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	recs, err := s.Recent(ctx, 2, "")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Command != "third" || recs[1].Command != "second" {
		t.Fatalf("wrong order: %q, %q", recs[0].Command, recs[1].Command)
	}
}

func TestSearchText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, cmd := range []string{
		"docker compose up -d",
		"docker ps",
		"git log --oneline",
	} {
		if _, err := s.Log(ctx, cmd, "/", 0, 0); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	recs, err := s.SearchText(ctx, "docker", 10)
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(recs), recs)
	}
	for _, rec := range recs {
		if rec.Command == "git log --oneline" {
			t.Fatalf("unrelated record matched: %+v", rec)
		}
	}
}

func TestSearchTextEmptyQuery(t *testing.T) {
	s := newTestStore(t)

	recs, err := s.SearchText(context.Background(), "   ", 10)
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if recs != nil {
		t.Fatalf("expected nil for empty query, got %+v", recs)
	}
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Log(ctx, "old command", "/", 0, 0); err != nil {
		t.Fatalf("Log: %v", err)
	}

	n, err := s.Prune(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}

	recs, err := s.Recent(ctx, 10, "")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("records remain after prune: %+v", recs)
	}
}

func TestPruneKeepsNewRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Log(ctx, "fresh command", "/", 0, 0); err != nil {
		t.Fatalf("Log: %v", err)
	}

	n, err := s.Prune(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 0 {
		t.Fatalf("pruned %d, want 0", n)
	}
}

func TestAnalytics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Log(ctx, "git status", "/", 0, 0)
	s.Log(ctx, "git status", "/", 0, 0)
	s.Log(ctx, "make build", "/", 2, 0)

	a, err := s.Analytics(ctx)
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if a.TotalCommands != 3 {
		t.Errorf("TotalCommands = %d, want 3", a.TotalCommands)
	}
	if a.DistinctCommands != 2 {
		t.Errorf("DistinctCommands = %d, want 2", a.DistinctCommands)
	}
	if a.SuccessRate < 0.66 || a.SuccessRate > 0.67 {
		t.Errorf("SuccessRate = %f, want ~0.667", a.SuccessRate)
	}
	if len(a.TopCommands) == 0 || a.TopCommands[0].Command != "git status" || a.TopCommands[0].Count != 2 {
		t.Errorf("TopCommands = %+v", a.TopCommands)
	}
}

func TestAnalyticsEmpty(t *testing.T) {
	s := newTestStore(t)

	a, err := s.Analytics(context.Background())
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if a.TotalCommands != 0 || a.SuccessRate != 0 {
		t.Fatalf("unexpected analytics for empty store: %+v", a)
	}
}
