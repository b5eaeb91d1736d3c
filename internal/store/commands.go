package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Log appends a command record. The id is assigned by SQLite's AUTOINCREMENT
// rowid, which is monotonic and never reused for the lifetime of the store.
func (s *SQLiteStore) Log(ctx context.Context, command, cwd string, exitCode int, durationSeconds float64) (int64, error) {
	if command == "" {
		return 0, fmt.Errorf("%w: command is required", ErrWriteFailed)
	}
	if durationSeconds < 0 {
		durationSeconds = 0
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO commands (command, cwd, exit_code, duration_s, ts_unix_ms)
		VALUES (?, ?, ?, ?, ?)
	`, command, cwd, exitCode, durationSeconds, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return id, nil
}

// SearchPrefix returns most-recent-first records whose command text starts
// with partial. SQLite's LIKE is case-insensitive for ASCII, which matches
// how shells treat command names.
func (s *SQLiteStore) SearchPrefix(ctx context.Context, partial, cwdFilter string, limit int) ([]CommandRecord, error) {
	if partial == "" || limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, command, cwd, exit_code, duration_s, ts_unix_ms
		FROM commands
		WHERE command LIKE ? ESCAPE '\'
	`
	args := []any{escapeLike(partial) + "%"}

	if cwdFilter != "" {
		query += " AND cwd = ?"
		args = append(args, cwdFilter)
	}

	query += " ORDER BY ts_unix_ms DESC, id DESC LIMIT ?"
	args = append(args, limit)

	return s.queryRecords(ctx, query, args...)
}

// Recent returns the most recent records, optionally filtered by cwd.
func (s *SQLiteStore) Recent(ctx context.Context, limit int, cwdFilter string) ([]CommandRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, command, cwd, exit_code, duration_s, ts_unix_ms
		FROM commands
	`
	args := []any{}
	if cwdFilter != "" {
		query += " WHERE cwd = ?"
		args = append(args, cwdFilter)
	}
	query += " ORDER BY ts_unix_ms DESC, id DESC LIMIT ?"
	args = append(args, limit)

	return s.queryRecords(ctx, query, args...)
}

// SearchText performs token-based full-text search. With FTS5 available it
// ranks by bm25 blended with recency; otherwise it scans with LIKE per token.
func (s *SQLiteStore) SearchText(ctx context.Context, query string, limit int) ([]CommandRecord, error) {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 || limit <= 0 {
		return nil, nil
	}

	if s.fts5Available {
		return s.searchFTS(ctx, tokens, limit)
	}
	return s.searchLike(ctx, tokens, limit)
}

// searchFTS fetches an over-sized candidate set by bm25 and re-ranks it with
// a recency blend, ties broken most-recent-first.
func (s *SQLiteStore) searchFTS(ctx context.Context, tokens []string, limit int) ([]CommandRecord, error) {
	match := buildFTSQuery(tokens)

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.command, c.cwd, c.exit_code, c.duration_s, c.ts_unix_ms,
		       bm25(command_fts) AS rank
		FROM command_fts
		JOIN commands c ON command_fts.rowid = c.id
		WHERE command_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, limit*4)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	defer rows.Close()

	type scored struct {
		rec  CommandRecord
		bm25 float64
	}
	var cands []scored
	for rows.Next() {
		var sc scored
		var tsMs int64
		if err := rows.Scan(&sc.rec.ID, &sc.rec.Command, &sc.rec.CWD, &sc.rec.ExitCode, &sc.rec.DurationSeconds, &tsMs, &sc.bm25); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
		}
		sc.rec.Timestamp = time.UnixMilli(tsMs)
		cands = append(cands, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}

	// SQLite's bm25() is lower-is-better; flip it so higher is better and
	// normalize against the best candidate before blending in recency.
	best := 0.0
	for _, sc := range cands {
		if v := -sc.bm25; v > best {
			best = v
		}
	}
	now := time.Now()
	type ranked struct {
		rec   CommandRecord
		score float64
	}
	out := make([]ranked, 0, len(cands))
	for _, sc := range cands {
		term := 1.0
		if best > 0 {
			term = -sc.bm25 / best
		}
		out = append(out, ranked{rec: sc.rec, score: 0.7*term + 0.3*recencyScore(sc.rec.Timestamp, now)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].rec.Timestamp.After(out[j].rec.Timestamp)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	recs := make([]CommandRecord, len(out))
	for i, r := range out {
		recs[i] = r.rec
	}
	return recs, nil
}

// searchLike is the degraded path when FTS5 is unavailable: every token
// must appear as a substring, ranked by recency only.
func (s *SQLiteStore) searchLike(ctx context.Context, tokens []string, limit int) ([]CommandRecord, error) {
	query := `
		SELECT id, command, cwd, exit_code, duration_s, ts_unix_ms
		FROM commands
		WHERE 1=1
	`
	args := []any{}
	for _, tok := range tokens {
		query += ` AND command LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(tok)+"%")
	}
	query += " ORDER BY ts_unix_ms DESC, id DESC LIMIT ?"
	args = append(args, limit)

	return s.queryRecords(ctx, query, args...)
}

// Prune removes records older than the given instant.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM commands WHERE ts_unix_ms < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return n, nil
}

// Analytics summarizes the stored history.
func (s *SQLiteStore) Analytics(ctx context.Context) (*Analytics, error) {
	a := &Analytics{}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT command),
		       COALESCE(AVG(CASE WHEN exit_code = 0 THEN 1.0 ELSE 0.0 END), 0)
		FROM commands
	`)
	if err := row.Scan(&a.TotalCommands, &a.DistinctCommands, &a.SuccessRate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT command, COUNT(*) AS n
		FROM commands
		GROUP BY command
		ORDER BY n DESC, MAX(ts_unix_ms) DESC
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cc CommandCount
		if err := rows.Scan(&cc.Command, &cc.Count); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
		}
		a.TopCommands = append(a.TopCommands, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return a, nil
}

func (s *SQLiteStore) queryRecords(ctx context.Context, query string, args ...any) ([]CommandRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	defer rows.Close()

	var recs []CommandRecord
	for rows.Next() {
		var rec CommandRecord
		var tsMs int64
		if err := rows.Scan(&rec.ID, &rec.Command, &rec.CWD, &rec.ExitCode, &rec.DurationSeconds, &tsMs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
		}
		rec.Timestamp = time.UnixMilli(tsMs)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return recs, nil
}

// recencyScore decays from 1.0 using 1 / (1 + log(hours_since + 1)).
func recencyScore(ts, now time.Time) float64 {
	hours := now.Sub(ts).Hours()
	if hours < 0 {
		hours = 0
	}
	return 1.0 / (1.0 + math.Log(hours+1))
}

// buildFTSQuery quotes each token and joins with OR so partial term matches
// still rank, leaving relevance to bm25.
func buildFTSQuery(tokens []string) string {
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + strings.ReplaceAll(tok, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
