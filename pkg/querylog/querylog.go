// Package querylog persists query, cache-operation, and error records in a
// SQLite database. It is the durable counterpart of the in-memory metrics
// recorder: the recorder answers "what happened recently" without touching
// disk, while the query log survives restarts and feeds the CLI reports.
package querylog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codesearch-ai/codesearch/pkg/config"
	"github.com/codesearch-ai/codesearch/pkg/models"
)

// Log writes and queries records in a dedicated SQLite database.
type Log struct {
	db            *sql.DB
	retentionDays int
	done          chan struct{}
	wg            sync.WaitGroup
}

// New opens the query log database, creates the schema, and starts the
// hourly retention sweep.
func New(dbPath string, cfg config.QueryLogConfig) (*Log, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open query log db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate query log db: %w", err)
	}

	l := &Log{
		db:            db,
		retentionDays: cfg.RetentionDays,
		done:          make(chan struct{}),
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS query_log (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id    TEXT,
		query         TEXT NOT NULL,
		full_query    TEXT NOT NULL,
		response_time REAL NOT NULL,
		cached        INTEGER NOT NULL,
		source_count  INTEGER NOT NULL,
		answer_length INTEGER NOT NULL,
		success       INTEGER NOT NULL,
		error         TEXT,
		created_at    DATETIME NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_query_created ON query_log(created_at)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache_ops (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		operation  TEXT NOT NULL,
		query      TEXT NOT NULL,
		cache_hit  INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS error_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		category   TEXT NOT NULL,
		message    TEXT NOT NULL,
		context    TEXT,
		created_at DATETIME NOT NULL
	)`)
	return err
}

// LogQuery inserts one completed query record.
func (l *Log) LogQuery(ctx context.Context, rec models.QueryRecord) error {
	if l == nil || l.db == nil {
		return nil
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO query_log
		(request_id, query, full_query, response_time, cached,
		 source_count, answer_length, success, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Query, rec.FullQuery, rec.ResponseTime, rec.Cached,
		rec.SourceCount, rec.AnswerLength, rec.Success, rec.Error, rec.Timestamp,
	)
	return err
}

// LogCacheOp records a cache get or set.
func (l *Log) LogCacheOp(ctx context.Context, op models.CacheOp) error {
	if l == nil || l.db == nil {
		return nil
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO cache_ops (operation, query, cache_hit, created_at)
		VALUES (?, ?, ?, ?)`,
		op.Operation, op.Query, op.Hit, op.CreatedAt,
	)
	return err
}

// LogError records a categorized error with optional context.
func (l *Log) LogError(ctx context.Context, rec models.ErrorRecord) error {
	if l == nil || l.db == nil {
		return nil
	}
	var ctxJSON string
	if rec.Context != nil {
		b, _ := json.Marshal(rec.Context)
		ctxJSON = string(b)
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO error_log (category, message, context, created_at)
		VALUES (?, ?, ?, ?)`,
		rec.Category, rec.Message, ctxJSON, rec.CreatedAt,
	)
	return err
}

// Recent returns query records matching the given options, newest first.
func (l *Log) Recent(ctx context.Context, opts models.QueryLogOpts) ([]models.QueryRecord, error) {
	q := `SELECT request_id, query, full_query, response_time, cached,
		source_count, answer_length, success, error, created_at
		FROM query_log WHERE 1=1`
	var args []any

	if opts.Cached != nil {
		q += " AND cached = ?"
		args = append(args, *opts.Cached)
	}
	if opts.Success != nil {
		q += " AND success = ?"
		args = append(args, *opts.Success)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since)
	}

	q += " ORDER BY created_at DESC, id DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query log: %w", err)
	}
	defer rows.Close()

	var recs []models.QueryRecord
	for rows.Next() {
		var r models.QueryRecord
		var requestID, errMsg sql.NullString
		if err := rows.Scan(
			&requestID, &r.Query, &r.FullQuery, &r.ResponseTime, &r.Cached,
			&r.SourceCount, &r.AnswerLength, &r.Success, &errMsg, &r.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan query log row: %w", err)
		}
		r.RequestID = requestID.String
		r.Error = errMsg.String
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Summary aggregates the whole query log into overall statistics.
func (l *Log) Summary(ctx context.Context) (models.Statistics, error) {
	var s models.Statistics
	var avgTime, avgSources, fastest, slowest sql.NullFloat64

	err := l.db.QueryRowContext(ctx,
		`SELECT count(*),
			coalesce(sum(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
			coalesce(sum(CASE WHEN cached = 1 THEN 1 ELSE 0 END), 0),
			coalesce(sum(CASE WHEN cached = 0 THEN 1 ELSE 0 END), 0),
			avg(CASE WHEN success = 1 THEN response_time END),
			avg(source_count),
			min(CASE WHEN success = 1 THEN response_time END),
			max(CASE WHEN success = 1 THEN response_time END)
		FROM query_log`,
	).Scan(&s.TotalQueries, &s.TotalErrors, &s.CacheHits, &s.CacheMisses,
		&avgTime, &avgSources, &fastest, &slowest)
	if err != nil {
		return models.Statistics{}, fmt.Errorf("query log summary: %w", err)
	}

	s.AvgResponseTime = round3(avgTime.Float64)
	s.AvgSourcesPerQuery = round2(avgSources.Float64)
	s.FastestResponse = round3(fastest.Float64)
	s.SlowestResponse = round3(slowest.Float64)
	if s.TotalQueries > 0 {
		s.ErrorRatePercent = round2(float64(s.TotalErrors) / float64(s.TotalQueries) * 100)
	}
	if hm := s.CacheHits + s.CacheMisses; hm > 0 {
		s.CacheHitRatePercent = round2(float64(s.CacheHits) / float64(hm) * 100)
	}
	return s, nil
}

// Popular returns the most-repeated questions, grouped by exact full
// question text, most frequent first.
func (l *Log) Popular(ctx context.Context, limit int) ([]models.PopularQuery, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT full_query, count(*) as cnt FROM query_log
		GROUP BY full_query ORDER BY cnt DESC, min(id) LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("popular queries: %w", err)
	}
	defer rows.Close()

	var out []models.PopularQuery
	for rows.Next() {
		var p models.PopularQuery
		if err := rows.Scan(&p.Query, &p.Count); err != nil {
			return nil, fmt.Errorf("scan popular query: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Slow returns queries slower than the threshold, slowest first.
func (l *Log) Slow(ctx context.Context, threshold float64, limit int) ([]models.SlowQuery, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT query, response_time, created_at FROM query_log
		WHERE response_time > ? ORDER BY response_time DESC LIMIT ?`,
		threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("slow queries: %w", err)
	}
	defer rows.Close()

	var out []models.SlowQuery
	for rows.Next() {
		var s models.SlowQuery
		if err := rows.Scan(&s.Query, &s.ResponseTime, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("scan slow query: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Cleanup deletes records older than the configured retention period from
// all three tables and returns the total rows removed.
func (l *Log) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -l.retentionDays)
	var total int64
	for _, table := range []string{"query_log", "cache_ops", "error_log"} {
		res, err := l.db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE created_at < ?`, table), cutoff)
		if err != nil {
			return total, fmt.Errorf("cleanup %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Close stops the retention goroutine and closes the database.
func (l *Log) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Log) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
