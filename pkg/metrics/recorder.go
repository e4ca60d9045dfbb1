// Package metrics keeps in-process query metrics: a fixed-capacity ring of
// recent query records plus unbounded aggregate counters. Rate figures
// come from the counters so they stay exact over the process lifetime;
// response-time and source averages come from the bounded recent window.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/codesearch-ai/codesearch/pkg/models"
)

// maxQueryDisplayLen bounds the query text stored for display and grouping.
const maxQueryDisplayLen = 100

// Sink receives a durable copy of every record the recorder accepts. A nil
// sink is valid and drops everything.
type Sink interface {
	LogQuery(ctx context.Context, rec models.QueryRecord) error
	LogCacheOp(ctx context.Context, op models.CacheOp) error
	LogError(ctx context.Context, rec models.ErrorRecord) error
}

// Outcome is one completed query attempt as seen by the orchestrator.
// CacheChecked reports whether the request reached the cache decision
// point; bypassed and cache-disabled requests did not, and they must not
// move the hit or miss counters.
type Outcome struct {
	RequestID    string
	Question     string
	Response     models.Response
	CacheChecked bool
}

// Recorder accumulates query outcomes. All methods are safe for
// concurrent use. The sink is called outside the lock so a slow sink
// cannot stall recording.
type Recorder struct {
	sink          Sink
	slowThreshold float64

	mu     sync.Mutex
	ring   []models.QueryRecord
	next   int
	size   int
	total  int64
	errors int64
	hits   int64
	misses int64
}

// New creates a Recorder keeping the last historySize records.
func New(historySize int, slowThreshold float64, sink Sink) *Recorder {
	if historySize <= 0 {
		historySize = 100
	}
	return &Recorder{
		sink:          sink,
		slowThreshold: slowThreshold,
		ring:          make([]models.QueryRecord, historySize),
	}
}

// Record accepts one query outcome: it appends to the recent history,
// updates the counters, and forwards the record to the sink. The hit and
// miss counters move only when the cache decision point was reached, so
// hits+misses always equals the number of cache-checked queries.
func (r *Recorder) Record(ctx context.Context, out Outcome) {
	now := time.Now().UTC()
	rec := models.QueryRecord{
		RequestID:    out.RequestID,
		Query:        truncate(out.Question, maxQueryDisplayLen),
		FullQuery:    out.Question,
		ResponseTime: out.Response.ResponseTime,
		Cached:       out.Response.Outcome == models.OutcomeHit,
		SourceCount:  len(out.Response.Sources),
		AnswerLength: len(out.Response.Answer),
		Success:      out.Response.Outcome != models.OutcomeFailed,
		Error:        out.Response.Err,
		Timestamp:    now,
	}

	r.mu.Lock()
	r.ring[r.next] = rec
	r.next = (r.next + 1) % len(r.ring)
	if r.size < len(r.ring) {
		r.size++
	}
	r.total++
	if !rec.Success {
		r.errors++
	}
	if out.CacheChecked {
		if rec.Cached {
			r.hits++
		} else {
			r.misses++
		}
	}
	r.mu.Unlock()

	if r.sink != nil {
		_ = r.sink.LogQuery(ctx, rec)
		if !rec.Success {
			_ = r.sink.LogError(ctx, models.ErrorRecord{
				Category:  "query_processing",
				Message:   rec.Error,
				Context:   map[string]string{"query": rec.Query},
				CreatedAt: now,
			})
		}
	}
}

// RecordCacheOp forwards a cache get or set to the sink.
func (r *Recorder) RecordCacheOp(ctx context.Context, operation, question string, hit bool) {
	if r.sink == nil {
		return
	}
	_ = r.sink.LogCacheOp(ctx, models.CacheOp{
		Operation: operation,
		Query:     truncate(question, maxQueryDisplayLen),
		Hit:       hit,
		CreatedAt: time.Now().UTC(),
	})
}

// recent returns the ring contents oldest first. Caller holds r.mu.
func (r *Recorder) recent() []models.QueryRecord {
	out := make([]models.QueryRecord, 0, r.size)
	start := 0
	if r.size == len(r.ring) {
		start = r.next
	}
	for i := 0; i < r.size; i++ {
		out = append(out, r.ring[(start+i)%len(r.ring)])
	}
	return out
}

// Recent returns up to limit of the newest records, newest first. A
// non-positive limit returns the whole history window.
func (r *Recorder) Recent(limit int) []models.QueryRecord {
	r.mu.Lock()
	recs := r.recent()
	r.mu.Unlock()

	// reverse to newest first
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

// Statistics computes the aggregate view: exact lifetime rates from the
// counters, distribution figures from the recent window.
func (r *Recorder) Statistics() models.Statistics {
	r.mu.Lock()
	recs := r.recent()
	s := models.Statistics{
		TotalQueries: r.total,
		TotalErrors:  r.errors,
		CacheHits:    r.hits,
		CacheMisses:  r.misses,
	}
	r.mu.Unlock()

	if s.TotalQueries > 0 {
		s.ErrorRatePercent = round2(float64(s.TotalErrors) / float64(s.TotalQueries) * 100)
	}
	if hm := s.CacheHits + s.CacheMisses; hm > 0 {
		s.CacheHitRatePercent = round2(float64(s.CacheHits) / float64(hm) * 100)
	}

	s.RecentQueriesCount = len(recs)
	if len(recs) == 0 {
		return s
	}

	// response-time distribution covers successful queries only; failed
	// ones return fast and would make the figures look better than they are
	var timeSum, srcSum float64
	var ok int
	fastest := math.MaxFloat64
	var slowest float64
	for _, rec := range recs {
		srcSum += float64(rec.SourceCount)
		if !rec.Success {
			continue
		}
		ok++
		timeSum += rec.ResponseTime
		if rec.ResponseTime < fastest {
			fastest = rec.ResponseTime
		}
		if rec.ResponseTime > slowest {
			slowest = rec.ResponseTime
		}
	}
	s.AvgSourcesPerQuery = round2(srcSum / float64(len(recs)))
	if ok > 0 {
		s.AvgResponseTime = round3(timeSum / float64(ok))
		s.FastestResponse = round3(fastest)
		s.SlowestResponse = round3(slowest)
	}
	return s
}

// PopularQueries groups the recent window by exact full question text and
// returns the most frequent entries. Ties keep first-seen order.
func (r *Recorder) PopularQueries(limit int) []models.PopularQuery {
	r.mu.Lock()
	recs := r.recent()
	r.mu.Unlock()

	counts := make(map[string]int)
	var order []string
	for _, rec := range recs {
		if counts[rec.FullQuery] == 0 {
			order = append(order, rec.FullQuery)
		}
		counts[rec.FullQuery]++
	}

	out := make([]models.PopularQuery, 0, len(order))
	for _, q := range order {
		out = append(out, models.PopularQuery{Query: q, Count: counts[q]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SlowQueries returns recent queries slower than thresholdSeconds,
// slowest first. A non-positive threshold falls back to the configured
// default.
func (r *Recorder) SlowQueries(thresholdSeconds float64, limit int) []models.SlowQuery {
	if thresholdSeconds <= 0 {
		thresholdSeconds = r.slowThreshold
	}

	r.mu.Lock()
	recs := r.recent()
	r.mu.Unlock()

	var out []models.SlowQuery
	for _, rec := range recs {
		if rec.ResponseTime > thresholdSeconds {
			out = append(out, models.SlowQuery{
				Query:        rec.Query,
				ResponseTime: rec.ResponseTime,
				Timestamp:    rec.Timestamp,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ResponseTime > out[j].ResponseTime })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Summary snapshots statistics with the top popular and slow queries.
func (r *Recorder) Summary() models.MetricsSummary {
	return models.MetricsSummary{
		ExportedAt: time.Now().UTC(),
		Overall:    r.Statistics(),
		Popular:    r.PopularQueries(5),
		Slow:       r.SlowQueries(0, 5),
	}
}

// WriteSummary exports the current summary as indented JSON to path.
func (r *Recorder) WriteSummary(path string) error {
	data, err := json.MarshalIndent(r.Summary(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metrics summary: %w", err)
	}
	return nil
}

// Reset clears the history and zeroes all counters.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.ring {
		r.ring[i] = models.QueryRecord{}
	}
	r.next = 0
	r.size = 0
	r.total = 0
	r.errors = 0
	r.hits = 0
	r.misses = 0
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
