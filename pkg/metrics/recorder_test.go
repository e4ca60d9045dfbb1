package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/codesearch-ai/codesearch/pkg/models"
)

func record(question string, outcome models.Outcome, responseTime float64, sources int) Outcome {
	resp := models.Response{
		Answer:       "an answer",
		Outcome:      outcome,
		Cached:       outcome == models.OutcomeHit,
		ResponseTime: responseTime,
	}
	for i := 0; i < sources; i++ {
		resp.Sources = append(resp.Sources, fmt.Sprintf("doc-%d.md", i))
	}
	if outcome == models.OutcomeFailed {
		resp.Answer = ""
		resp.Err = "pipeline unavailable"
	}
	return Outcome{
		Question:     question,
		Response:     resp,
		CacheChecked: true,
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	r := New(3, 5.0, nil)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		r.Record(ctx, record(fmt.Sprintf("q%d", i), models.OutcomeFresh, 1.0, 1))
	}

	recent := r.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("recent window = %d records, want 3", len(recent))
	}
	if recent[0].Query != "q5" || recent[2].Query != "q3" {
		t.Errorf("window contents = %q..%q, want q5..q3", recent[0].Query, recent[2].Query)
	}

	s := r.Statistics()
	if s.TotalQueries != 5 {
		t.Errorf("total survived overwrite = %d, want 5", s.TotalQueries)
	}
	if s.RecentQueriesCount != 3 {
		t.Errorf("recent count = %d, want 3", s.RecentQueriesCount)
	}
}

func TestStatistics(t *testing.T) {
	r := New(10, 5.0, nil)
	ctx := context.Background()

	r.Record(ctx, record("a", models.OutcomeHit, 0.01, 2))
	r.Record(ctx, record("b", models.OutcomeFresh, 2.0, 4))
	r.Record(ctx, record("c", models.OutcomeFailed, 0.5, 0))

	s := r.Statistics()
	if s.TotalQueries != 3 || s.TotalErrors != 1 {
		t.Errorf("totals = %d/%d, want 3/1", s.TotalQueries, s.TotalErrors)
	}
	if s.CacheHits != 1 || s.CacheMisses != 2 {
		t.Errorf("hits/misses = %d/%d, want 1/2", s.CacheHits, s.CacheMisses)
	}
	if s.CacheHits+s.CacheMisses != s.TotalQueries {
		t.Error("hit+miss does not cover every cache-checked query")
	}
	if s.ErrorRatePercent != 33.33 {
		t.Errorf("error rate = %v, want 33.33", s.ErrorRatePercent)
	}
	if s.CacheHitRatePercent != 33.33 {
		t.Errorf("hit rate = %v, want 33.33", s.CacheHitRatePercent)
	}
	// distribution over the two successful queries only
	if s.AvgResponseTime != 1.005 {
		t.Errorf("avg response time = %v, want 1.005", s.AvgResponseTime)
	}
	if s.AvgSourcesPerQuery != 2.0 {
		t.Errorf("avg sources = %v, want 2.0", s.AvgSourcesPerQuery)
	}
	if s.FastestResponse != 0.01 || s.SlowestResponse != 2.0 {
		t.Errorf("fastest/slowest = %v/%v", s.FastestResponse, s.SlowestResponse)
	}
}

func TestStatisticsEmpty(t *testing.T) {
	r := New(10, 5.0, nil)

	s := r.Statistics()
	if s.TotalQueries != 0 || s.ErrorRatePercent != 0 || s.CacheHitRatePercent != 0 {
		t.Errorf("empty statistics = %+v", s)
	}
	if s.AvgResponseTime != 0 || s.FastestResponse != 0 || s.SlowestResponse != 0 {
		t.Errorf("empty distribution = %+v", s)
	}
}

func TestBypassedQueriesDoNotMoveCounters(t *testing.T) {
	r := New(10, 5.0, nil)
	ctx := context.Background()

	bypassed := record("bypass", models.OutcomeFresh, 1.0, 1)
	bypassed.CacheChecked = false
	r.Record(ctx, bypassed)
	r.Record(ctx, record("checked", models.OutcomeHit, 0.01, 1))

	s := r.Statistics()
	if s.TotalQueries != 2 {
		t.Errorf("total = %d, want 2", s.TotalQueries)
	}
	if s.CacheHits+s.CacheMisses != 1 {
		t.Errorf("hit+miss = %d, want 1 (bypass must not count)", s.CacheHits+s.CacheMisses)
	}
}

func TestPopularQueries(t *testing.T) {
	r := New(20, 5.0, nil)
	ctx := context.Background()

	for _, q := range []string{"alpha", "beta", "alpha", "gamma", "beta", "alpha"} {
		r.Record(ctx, record(q, models.OutcomeFresh, 1.0, 1))
	}

	popular := r.PopularQueries(2)
	if len(popular) != 2 {
		t.Fatalf("got %d popular queries, want 2", len(popular))
	}
	if popular[0].Query != "alpha" || popular[0].Count != 3 {
		t.Errorf("top = %+v, want alpha/3", popular[0])
	}
	if popular[1].Query != "beta" || popular[1].Count != 2 {
		t.Errorf("second = %+v, want beta/2", popular[1])
	}
}

func TestPopularQueriesTiesKeepFirstSeenOrder(t *testing.T) {
	r := New(20, 5.0, nil)
	ctx := context.Background()

	for _, q := range []string{"first", "second", "first", "second"} {
		r.Record(ctx, record(q, models.OutcomeFresh, 1.0, 1))
	}

	popular := r.PopularQueries(0)
	if popular[0].Query != "first" || popular[1].Query != "second" {
		t.Errorf("tie order = %q, %q, want first, second", popular[0].Query, popular[1].Query)
	}
}

func TestSlowQueries(t *testing.T) {
	r := New(20, 5.0, nil)
	ctx := context.Background()

	r.Record(ctx, record("fast", models.OutcomeFresh, 0.5, 1))
	r.Record(ctx, record("slow", models.OutcomeFresh, 6.0, 1))
	r.Record(ctx, record("ok", models.OutcomeFresh, 1.0, 1))
	r.Record(ctx, record("slowest", models.OutcomeFresh, 9.0, 1))

	slow := r.SlowQueries(0, 0)
	if len(slow) != 2 {
		t.Fatalf("got %d slow queries, want 2", len(slow))
	}
	if slow[0].Query != "slowest" || slow[1].Query != "slow" {
		t.Errorf("slow order = %q, %q", slow[0].Query, slow[1].Query)
	}
}

func TestSlowQueriesPerCallThreshold(t *testing.T) {
	r := New(20, 5.0, nil)
	ctx := context.Background()

	r.Record(ctx, record("fast", models.OutcomeFresh, 0.3, 1))
	r.Record(ctx, record("middling", models.OutcomeFresh, 2.0, 1))
	r.Record(ctx, record("slow", models.OutcomeFresh, 6.0, 1))

	// a tighter threshold than the configured 5.0 catches more
	slow := r.SlowQueries(1.0, 0)
	if len(slow) != 2 {
		t.Fatalf("threshold 1.0 returned %d queries, want 2", len(slow))
	}
	if slow[0].Query != "slow" || slow[1].Query != "middling" {
		t.Errorf("order = %q, %q", slow[0].Query, slow[1].Query)
	}

	// a looser one catches none
	if got := r.SlowQueries(10.0, 0); len(got) != 0 {
		t.Errorf("threshold 10.0 returned %d queries, want 0", len(got))
	}

	// non-positive falls back to the configured default
	if got := r.SlowQueries(0, 0); len(got) != 1 {
		t.Errorf("default threshold returned %d queries, want 1", len(got))
	}
}

func TestQueryTruncation(t *testing.T) {
	r := New(5, 5.0, nil)
	ctx := context.Background()

	long := strings.Repeat("x", 150)
	r.Record(ctx, record(long, models.OutcomeFresh, 1.0, 1))

	recent := r.Recent(1)
	if len(recent[0].Query) != maxQueryDisplayLen {
		t.Errorf("stored query length = %d, want %d", len(recent[0].Query), maxQueryDisplayLen)
	}
	if recent[0].FullQuery != long {
		t.Error("full query was not preserved")
	}
}

func TestQueryTruncationKeepsRunesIntact(t *testing.T) {
	r := New(5, 5.0, nil)
	ctx := context.Background()

	// 3-byte runes; byte 100 falls inside the 34th rune
	long := strings.Repeat("日本語", 40)
	r.Record(ctx, record(long, models.OutcomeFresh, 1.0, 1))

	got := r.Recent(1)[0].Query
	if !utf8.ValidString(got) {
		t.Errorf("truncated query is not valid UTF-8: %q", got)
	}
	if len(got) > maxQueryDisplayLen {
		t.Errorf("truncated query is %d bytes, limit %d", len(got), maxQueryDisplayLen)
	}
	if !strings.HasPrefix(long, got) {
		t.Error("truncated query is not a prefix of the original")
	}
}

func TestConcurrentRecords(t *testing.T) {
	r := New(50, 5.0, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := models.OutcomeFresh
			if i%2 == 0 {
				outcome = models.OutcomeHit
			}
			r.Record(ctx, record(fmt.Sprintf("q%d", i), outcome, 1.0, 1))
		}(i)
	}
	wg.Wait()

	s := r.Statistics()
	if s.TotalQueries != 100 {
		t.Errorf("total = %d, want 100", s.TotalQueries)
	}
	if s.CacheHits+s.CacheMisses != 100 {
		t.Errorf("hit+miss = %d, want 100", s.CacheHits+s.CacheMisses)
	}
	if s.RecentQueriesCount != 50 {
		t.Errorf("recent count = %d, want 50", s.RecentQueriesCount)
	}
}

func TestReset(t *testing.T) {
	r := New(10, 5.0, nil)
	ctx := context.Background()

	r.Record(ctx, record("q", models.OutcomeFresh, 1.0, 1))
	r.Reset()

	s := r.Statistics()
	if s.TotalQueries != 0 || s.RecentQueriesCount != 0 {
		t.Errorf("statistics after reset = %+v", s)
	}
	if len(r.Recent(0)) != 0 {
		t.Error("history survived reset")
	}
}

func TestWriteSummary(t *testing.T) {
	r := New(10, 5.0, nil)
	ctx := context.Background()

	r.Record(ctx, record("exported", models.OutcomeFresh, 6.5, 2))

	path := filepath.Join(t.TempDir(), "metrics.json")
	if err := r.WriteSummary(path); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var summary models.MetricsSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if summary.Overall.TotalQueries != 1 {
		t.Errorf("exported total = %d, want 1", summary.Overall.TotalQueries)
	}
	if len(summary.Slow) != 1 || summary.Slow[0].Query != "exported" {
		t.Errorf("exported slow queries = %v", summary.Slow)
	}
	if summary.ExportedAt.IsZero() {
		t.Error("export timestamp missing")
	}
}
