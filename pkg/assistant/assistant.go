// Package assistant orchestrates question answering: cache lookup, answer
// pipeline call with cache fill, and metrics recording. Every per-request
// failure becomes a response value; Ask never returns an error, so callers
// need no exception paths.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codesearch-ai/codesearch/pkg/metrics"
	"github.com/codesearch-ai/codesearch/pkg/models"
	"github.com/codesearch-ai/codesearch/pkg/pipeline"
)

// ErrCacheDisabled is returned by cache administration methods when the
// assistant runs without a response cache.
var ErrCacheDisabled = errors.New("response cache is disabled")

// Cache is the response cache as the orchestrator sees it. Get and Set
// report outcomes, not errors; the store degrades internally.
type Cache interface {
	Get(ctx context.Context, question string) (*models.CacheEntry, bool)
	Set(ctx context.Context, question, answer string, sources []string) bool
	Clear(ctx context.Context) int64
	Stats(ctx context.Context) (models.CacheStats, error)
	ResetStats(ctx context.Context) error
	HealthCheck(ctx context.Context) models.CacheHealth
	Close() error
}

// Assistant answers questions through the cache-aside flow. A nil cache is
// valid: every question goes straight to the pipeline and no hit or miss
// is counted.
type Assistant struct {
	cache    Cache
	answers  pipeline.Answerer
	recorder *metrics.Recorder
	logger   *slog.Logger
}

// New wires an Assistant. cache may be nil when caching is disabled or
// the backing store was unreachable at startup.
func New(cache Cache, answers pipeline.Answerer, rec *metrics.Recorder, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = metrics.New(100, 5.0, nil)
	}
	return &Assistant{
		cache:    cache,
		answers:  answers,
		recorder: rec,
		logger:   logger.With("component", "assistant"),
	}
}

// Ask answers one question. With bypassCache the lookup is skipped but a
// fresh answer is still written to the cache, so the next non-bypassed ask
// can hit. Bypassed and cache-disabled requests never move the hit or
// miss counters.
func (a *Assistant) Ask(ctx context.Context, question string, bypassCache bool) models.Response {
	start := time.Now()
	requestID := uuid.NewString()
	logger := a.logger.With("request_id", requestID)

	if strings.TrimSpace(question) == "" {
		resp := failedResponse("question is empty", start)
		a.record(ctx, requestID, question, resp, false)
		return resp
	}

	cacheChecked := false
	if a.cache != nil && !bypassCache {
		cacheChecked = true
		lookupStart := time.Now()
		entry, hit := a.cache.Get(ctx, question)
		lookupLatency := time.Since(lookupStart)
		a.recorder.RecordCacheOp(ctx, "get", question, hit)
		if hit {
			resp := models.Response{
				Answer:         entry.Answer,
				Sources:        entry.Sources,
				Outcome:        models.OutcomeHit,
				Cached:         true,
				CacheLatencyMs: roundMillis(lookupLatency),
				ResponseTime:   roundSeconds(time.Since(start)),
			}
			logger.Info("cache hit", "response_time", resp.ResponseTime)
			a.record(ctx, requestID, question, resp, cacheChecked)
			return resp
		}
	}

	retrievalStart := time.Now()
	answer, err := a.answers.Answer(ctx, question)
	if err != nil {
		logger.Error("pipeline failed", "error", err)
		resp := failedResponse(err.Error(), start)
		a.record(ctx, requestID, question, resp, cacheChecked)
		return resp
	}
	retrieval := roundSeconds(time.Since(retrievalStart))

	sources := dedupeSources(answer.Sources)
	if a.cache != nil {
		stored := a.cache.Set(ctx, question, answer.Text, sources)
		a.recorder.RecordCacheOp(ctx, "set", question, stored)
	}

	resp := models.Response{
		Answer:        answer.Text,
		Sources:       sources,
		Outcome:       models.OutcomeFresh,
		RetrievalTime: retrieval,
		ResponseTime:  roundSeconds(time.Since(start)),
	}
	logger.Info("fresh answer", "response_time", resp.ResponseTime, "sources", len(sources))
	a.record(ctx, requestID, question, resp, cacheChecked)
	return resp
}

func (a *Assistant) record(ctx context.Context, requestID, question string, resp models.Response, cacheChecked bool) {
	a.recorder.Record(ctx, metrics.Outcome{
		RequestID:    requestID,
		Question:     question,
		Response:     resp,
		CacheChecked: cacheChecked,
	})
}

// CacheStats reports the cache's derived statistics.
func (a *Assistant) CacheStats(ctx context.Context) (models.CacheStats, error) {
	if a.cache == nil {
		return models.CacheStats{}, ErrCacheDisabled
	}
	return a.cache.Stats(ctx)
}

// ClearCache removes all cached answers, preserving hit/miss counters.
func (a *Assistant) ClearCache(ctx context.Context) (int64, error) {
	if a.cache == nil {
		return 0, ErrCacheDisabled
	}
	return a.cache.Clear(ctx), nil
}

// ResetCacheStats zeroes the cache's hit/miss counters.
func (a *Assistant) ResetCacheStats(ctx context.Context) error {
	if a.cache == nil {
		return ErrCacheDisabled
	}
	return a.cache.ResetStats(ctx)
}

// Statistics returns the in-process metrics view.
func (a *Assistant) Statistics() models.Statistics {
	return a.recorder.Statistics()
}

// PopularQueries returns the most frequent recent questions.
func (a *Assistant) PopularQueries(limit int) []models.PopularQuery {
	return a.recorder.PopularQueries(limit)
}

// SlowQueries returns recent questions over thresholdSeconds; a
// non-positive threshold uses the configured default.
func (a *Assistant) SlowQueries(thresholdSeconds float64, limit int) []models.SlowQuery {
	return a.recorder.SlowQueries(thresholdSeconds, limit)
}

// Summary snapshots statistics plus top popular and slow queries.
func (a *Assistant) Summary() models.MetricsSummary {
	return a.recorder.Summary()
}

// ExportMetrics writes the current summary to a JSON file.
func (a *Assistant) ExportMetrics(path string) error {
	return a.recorder.WriteSummary(path)
}

// HealthCheck probes every component. A cache outage degrades the system;
// a pipeline outage makes it unhealthy, since no answers can be produced.
func (a *Assistant) HealthCheck(ctx context.Context) models.Health {
	h := models.Health{
		Status:     models.StatusHealthy,
		Components: make(map[string]models.ComponentHealth),
	}

	if a.cache == nil {
		h.Components["cache"] = models.ComponentHealth{Status: "disabled"}
	} else {
		ch := a.cache.HealthCheck(ctx)
		h.Components["cache"] = models.ComponentHealth{
			Status:    ch.Status,
			Connected: ch.Connected,
			LatencyMs: ch.LatencyMs,
			Error:     ch.Error,
		}
		if ch.Status != models.StatusHealthy {
			h.Status = models.StatusDegraded
		}
	}

	ph := a.answers.Health(ctx)
	h.Components["pipeline"] = ph
	if ph.Status != models.StatusHealthy {
		h.Status = models.StatusUnhealthy
	}

	return h
}

// Close releases the cache connection if one exists.
func (a *Assistant) Close() error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Close()
}

func failedResponse(reason string, start time.Time) models.Response {
	return models.Response{
		Answer:       fmt.Sprintf("Error processing your question: %s", reason),
		Sources:      []string{},
		Outcome:      models.OutcomeFailed,
		Err:          reason,
		ResponseTime: roundSeconds(time.Since(start)),
	}
}

// dedupeSources removes duplicate source paths, keeping first-seen order.
func dedupeSources(sources []string) []string {
	seen := make(map[string]bool, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

func roundMillis(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10) / 100
}
