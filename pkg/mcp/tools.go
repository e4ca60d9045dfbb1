package mcp

import (
	"context"
	"encoding/json"
)

type limitArgs struct {
	Limit int `json:"limit"`
}

// toolHandler handles one tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"codesearch_statistics":      handleStatistics,
	"codesearch_popular_queries": handlePopularQueries,
	"codesearch_slow_queries":    handleSlowQueries,
	"codesearch_cache_stats":     handleCacheStats,
	"codesearch_health":          handleHealth,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "codesearch_statistics",
		Description: "Show aggregated query statistics: totals, error rate, cache hit rate, response-time distribution.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "codesearch_popular_queries",
		Description: "List the most frequently asked questions with occurrence counts.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of queries to return (optional, default 10)",
				},
			},
		},
	},
	{
		Name:        "codesearch_slow_queries",
		Description: "List queries whose response time exceeded the slow threshold, slowest first.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of queries to return (optional, default 10)",
				},
			},
		},
	},
	{
		Name:        "codesearch_cache_stats",
		Description: "Show response cache statistics (hits, misses, hit rate, cached queries, memory usage).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "codesearch_health",
		Description: "Probe the response cache and report connectivity and latency.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleStatistics(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	stats, err := s.metrics.Summary(ctx)
	if err != nil {
		return errorResult("Error fetching statistics: " + err.Error())
	}
	return textResult(formatStatistics(stats))
}

func handlePopularQueries(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args limitArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	popular, err := s.metrics.Popular(ctx, args.Limit)
	if err != nil {
		return errorResult("Error fetching popular queries: " + err.Error())
	}
	return textResult(formatPopular(popular))
}

func handleSlowQueries(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args limitArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	slow, err := s.metrics.Slow(ctx, s.slowThreshold, args.Limit)
	if err != nil {
		return errorResult("Error fetching slow queries: " + err.Error())
	}
	return textResult(formatSlow(slow, s.slowThreshold))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Response cache is disabled.")
	}
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

func handleHealth(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Response cache is disabled.")
	}
	return textResult(formatCacheHealth(s.cache.HealthCheck(ctx)))
}
