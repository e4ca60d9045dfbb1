package models

import "time"

// Statistics aggregates recent query activity. Hit and error rates come
// from the process-wide counters; the response-time distribution and
// source averages come from the bounded recent history.
type Statistics struct {
	TotalQueries        int64   `json:"total_queries"`
	TotalErrors         int64   `json:"total_errors"`
	ErrorRatePercent    float64 `json:"error_rate_percent"`
	CacheHits           int64   `json:"cache_hits"`
	CacheMisses         int64   `json:"cache_misses"`
	CacheHitRatePercent float64 `json:"cache_hit_rate_percent"`
	AvgResponseTime     float64 `json:"avg_response_time"`
	AvgSourcesPerQuery  float64 `json:"avg_sources_per_query"`
	RecentQueriesCount  int     `json:"recent_queries_count"`
	FastestResponse     float64 `json:"fastest_response"`
	SlowestResponse     float64 `json:"slowest_response"`
}

// PopularQuery is a question grouped by exact text with its occurrence count.
type PopularQuery struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// SlowQuery is a query whose response time exceeded a threshold.
type SlowQuery struct {
	Query        string    `json:"query"`
	ResponseTime float64   `json:"response_time"`
	Timestamp    time.Time `json:"timestamp"`
}

// MetricsSummary is a point-in-time snapshot of statistics plus the top
// popular and slow queries, suitable for export.
type MetricsSummary struct {
	ExportedAt time.Time      `json:"export_timestamp"`
	Overall    Statistics     `json:"overall_statistics"`
	Popular    []PopularQuery `json:"popular_queries"`
	Slow       []SlowQuery    `json:"slow_queries"`
}
