package models

import "time"

// CacheEntry is the stored answer payload for one normalized question.
// ExpiresAt is absolute; the backing store enforces it, so an entry is
// never served past its expiry.
type CacheEntry struct {
	Answer    string    `json:"answer"`
	Sources   []string  `json:"sources"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CacheStats is derived on demand from the backing store; nothing here is
// persisted as a unit.
type CacheStats struct {
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	TotalRequests  int64   `json:"total_requests"`
	HitRatePercent float64 `json:"hit_rate_percent"`
	CachedQueries  int64   `json:"cached_queries"`
	MemoryUsageMB  float64 `json:"memory_usage_mb"`
}

// CacheHealth reports a backing-store probe.
type CacheHealth struct {
	Status    string  `json:"status"` // "healthy" or "unhealthy"
	Connected bool    `json:"connected"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
	Error     string  `json:"error,omitempty"`
}
