package mcp

import (
	"fmt"
	"strings"

	"github.com/codesearch-ai/codesearch/pkg/models"
)

func formatStatistics(s models.Statistics) string {
	var b strings.Builder
	b.WriteString("Query Statistics\n")
	b.WriteString(strings.Repeat("-", 40) + "\n")
	fmt.Fprintf(&b, "%-24s %d\n", "Total queries:", s.TotalQueries)
	fmt.Fprintf(&b, "%-24s %d (%.2f%%)\n", "Errors:", s.TotalErrors, s.ErrorRatePercent)
	fmt.Fprintf(&b, "%-24s %d\n", "Cache hits:", s.CacheHits)
	fmt.Fprintf(&b, "%-24s %d\n", "Cache misses:", s.CacheMisses)
	fmt.Fprintf(&b, "%-24s %.2f%%\n", "Cache hit rate:", s.CacheHitRatePercent)
	fmt.Fprintf(&b, "%-24s %.3fs\n", "Avg response time:", s.AvgResponseTime)
	fmt.Fprintf(&b, "%-24s %.3fs / %.3fs\n", "Fastest / slowest:", s.FastestResponse, s.SlowestResponse)
	fmt.Fprintf(&b, "%-24s %.2f\n", "Avg sources per query:", s.AvgSourcesPerQuery)
	return b.String()
}

func formatPopular(popular []models.PopularQuery) string {
	if len(popular) == 0 {
		return "No queries recorded yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%6s  %s\n", "Count", "Query")
	b.WriteString(strings.Repeat("-", 60) + "\n")
	for _, p := range popular {
		fmt.Fprintf(&b, "%6d  %s\n", p.Count, p.Query)
	}
	return b.String()
}

func formatSlow(slow []models.SlowQuery, threshold float64) string {
	if len(slow) == 0 {
		return fmt.Sprintf("No queries slower than %.1fs.", threshold)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Queries slower than %.1fs\n", threshold)
	fmt.Fprintf(&b, "%10s  %-20s %s\n", "Time", "When", "Query")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, s := range slow {
		fmt.Fprintf(&b, "%9.3fs  %-20s %s\n",
			s.ResponseTime, s.Timestamp.Format("2006-01-02 15:04:05"), s.Query)
	}
	return b.String()
}

func formatCacheStats(s models.CacheStats) string {
	var b strings.Builder
	b.WriteString("Response Cache\n")
	b.WriteString(strings.Repeat("-", 40) + "\n")
	fmt.Fprintf(&b, "%-18s %d\n", "Hits:", s.Hits)
	fmt.Fprintf(&b, "%-18s %d\n", "Misses:", s.Misses)
	fmt.Fprintf(&b, "%-18s %d\n", "Total requests:", s.TotalRequests)
	fmt.Fprintf(&b, "%-18s %.2f%%\n", "Hit rate:", s.HitRatePercent)
	fmt.Fprintf(&b, "%-18s %d\n", "Cached queries:", s.CachedQueries)
	fmt.Fprintf(&b, "%-18s %.2f MB\n", "Memory usage:", s.MemoryUsageMB)
	return b.String()
}

func formatCacheHealth(h models.CacheHealth) string {
	if !h.Connected {
		msg := "Cache backing store is unreachable."
		if h.Error != "" {
			msg += "\nError: " + h.Error
		}
		return msg
	}
	return fmt.Sprintf("Cache backing store is healthy (ping %.2fms).", h.LatencyMs)
}
