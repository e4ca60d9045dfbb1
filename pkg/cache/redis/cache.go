// Package redis implements the response cache on top of a Redis backing
// store. Every backing-store failure degrades to a cache miss: the
// answer-delivery path never sees an error from Get or Set, so a cache
// outage means recomputing answers, not refusing them.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/codesearch-ai/codesearch/pkg/config"
	"github.com/codesearch-ai/codesearch/pkg/models"
)

// Store is a question/answer cache with per-entry TTL and hit/miss
// counters kept in the backing store itself. The counters live under a
// separate key space from the entries so Clear preserves them, and they
// rely on Redis's atomic INCR rather than local locking.
type Store struct {
	client    *goredis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// New connects to Redis and verifies the connection with a ping.
func New(cfg config.RedisConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	s := &Store{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.With("component", "cache"),
	}
	s.logger.Info("response cache connected", "addr", cfg.Addr, "ttl", cfg.TTL)
	return s, nil
}

// Normalize canonicalizes question text for cache-key purposes. Only case
// and surrounding whitespace are folded; punctuation and word forms are
// left alone, so "what is jsx" and "what is jsx?" remain distinct keys.
func Normalize(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}

// Key returns the backing-store key for a question:
// {prefix}query:{sha256 of the normalized text}.
func (s *Store) Key(question string) string {
	sum := sha256.Sum256([]byte(Normalize(question)))
	return fmt.Sprintf("%squery:%x", s.keyPrefix, sum)
}

func (s *Store) hitsKey() string   { return s.keyPrefix + "stats:hits" }
func (s *Store) missesKey() string { return s.keyPrefix + "stats:misses" }
func (s *Store) queryPattern() string {
	return s.keyPrefix + "query:*"
}

// Get looks up a cached entry for the question. The bool result reports a
// hit. Expired entries are evicted by Redis and never returned. Read
// errors and malformed payloads count as misses.
func (s *Store) Get(ctx context.Context, question string) (*models.CacheEntry, bool) {
	key := s.Key(question)

	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			s.logger.Error("cache read failed", "error", err, "key", key)
		}
		s.incrCounter(ctx, s.missesKey())
		return nil, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		s.logger.Error("cache entry malformed", "error", err, "key", key)
		s.incrCounter(ctx, s.missesKey())
		return nil, false
	}

	s.incrCounter(ctx, s.hitsKey())
	return &entry, true
}

// Set writes an entry with the configured TTL. The expiry is absolute:
// fixed at write time, never extended on read. A false return means the
// write failed; answer delivery proceeds regardless.
func (s *Store) Set(ctx context.Context, question, answer string, sources []string) bool {
	now := time.Now().UTC()
	entry := models.CacheEntry{
		Answer:    answer,
		Sources:   sources,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Error("cache entry marshal failed", "error", err)
		return false
	}

	if err := s.client.Set(ctx, s.Key(question), data, s.ttl).Err(); err != nil {
		s.logger.Error("cache write failed", "error", err)
		return false
	}
	return true
}

// Clear deletes all cached queries under the store's namespace, leaving
// the hit/miss counters intact. It returns the number of keys removed;
// zero on failure, with the failure surfaced only through logs.
func (s *Store) Clear(ctx context.Context) int64 {
	var cursor uint64
	var deleted int64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.queryPattern(), 100).Result()
		if err != nil {
			s.logger.Error("cache clear scan failed", "error", err)
			return 0
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				s.logger.Error("cache clear delete failed", "error", err)
				return 0
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	s.logger.Info("cache cleared", "deleted", deleted)
	return deleted
}

// Stats derives cache statistics from the backing store: the persistent
// hit/miss counters, a live count of cached queries, and the store's
// memory usage. Counter or scan failures return an error; a missing or
// unparsable INFO section only zeroes the memory figure, since that stat
// is informational.
func (s *Store) Stats(ctx context.Context) (models.CacheStats, error) {
	hits, err := s.counter(ctx, s.hitsKey())
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("read hit counter: %w", err)
	}
	misses, err := s.counter(ctx, s.missesKey())
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("read miss counter: %w", err)
	}

	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = round2(float64(hits) / float64(total) * 100)
	}

	cached, err := s.countKeys(ctx, s.queryPattern())
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("count cached queries: %w", err)
	}

	var memoryMB float64
	if info, err := s.client.Info(ctx, "memory").Result(); err == nil {
		memoryMB = round2(float64(parseUsedMemory(info)) / (1024 * 1024))
	} else {
		s.logger.Debug("memory info unavailable", "error", err)
	}

	return models.CacheStats{
		Hits:           hits,
		Misses:         misses,
		TotalRequests:  total,
		HitRatePercent: hitRate,
		CachedQueries:  cached,
		MemoryUsageMB:  memoryMB,
	}, nil
}

// ResetStats deletes the hit/miss counters.
func (s *Store) ResetStats(ctx context.Context) error {
	if err := s.client.Del(ctx, s.hitsKey(), s.missesKey()).Err(); err != nil {
		return fmt.Errorf("reset cache counters: %w", err)
	}
	return nil
}

// HealthCheck issues a ping and reports connectivity with round-trip
// latency. It never returns an error; failure is part of the result.
func (s *Store) HealthCheck(ctx context.Context) models.CacheHealth {
	start := time.Now()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return models.CacheHealth{
			Status:    models.StatusUnhealthy,
			Connected: false,
			Error:     err.Error(),
		}
	}
	return models.CacheHealth{
		Status:    models.StatusHealthy,
		Connected: true,
		LatencyMs: round2(float64(time.Since(start).Microseconds()) / 1000),
	}
}

// Close releases the Redis connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// incrCounter bumps a stats counter, best effort. Counter updates must not
// turn a degraded cache into a hard failure.
func (s *Store) incrCounter(ctx context.Context, key string) {
	if err := s.client.Incr(ctx, key).Err(); err != nil {
		s.logger.Warn("cache counter update failed", "error", err, "key", key)
	}
}

func (s *Store) counter(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s not an integer: %w", key, err)
	}
	return n, nil
}

func (s *Store) countKeys(ctx context.Context, pattern string) (int64, error) {
	var cursor uint64
	var count int64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return 0, err
		}
		count += int64(len(keys))
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

// parseUsedMemory extracts used_memory from a Redis INFO memory section.
func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "used_memory:"); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0
			}
			return n
		}
	}
	return 0
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
