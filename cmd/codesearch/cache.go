package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	cachepkg "github.com/codesearch-ai/codesearch/pkg/cache/redis"
	"github.com/codesearch-ai/codesearch/pkg/config"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}

	withStore := func(fn func(ctx context.Context, store *cachepkg.Store) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.Redis.Enabled {
				return fmt.Errorf("response cache is disabled in %s", configPath)
			}
			store, err := cachepkg.New(cfg.Redis, newLogger("warn"))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			return fn(cmd.Context(), store)
		}
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache hit/miss statistics",
		RunE: withStore(func(ctx context.Context, store *cachepkg.Store) error {
			stats, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Hits:           %d\n", stats.Hits)
			fmt.Printf("Misses:         %d\n", stats.Misses)
			fmt.Printf("Total requests: %d\n", stats.TotalRequests)
			fmt.Printf("Hit rate:       %.2f%%\n", stats.HitRatePercent)
			fmt.Printf("Cached queries: %d\n", stats.CachedQueries)
			fmt.Printf("Memory usage:   %.2f MB\n", stats.MemoryUsageMB)
			return nil
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached answers (hit/miss counters are kept)",
		RunE: withStore(func(ctx context.Context, store *cachepkg.Store) error {
			deleted := store.Clear(ctx)
			fmt.Printf("Deleted %d cached answers.\n", deleted)
			return nil
		}),
	}

	resetStatsCmd := &cobra.Command{
		Use:   "reset-stats",
		Short: "Zero the hit/miss counters",
		RunE: withStore(func(ctx context.Context, store *cachepkg.Store) error {
			if err := store.ResetStats(ctx); err != nil {
				return err
			}
			fmt.Println("Cache counters reset.")
			return nil
		}),
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the cache backing store",
		RunE: withStore(func(ctx context.Context, store *cachepkg.Store) error {
			h := store.HealthCheck(ctx)
			if !h.Connected {
				return fmt.Errorf("cache unreachable: %s", h.Error)
			}
			fmt.Printf("Connected (ping %.2fms).\n", h.LatencyMs)
			return nil
		}),
	}

	cmd.AddCommand(statsCmd, clearCmd, resetStatsCmd, healthCmd)
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "codesearch.yaml", "path to config file")
	return cmd
}
