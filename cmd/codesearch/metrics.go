package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/codesearch-ai/codesearch/pkg/config"
	"github.com/codesearch-ai/codesearch/pkg/models"
	"github.com/codesearch-ai/codesearch/pkg/querylog"
)

func newMetricsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Report on recorded query activity",
	}

	withLog := func(fn func(ctx context.Context, cfg *config.Config, qlog *querylog.Log) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			qlog, err := querylog.New(cfg.LogDBPath, cfg.QueryLog)
			if err != nil {
				return err
			}
			defer func() { _ = qlog.Close() }()
			return fn(cmd.Context(), cfg, qlog)
		}
	}

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Show overall query statistics",
		RunE: withLog(func(ctx context.Context, cfg *config.Config, qlog *querylog.Log) error {
			s, err := qlog.Summary(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Total queries:          %d\n", s.TotalQueries)
			fmt.Printf("Errors:                 %d (%.2f%%)\n", s.TotalErrors, s.ErrorRatePercent)
			fmt.Printf("Cache hits:             %d\n", s.CacheHits)
			fmt.Printf("Cache misses:           %d\n", s.CacheMisses)
			fmt.Printf("Cache hit rate:         %.2f%%\n", s.CacheHitRatePercent)
			fmt.Printf("Avg response time:      %.3fs\n", s.AvgResponseTime)
			fmt.Printf("Fastest / slowest:      %.3fs / %.3fs\n", s.FastestResponse, s.SlowestResponse)
			fmt.Printf("Avg sources per query:  %.2f\n", s.AvgSourcesPerQuery)
			return nil
		}),
	}

	var popularLimit int
	popularCmd := &cobra.Command{
		Use:   "popular",
		Short: "Show the most frequently asked questions",
		RunE: withLog(func(ctx context.Context, cfg *config.Config, qlog *querylog.Log) error {
			popular, err := qlog.Popular(ctx, popularLimit)
			if err != nil {
				return err
			}
			if len(popular) == 0 {
				fmt.Println("No queries recorded yet.")
				return nil
			}
			for _, p := range popular {
				fmt.Printf("%6d  %s\n", p.Count, p.Query)
			}
			return nil
		}),
	}
	popularCmd.Flags().IntVarP(&popularLimit, "limit", "n", 10, "number of queries to show")

	var slowLimit int
	slowCmd := &cobra.Command{
		Use:   "slow",
		Short: "Show queries over the slow threshold",
		RunE: withLog(func(ctx context.Context, cfg *config.Config, qlog *querylog.Log) error {
			slow, err := qlog.Slow(ctx, cfg.Metrics.SlowThresholdSeconds, slowLimit)
			if err != nil {
				return err
			}
			if len(slow) == 0 {
				fmt.Printf("No queries slower than %.1fs.\n", cfg.Metrics.SlowThresholdSeconds)
				return nil
			}
			for _, s := range slow {
				fmt.Printf("%9.3fs  %-20s %s\n",
					s.ResponseTime, s.Timestamp.Format("2006-01-02 15:04:05"), s.Query)
			}
			return nil
		}),
	}
	slowCmd.Flags().IntVarP(&slowLimit, "limit", "n", 10, "number of queries to show")

	var exportPath string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export a metrics summary as JSON",
		RunE: withLog(func(ctx context.Context, cfg *config.Config, qlog *querylog.Log) error {
			overall, err := qlog.Summary(ctx)
			if err != nil {
				return err
			}
			popular, err := qlog.Popular(ctx, 5)
			if err != nil {
				return err
			}
			slow, err := qlog.Slow(ctx, cfg.Metrics.SlowThresholdSeconds, 5)
			if err != nil {
				return err
			}

			summary := models.MetricsSummary{
				ExportedAt: time.Now().UTC(),
				Overall:    overall,
				Popular:    popular,
				Slow:       slow,
			}
			data, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal summary: %w", err)
			}

			if exportPath == "" || exportPath == "-" {
				fmt.Println(string(data))
				return nil
			}
			if err := os.WriteFile(exportPath, data, 0o644); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
			fmt.Printf("Wrote %s\n", exportPath)
			return nil
		}),
	}
	exportCmd.Flags().StringVarP(&exportPath, "output", "o", "-", "output file (- for stdout)")

	cmd.AddCommand(summaryCmd, popularCmd, slowCmd, exportCmd)
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "codesearch.yaml", "path to config file")
	return cmd
}
