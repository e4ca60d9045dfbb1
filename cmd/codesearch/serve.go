package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codesearch-ai/codesearch/pkg/assistant"
	cachepkg "github.com/codesearch-ai/codesearch/pkg/cache/redis"
	"github.com/codesearch-ai/codesearch/pkg/config"
	"github.com/codesearch-ai/codesearch/pkg/metrics"
	"github.com/codesearch-ai/codesearch/pkg/pipeline"
	"github.com/codesearch-ai/codesearch/pkg/querylog"
	"github.com/codesearch-ai/codesearch/pkg/server"
)

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// openCache connects the Redis store. An unreachable store at startup is
// not fatal: the service runs uncached and the health endpoint reports
// degraded until Redis comes back and the process is restarted.
func openCache(cfg *config.Config, logger *slog.Logger) assistant.Cache {
	if !cfg.Redis.Enabled {
		return nil
	}
	store, err := cachepkg.New(cfg.Redis, logger)
	if err != nil {
		logger.Warn("response cache unavailable, serving uncached", "error", err)
		return nil
	}
	return store
}

func openQueryLog(cfg *config.Config, logger *slog.Logger) *querylog.Log {
	if !cfg.QueryLog.Enabled {
		return nil
	}
	log, err := querylog.New(cfg.LogDBPath, cfg.QueryLog)
	if err != nil {
		logger.Warn("query log unavailable", "error", err)
		return nil
	}
	return log
}

func buildAssistant(cfg *config.Config, logger *slog.Logger) (*assistant.Assistant, *querylog.Log) {
	qlog := openQueryLog(cfg, logger)
	var sink metrics.Sink
	if qlog != nil {
		sink = qlog
	}
	rec := metrics.New(cfg.Metrics.HistorySize, cfg.Metrics.SlowThresholdSeconds, sink)
	cache := openCache(cfg, logger)
	answers := pipeline.New(cfg.Pipeline, logger)
	return assistant.New(cache, answers, rec, logger), qlog
}

func newServeCmd() *cobra.Command {
	var configPath string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the question-answering HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := newLogger(logLevel)
			slog.SetDefault(logger)

			a, qlog := buildAssistant(cfg, logger)
			defer func() { _ = a.Close() }()
			if qlog != nil {
				defer func() { _ = qlog.Close() }()
			}

			srv := server.New(cfg.Listen, a, logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("starting codesearch", "config", configPath, "listen", cfg.Listen)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "codesearch.yaml", "path to config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}
