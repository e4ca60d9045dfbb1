package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cachepkg "github.com/codesearch-ai/codesearch/pkg/cache/redis"
	"github.com/codesearch-ai/codesearch/pkg/config"
	"github.com/codesearch-ai/codesearch/pkg/mcp"
	"github.com/codesearch-ai/codesearch/pkg/querylog"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve query metrics and cache inspection over MCP (stdio)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			// logs go to stderr; stdout is the JSON-RPC transport
			logger := newLogger("warn")

			qlog, err := querylog.New(cfg.LogDBPath, cfg.QueryLog)
			if err != nil {
				return fmt.Errorf("open query log: %w", err)
			}
			defer func() { _ = qlog.Close() }()

			var cache mcp.CacheInspector
			if cfg.Redis.Enabled {
				store, err := cachepkg.New(cfg.Redis, logger)
				if err != nil {
					logger.Warn("response cache unavailable", "error", err)
				} else {
					defer func() { _ = store.Close() }()
					cache = store
				}
			}

			srv := mcp.New(qlog, cache, cfg.Metrics.SlowThresholdSeconds, version, logger)
			return srv.Run(cmd.Context(), os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "codesearch.yaml", "path to config file")
	return cmd
}
