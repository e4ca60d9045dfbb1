package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codesearch-ai/codesearch/pkg/config"
	"github.com/codesearch-ai/codesearch/pkg/models"
)

func newAskCmd() *cobra.Command {
	var configPath string
	var noCache bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question and print the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := newLogger("warn")
			a, qlog := buildAssistant(cfg, logger)
			defer func() { _ = a.Close() }()
			if qlog != nil {
				defer func() { _ = qlog.Close() }()
			}

			resp := a.Ask(context.Background(), args[0], noCache)

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			fmt.Println(resp.Answer)
			if len(resp.Sources) > 0 {
				fmt.Println("\nSources:")
				for _, s := range resp.Sources {
					fmt.Printf("  - %s\n", s)
				}
			}
			switch resp.Outcome {
			case models.OutcomeHit:
				fmt.Printf("\n(cached, %.3fs)\n", resp.ResponseTime)
			case models.OutcomeFresh:
				fmt.Printf("\n(fresh, %.3fs)\n", resp.ResponseTime)
			case models.OutcomeFailed:
				return fmt.Errorf("query failed: %s", resp.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "codesearch.yaml", "path to config file")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the cache lookup (the answer is still cached)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	return cmd
}
