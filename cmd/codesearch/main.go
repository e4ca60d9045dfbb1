package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "codesearch",
		Short:   "CodeSearch — documentation QA with a Redis response cache",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newAskCmd(),
		newCacheCmd(),
		newMetricsCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
