// Package main provides the review engine CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/minerva-reviews/review-engine/internal/app"
	"github.com/minerva-reviews/review-engine/internal/config"
)

var (
	cfgFile    string
	outputJSON bool
	noColor    bool
	verbose    bool

	cfg *config.Config
	ui  *UI
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "review-engine-cli",
		Short: "Review engine CLI for classification, retrieval and chat",
		Long: `Review engine CLI runs the query pipeline against the configured
vector index without the HTTP server.

Use this tool to:
- Classify questions, one at a time or as a YAML evaluation suite
- Inspect the context and prompt a question would produce
- Ask a full question and stream the answer
- Look up indexed records by exact title

All commands support --json for automation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !verbose {
				cfg.Observability.LogLevel = "warn"
			}
			cfg.Observability.LogFormat = "console"
			ui = NewUI(cmd.OutOrStdout(), outputJSON, noColor)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("CONFIG_PATH"), "config file path (default: env vars only)")
	root.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newClassifyCmd())
	root.AddCommand(newContextCmd())
	root.AddCommand(newAskCmd())
	root.AddCommand(newFindRecordCmd())
	root.AddCommand(newIndexStatsCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openApp wires the components for one command.
func openApp(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	logOut := cmd.ErrOrStderr()
	if outputJSON && !verbose {
		logOut = io.Discard
	}
	a, err := app.New(ctx, cfg, app.Options{LogOutput: logOut, Component: "cli"})
	if err != nil {
		return nil, fmt.Errorf("initialise: %w", err)
	}
	return a, nil
}
