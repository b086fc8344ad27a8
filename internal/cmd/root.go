// Package cmd implements the lmsctl command line.
package cmd

import (
	"context"
	"fmt"

	"github.com/ebsalem/portal/app"
	"github.com/ebsalem/portal/config"
	"github.com/ebsalem/portal/internal/observability"
	"github.com/spf13/cobra"
)

var outputFormat string

var rootCmd = &cobra.Command{
	Use:   "lmsctl",
	Short: "Sign in to the ebsalem LMS and browse it from the terminal",
	Long: `lmsctl drives the ebsalem portal session: it signs in through the Cognito
hosted UI, keeps the session fresh, and lists courses and grades from the
LMS backend. "lmsctl serve" runs the local portal.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

// newDeps loads configuration and wires dependencies; replaced in tests
var newDeps = func(ctx context.Context) (*app.Dependencies, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return app.NewDependencies(ctx, cfg, logger)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, cancelled on interrupt
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format (text, json, yaml)")
}

// withDeps runs fn with freshly wired dependencies and closes them afterwards
func withDeps(cmd *cobra.Command, fn func(*app.Dependencies) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	deps, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = deps.Close(context.WithoutCancel(ctx)) }()
	return fn(deps)
}
