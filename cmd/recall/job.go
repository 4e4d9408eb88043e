package main

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/recallkit/recall/config"
	"github.com/recallkit/recall/pkg/jobs"
)

func newJobCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Run a maintenance job once and print its report",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "finalize-idle",
			Short: "Finalize and summarize chats idle past the configured window",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runJob(cmd.Context(), flags, cmd.OutOrStdout(), func(ctx context.Context, r *jobs.Runner) (any, error) {
					return r.FinalizeIdle(ctx, jobs.TriggerCLI)
				})
			},
		},
		&cobra.Command{
			Use:   "compress",
			Short: "Distill summaries and memories into long-term tiers",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runJob(cmd.Context(), flags, cmd.OutOrStdout(), func(ctx context.Context, r *jobs.Runner) (any, error) {
					return r.Compress(ctx, jobs.TriggerCLI)
				})
			},
		},
	)
	return cmd
}

type jobFunc func(ctx context.Context, r *jobs.Runner) (any, error)

func runJob(ctx context.Context, flags *globalFlags, out io.Writer, fn jobFunc) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	return runJobWithConfig(ctx, cfg, out, fn)
}

func runJobWithConfig(ctx context.Context, cfg *config.Config, out io.Writer, fn jobFunc) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// stdout carries the report.
	if cfg.Log.Output == "" || cfg.Log.Output == "stdout" {
		cfg.Log.Output = "stderr"
	}
	log := newLogger(cfg)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.close(context.Background()) }()

	report, err := fn(ctx, a.runner)
	if err != nil {
		return fmt.Errorf("job failed: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
