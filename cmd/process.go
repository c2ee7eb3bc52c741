package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ivkov/inboxtriage/internal/config"
)

func newProcessCmd() *cobra.Command {
	var (
		account   string
		batchSize int
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process one batch of unread inbox messages",
		Long: `Fetch unread inbox messages, classify and analyze them, send templated
replies where possible and record every outcome in the audit log.
Messages handled within the last seven days are skipped.

With --dry-run no reply is sent and no message is marked or starred; the
decisions are still logged and written to the audit log.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if account != "" {
				cfg.Account = account
			}
			if batchSize > 0 {
				cfg.Pipeline.BatchSize = batchSize
			}

			ctx := cmd.Context()
			p, err := buildPipeline(ctx, cfg, dryRun, nil, slog.Default())
			if err != nil {
				return err
			}
			defer p.Close()

			result, err := p.orchestrator.RunCycle(ctx)
			if err != nil {
				return fmt.Errorf("cycle %s failed: %w", result.CycleID, err)
			}

			slog.Info("cycle complete",
				"cycle_id", result.CycleID,
				"fetched", result.Fetched,
				"processed", result.Processed,
				"skipped", result.Skipped,
				"failed", result.Failed,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Google account name to use (default from config)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Maximum messages per cycle (default from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Decide and log without touching the mailbox")
	return cmd
}
