package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/janhstrom/mindreminder-sub000/internal/outbox"
)

var dlqReplayBatch int

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and replay dead-lettered outbox events",
}

// dlqReplayCmd runs one DLQ manager pass on demand
var dlqReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Requeue due DLQ entries into the outbox once",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dlqReplayBatch <= 0 {
			return fmt.Errorf("--batch must be positive")
		}
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		manager := outbox.NewDLQManager(e.pool, e.cfg.DLQMaxRetries, e.cfg.DLQBaseDelay, e.logger)
		processed, err := manager.RunOnce(ctx, dlqReplayBatch)
		fmt.Fprintf(cmd.OutOrStdout(), "processed %d dlq entr(ies)\n", processed)
		return err
	},
}

func init() {
	dlqReplayCmd.Flags().IntVar(&dlqReplayBatch, "batch", 50, "maximum entries to process")
	dlqCmd.AddCommand(dlqReplayCmd)
	rootCmd.AddCommand(dlqCmd)
}
