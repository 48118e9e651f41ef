package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var statsBuilder string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue depth by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		builderID := uuid.Nil
		if statsBuilder != "" {
			var err error
			if builderID, err = uuid.Parse(statsBuilder); err != nil {
				return fmt.Errorf("invalid builder ID: %w", err)
			}
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		stats, err := a.service.QueueStats(cmd.Context(), builderID)
		if err != nil {
			return fmt.Errorf("failed to read queue stats: %w", err)
		}

		fmt.Printf("pending:    %d\n", stats.Pending)
		fmt.Printf("processing: %d\n", stats.Processing)
		fmt.Printf("completed:  %d\n", stats.Completed)
		fmt.Printf("failed:     %d\n", stats.Failed)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [queue-item-id]",
	Short: "Cancel a pending queue item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid queue item ID: %w", err)
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.service.CancelQueueItem(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Cancelled queue item %s\n", id)
		return nil
	},
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Run one batch of due queue items and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		processed, err := a.processor.ProcessOnce(cmd.Context())
		if err != nil {
			return fmt.Errorf("drain failed: %w", err)
		}
		fmt.Printf("Processed %d queue item(s)\n", processed)
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVarP(&statsBuilder, "builder", "b", "", "scope to one builder (default: all)")
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(drainCmd)
}
