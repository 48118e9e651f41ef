package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

var (
	triggerBuilder string
	triggerData    string
	triggerKind    string
)

var triggerCmd = &cobra.Command{
	Use:   "trigger [event-type]",
	Short: "Fire a trigger event manually",
	Long: `Dispatch a trigger event as if it arrived from the event bus:
matching automations are evaluated and jobs enqueued for the worker.

Examples:
  automation trigger lead.created \
    --builder 4f8f... \
    --data '{"lead":{"status":"new","score":80}}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		builderID, err := uuid.Parse(triggerBuilder)
		if err != nil {
			return fmt.Errorf("invalid builder ID: %w", err)
		}
		data, err := parseObject(triggerData, "data")
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		event := domain.NewTriggerEvent(args[0], args[0], domain.EventSourceManual,
			domain.EventKind(triggerKind), data, builderID)
		result, err := a.dispatcher.Dispatch(cmd.Context(), event)
		if err != nil {
			return fmt.Errorf("failed to dispatch event: %w", err)
		}

		fmt.Printf("Event %s dispatched\n", result.EventID)
		fmt.Printf("  Evaluated: %d\n", result.Evaluated)
		fmt.Printf("  Matched:   %d\n", len(result.Matched))
		fmt.Printf("  Queued:    %d\n", len(result.Queued))
		return nil
	},
}

func init() {
	triggerCmd.Flags().StringVarP(&triggerBuilder, "builder", "b", "", "builder (tenant) ID")
	triggerCmd.Flags().StringVarP(&triggerData, "data", "d", "", "event payload as JSON object")
	triggerCmd.Flags().StringVar(&triggerKind, "kind", string(domain.EventKindUpdate), "event kind (create, update, delete)")
	_ = triggerCmd.MarkFlagRequired("builder")
	rootCmd.AddCommand(triggerCmd)
}
