package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var listBuilder string

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List a builder's active automations",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		builderID, err := uuid.Parse(listBuilder)
		if err != nil {
			return fmt.Errorf("invalid builder ID: %w", err)
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		automations, err := a.automations.ListActiveByBuilder(cmd.Context(), builderID)
		if err != nil {
			return fmt.Errorf("failed to list automations: %w", err)
		}
		if len(automations) == 0 {
			fmt.Println("No active automations.")
			return nil
		}

		fmt.Printf("Active automations (%d)\n", len(automations))
		fmt.Println(strings.Repeat("-", 72))
		for _, automation := range automations {
			fmt.Printf("%-36s  p%-2d  %s\n", automation.ID, automation.Priority, automation.Name)
			fmt.Printf("    Actions: %d  Executions: %d (%d failed)\n",
				len(automation.Actions), automation.TotalExecutions, automation.FailedExecutions)
			if automation.LastExecutionAt != nil {
				fmt.Printf("    Last run: %s\n", automation.LastExecutionAt.Format("2006-01-02 15:04:05"))
			}
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listBuilder, "builder", "b", "", "builder (tenant) ID")
	_ = listCmd.MarkFlagRequired("builder")
	rootCmd.AddCommand(listCmd)
}
