package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

var (
	execAutomation string
	execLimit      int
)

var executionsCmd = &cobra.Command{
	Use:     "executions",
	Short:   "List an automation's execution history",
	Aliases: []string{"exec", "history"},
	RunE: func(cmd *cobra.Command, args []string) error {
		automationID, err := uuid.Parse(execAutomation)
		if err != nil {
			return fmt.Errorf("invalid automation ID: %w", err)
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		executions, err := a.service.ListExecutions(cmd.Context(), automationID, execLimit)
		if err != nil {
			return fmt.Errorf("failed to list executions: %w", err)
		}
		if len(executions) == 0 {
			fmt.Println("No execution history found.")
			return nil
		}

		fmt.Println(strings.Repeat("-", 72))
		for _, execution := range executions {
			icon := statusIcon(execution.Status)
			fmt.Printf("%s %-36s  %s\n", icon, execution.ID, execution.StartedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("    Status: %-8s  Actions: %d/%d succeeded", execution.Status,
				execution.ActionsSucceeded, execution.ActionsAttempted)
			if execution.DurationMs != nil {
				fmt.Printf("  Duration: %dms", *execution.DurationMs)
			}
			fmt.Println()
			if execution.ErrorMessage != "" {
				fmt.Printf("    Error: %s\n", execution.ErrorMessage)
			}
			for _, result := range execution.Results {
				mark := "✓"
				if !result.Success {
					mark = "✗"
				}
				fmt.Printf("      %s %s", mark, result.ActionType)
				if result.Error != "" {
					fmt.Printf("  (%s)", result.Error)
				}
				fmt.Println()
			}
		}
		return nil
	},
}

func statusIcon(status domain.ExecutionStatus) string {
	switch status {
	case domain.ExecutionStatusSuccess:
		return "✓"
	case domain.ExecutionStatusFailed:
		return "✗"
	default:
		return "◷"
	}
}

func init() {
	executionsCmd.Flags().StringVarP(&execAutomation, "automation", "a", "", "automation ID")
	executionsCmd.Flags().IntVarP(&execLimit, "limit", "l", 20, "maximum number of executions to show")
	_ = executionsCmd.MarkFlagRequired("automation")
	rootCmd.AddCommand(executionsCmd)
}
