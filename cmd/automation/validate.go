package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leadrail/automation-engine/internal/automation/domain"
)

var validateConditions string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a condition tree",
	Long: `Check a condition tree against the operator registry and the field
catalog without saving anything.

Examples:
  automation validate --conditions '{"field":"lead.status","operator":"equals","value":"new"}'
  automation validate --conditions '{"and":[{"field":"lead.score","operator":"greater_than","value":50}]}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		condition, err := parseCondition(validateConditions)
		if err != nil {
			return err
		}

		a := newEngineOnly()
		report := a.validator.Validate(condition)

		if report.Valid {
			fmt.Println("Condition is valid.")
		} else {
			fmt.Println("Condition is invalid.")
		}
		for _, e := range report.Errors {
			fmt.Printf("  error: %s\n", e)
		}
		for _, w := range report.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		if !report.Valid {
			return fmt.Errorf("%d validation error(s)", len(report.Errors))
		}
		return nil
	},
}

// parseCondition decodes a condition tree from a JSON flag value. An empty
// string means no conditions.
func parseCondition(raw string) (*domain.Condition, error) {
	if raw == "" {
		return nil, nil
	}
	var condition domain.Condition
	if err := json.Unmarshal([]byte(raw), &condition); err != nil {
		return nil, fmt.Errorf("invalid conditions JSON: %w", err)
	}
	return &condition, nil
}

func init() {
	validateCmd.Flags().StringVarP(&validateConditions, "conditions", "c", "", "condition tree as JSON")
	_ = validateCmd.MarkFlagRequired("conditions")
	rootCmd.AddCommand(validateCmd)
}
