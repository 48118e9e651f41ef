package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leadrail/automation-engine/internal/automation/engine"
)

var (
	testConditions string
	testData       string
	testContext    string
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test a condition tree against sample data",
	Long: `Evaluate a condition tree against a sample event payload in debug
mode and print the per-leaf trace.

Examples:
  automation test \
    --conditions '{"field":"lead.status","operator":"equals","value":"new"}' \
    --data '{"lead":{"status":"new"}}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		condition, err := parseCondition(testConditions)
		if err != nil {
			return err
		}
		data, err := parseObject(testData, "data")
		if err != nil {
			return err
		}
		evalContext, err := parseObject(testContext, "context")
		if err != nil {
			return err
		}

		a := newEngineOnly()
		evaluator := engine.NewEvaluator(a.registry, a.logger, engine.Options{Debug: true})
		result := evaluator.Evaluate(condition, data, evalContext)

		if result.Matches {
			fmt.Println("MATCH")
		} else {
			fmt.Println("NO MATCH")
		}
		for _, entry := range result.Trace {
			mark := "✗"
			if entry.Matched {
				mark = "✓"
			}
			fmt.Printf("  %s %s %s %v (got %v)", mark, entry.Field, entry.Operator, entry.Expected, entry.FieldValue)
			if entry.Reason != "" {
				fmt.Printf("  [%s]", entry.Reason)
			}
			fmt.Println()
		}
		return nil
	},
}

func parseObject(raw, name string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("invalid %s JSON: %w", name, err)
	}
	return out, nil
}

func init() {
	testCmd.Flags().StringVarP(&testConditions, "conditions", "c", "", "condition tree as JSON")
	testCmd.Flags().StringVarP(&testData, "data", "d", "", "event payload as JSON object")
	testCmd.Flags().StringVar(&testContext, "context", "", "flat trigger context as JSON object")
	_ = testCmd.MarkFlagRequired("conditions")
	rootCmd.AddCommand(testCmd)
}
