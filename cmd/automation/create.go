package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/leadrail/automation-engine/internal/automation/application"
	"github.com/leadrail/automation-engine/internal/automation/domain"
)

var (
	createBuilder    string
	createConditions string
	createActions    string
	createPriority   int
)

var createCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new automation rule",
	Long: `Create an automation rule with trigger conditions and actions. The
condition tree is validated before saving.

Examples:
  automation create "Welcome email" \
    --builder 4f8f... \
    --conditions '{"field":"trigger_type","operator":"equals","value":"lead.created"}' \
    --actions '[{"type":"email","config":{"to":"{{lead.email}}","template":"welcome"}}]' \
    --priority 7`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		builderID, err := uuid.Parse(createBuilder)
		if err != nil {
			return fmt.Errorf("invalid builder ID: %w", err)
		}
		condition, err := parseCondition(createConditions)
		if err != nil {
			return err
		}
		var actions []domain.Action
		if createActions != "" {
			if err := json.Unmarshal([]byte(createActions), &actions); err != nil {
				return fmt.Errorf("invalid actions JSON: %w", err)
			}
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		automation, err := a.service.CreateAutomation(cmd.Context(), application.CreateAutomationCommand{
			BuilderID:  builderID,
			Name:       args[0],
			Conditions: condition,
			Actions:    actions,
			Priority:   createPriority,
		})
		if err != nil {
			return fmt.Errorf("failed to create automation: %w", err)
		}

		fmt.Printf("Created automation: %s\n", automation.Name)
		fmt.Printf("  ID: %s\n", automation.ID)
		fmt.Printf("  Priority: %d\n", automation.Priority)
		fmt.Printf("  Actions: %d configured\n", len(automation.Actions))
		if automation.TriggerConditions == nil {
			fmt.Println("  Warning: no trigger conditions, this automation never matches")
		}
		return nil
	},
}

func init() {
	createCmd.Flags().StringVarP(&createBuilder, "builder", "b", "", "builder (tenant) ID")
	createCmd.Flags().StringVarP(&createConditions, "conditions", "c", "", "condition tree as JSON")
	createCmd.Flags().StringVarP(&createActions, "actions", "a", "", "actions as JSON array")
	createCmd.Flags().IntVarP(&createPriority, "priority", "p", domain.DefaultPriority, "queue priority (higher runs first)")
	_ = createCmd.MarkFlagRequired("builder")
	rootCmd.AddCommand(createCmd)
}
