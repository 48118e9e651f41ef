package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var operatorsCmd = &cobra.Command{
	Use:   "operators",
	Short: "List the condition operators",
	Long: `List every operator the condition evaluator supports, grouped by
category. Unary operators ignore the condition value.`,
	Aliases: []string{"ops"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newEngineOnly()

		grouped := a.registry.Names()
		categories := make([]string, 0, len(grouped))
		for category := range grouped {
			categories = append(categories, category)
		}
		sort.Strings(categories)

		for _, category := range categories {
			names := grouped[category]
			sort.Strings(names)
			fmt.Printf("%s (%d)\n", category, len(names))
			for _, name := range names {
				suffix := ""
				if a.registry.IsUnary(name) {
					suffix = "  (unary)"
				}
				fmt.Printf("  %s%s\n", name, suffix)
			}
			fmt.Println()
		}
		fmt.Println(strings.Repeat("-", 40))
		total := 0
		for _, names := range grouped {
			total += len(names)
		}
		fmt.Printf("%d operators in %d categories\n", total, len(grouped))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(operatorsCmd)
}
