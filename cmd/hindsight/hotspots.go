package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/hindsight/internal/types"
)

var hotspotsCmd = &cobra.Command{
	Use:   "hotspots [scope]",
	Short: "Show the decayed activity map",
	Long: `Aggregate trail events into a hierarchical hotspot tree. Strength decays
exponentially, so the map shows where work is happening now, not where it
ever happened.

Examples:
  hindsight hotspots              # Whole tree
  hindsight hotspots src/parser   # One subtree
  hindsight hotspots --depth 2    # Limit display depth`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope := ""
		if len(args) > 0 {
			scope = args[0]
		}
		depth, _ := cmd.Flags().GetInt("depth")

		root, err := core.Trails().Hotspots(context.Background(), scope)
		if err != nil {
			return err
		}
		if root == nil {
			fmt.Println("No trail activity recorded.")
			return nil
		}

		printHotspot(root, 0, depth)
		return nil
	},
}

func printHotspot(node *types.Hotspot, level, maxDepth int) {
	if maxDepth > 0 && level > maxDepth {
		return
	}

	label := node.Path
	if label == "" {
		label = "."
	} else if idx := strings.LastIndex(label, "/"); idx >= 0 && level > 0 {
		label = label[idx+1:]
	}

	fmt.Printf("%s%s %s  %s\n",
		strings.Repeat("  ", level),
		severityColor(node.Severity)("●"),
		label,
		color.New(color.FgHiBlack).Sprintf("strength %.2f, %d hits", node.Strength, node.Hits))

	for _, child := range node.Children {
		printHotspot(child, level+1, maxDepth)
	}
}

func severityColor(s types.Severity) func(a ...interface{}) string {
	switch s {
	case types.SeverityCritical:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case types.SeverityHigh:
		return color.New(color.FgRed).SprintFunc()
	case types.SeverityMedium:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgGreen).SprintFunc()
	}
}

func init() {
	hotspotsCmd.Flags().Int("depth", 0, "Maximum tree depth to display (0 = unlimited)")
	rootCmd.AddCommand(hotspotsCmd)
}
