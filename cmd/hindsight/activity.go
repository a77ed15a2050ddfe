package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/hindsight/internal/events"
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show recent learning-core events",
	Long: `Display the activity feed: lesson promotions and demotions, fix
dispatches, escalations, and circuit transitions.

Examples:
  hindsight activity                         # Last 20 events
  hindsight activity -n 50                   # Last 50 events
  hindsight activity --type lesson_promoted  # One event type
  hindsight activity --severity critical     # Critical only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		eventType, _ := cmd.Flags().GetString("type")
		severity, _ := cmd.Flags().GetString("severity")

		list, err := store.GetRecentEvents(context.Background(), events.EventFilter{
			Type:     events.EventType(eventType),
			Severity: events.EventSeverity(severity),
			Limit:    limit,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching events: %v\n", err)
			os.Exit(1)
		}

		if len(list) == 0 {
			fmt.Println("No events found matching the criteria.")
			return nil
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		// Newest last, so the feed reads top to bottom
		for i := len(list) - 1; i >= 0; i-- {
			ev := list[i]
			fmt.Printf("%s %s %s %s\n",
				gray(ev.Timestamp.Format("15:04:05")),
				eventSeverityColor(ev.Severity)(fmt.Sprintf("%-8s", ev.Severity)),
				gray(fmt.Sprintf("%-22s", ev.Type)),
				ev.Message)
		}
		return nil
	},
}

func eventSeverityColor(s events.EventSeverity) func(a ...interface{}) string {
	switch s {
	case events.SeverityCritical:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case events.SeverityError:
		return color.New(color.FgRed).SprintFunc()
	case events.SeverityWarning:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgCyan).SprintFunc()
	}
}

func init() {
	activityCmd.Flags().IntP("limit", "n", 20, "Number of recent events to show")
	activityCmd.Flags().StringP("type", "t", "", "Filter by event type")
	activityCmd.Flags().StringP("severity", "s", "", "Filter by severity (info, warning, error, critical)")
	rootCmd.AddCommand(activityCmd)
}
