package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/hindsight/internal/healing"
	"github.com/steveyegge/hindsight/internal/types"
)

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List registered failures",
	Long: `List failure fingerprints and their position in the self-healing ladder.

Examples:
  hindsight failures                    # Everything, most recent first
  hindsight failures --state unfixable  # The ones needing a human
  hindsight failures --domain build`,
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, _ := cmd.Flags().GetString("domain")
		state, _ := cmd.Flags().GetString("state")
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := core.Registry().List(context.Background(), types.FailureFilter{
			Domain: domain,
			State:  types.FailureState(state),
			Limit:  limit,
		})
		if err != nil {
			return err
		}

		if len(list) == 0 {
			fmt.Println("No failures registered.")
			return nil
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		for _, f := range list {
			fmt.Printf("%s %s  %s\n", stateColor(f.State)(string(f.State)), f.Fingerprint, f.Signature)
			fmt.Printf("  %s\n", gray(fmt.Sprintf("domain %s, severity %d, tier %s, %d failed attempts, last seen %s",
				f.Domain, f.Severity, f.Tier, f.ConsecutiveFailures,
				f.LastSeen.Format(time.RFC3339))))
			if f.Lesson != "" {
				fmt.Printf("  %s\n", gray("fix: "+f.Lesson))
			}
		}
		return nil
	},
}

var healCmd = &cobra.Command{
	Use:   "heal [fingerprint]",
	Short: "Dispatch fix attempts",
	Long: `Run the self-healing dispatcher: one fix attempt per dispatchable failure,
or for a single fingerprint when given. Attempts start at the cheap
rule-based tier and climb through model-backed analysis; three failed
attempts mark the failure unfixable.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		dispatcher := healing.NewDispatcher(store, cfg.Healing,
			healing.DefaultFixers(newAnalyzer()), actor)

		if len(args) == 1 {
			record, err := dispatcher.Dispatch(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s %s (tier %s, %d failed attempts)\n",
				stateColor(record.State)(string(record.State)),
				record.Fingerprint, record.Tier, record.ConsecutiveFailures)
			return nil
		}

		resolved, err := dispatcher.DispatchPending(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Resolved %d failures.\n", resolved)
		return nil
	},
}

func stateColor(s types.FailureState) func(a ...interface{}) string {
	switch s {
	case types.FailureStateResolved:
		return color.New(color.FgGreen).SprintFunc()
	case types.FailureStateUnfixable:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case types.FailureStateRetry, types.FailureStateFixDispatched:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgCyan).SprintFunc()
	}
}

func init() {
	failuresCmd.Flags().String("domain", "", "Filter by domain")
	failuresCmd.Flags().String("state", "", "Filter by state (new, fixable, retry, resolved, unfixable)")
	failuresCmd.Flags().IntP("limit", "n", 0, "Maximum results (0 = unlimited)")
	failuresCmd.AddCommand(healCmd)
	rootCmd.AddCommand(failuresCmd)
}
