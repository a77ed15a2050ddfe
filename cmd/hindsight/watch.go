package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/hindsight/internal/healing"
	"github.com/steveyegge/hindsight/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the escalation watcher",
	Long: `Run the two-tier escalation watcher. The fast tier checks the healing
backlog every tick; on signal the deep tier tries to drain it, consulting
the analyzer when one is configured. Consecutive unresolved escalations
open a circuit breaker.

With --once a single check runs and the exit status reports it: 0 when
healthy, 2 when an escalation was recorded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")

		dispatcher := healing.NewDispatcher(store, cfg.Healing,
			healing.DefaultFixers(newAnalyzer()), actor)
		w := watcher.New(store, cfg.Watcher, dispatcher, adaptAnalyzer(), actor)

		if once {
			escalated, err := w.CheckOnce(context.Background())
			if err != nil {
				return err
			}
			if escalated {
				fmt.Println("Escalation recorded.")
				os.Exit(2)
			}
			fmt.Println("Healthy.")
			return nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := w.Start(ctx); err != nil {
			return err
		}
		fmt.Printf("Watcher running (interval %v). Ctrl-C to stop.\n", cfg.Watcher.Interval)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nStopping watcher...")
		w.Stop()
		return nil
	},
}

var resetCircuitCmd = &cobra.Command{
	Use:   "reset-circuit",
	Short: "Manually close the escalation circuit breaker",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := watcher.New(store, cfg.Watcher, nil, nil, actor)
		if err := w.ResetCircuit(context.Background()); err != nil {
			return err
		}
		fmt.Println("Circuit reset.")
		return nil
	},
}

// adaptAnalyzer returns the analyzer as the watcher's DeepAnalyzer, keeping
// the nil-means-disabled contract across the interface boundary.
func adaptAnalyzer() watcher.DeepAnalyzer {
	if a := newAnalyzer(); a != nil {
		return a
	}
	return nil
}

func init() {
	watchCmd.Flags().Bool("once", false, "Run a single check and exit")
	watchCmd.AddCommand(resetCircuitCmd)
	rootCmd.AddCommand(watchCmd)
}
