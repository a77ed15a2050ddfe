package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/hindsight/internal/ai"
	"github.com/steveyegge/hindsight/internal/config"
	"github.com/steveyegge/hindsight/internal/feedback"
	"github.com/steveyegge/hindsight/internal/storage"
	"github.com/steveyegge/hindsight/internal/storage/sqlite"
)

// Shared state for all commands, initialized in PersistentPreRunE
var (
	cfg   *config.Config
	store storage.Storage
	core  *feedback.Core

	dbPath     string
	configPath string
	actor      string
)

var rootCmd = &cobra.Command{
	Use:   "hindsight",
	Short: "Learning and feedback core for automated task runners",
	Long: `Hindsight records what automated tasks did and how it went: outcomes are
classified from raw output, lessons accumulate confidence toward golden
rules, trails aggregate into hotspots, and recurring failures feed a
self-healing dispatcher watched by a two-tier escalation loop.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Storage.Path = dbPath
		}

		store, err = sqlite.New(cfg.Storage.Path, sqlite.Options{
			OpTimeout:   cfg.Storage.OpTimeout,
			BusyRetries: cfg.Storage.BusyRetries,
		})
		if err != nil {
			return fmt.Errorf("opening store at %s: %w", cfg.Storage.Path, err)
		}

		core = feedback.New(store, cfg, actor)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
	},
}

// newAnalyzer builds the optional deep analyzer from config. A missing API
// key is normal operation, not an error.
func newAnalyzer() *ai.Analyzer {
	analyzer, err := ai.New(ai.Config{
		APIKey:             cfg.AI.APIKey,
		Model:              cfg.AI.Model,
		MaxConcurrentCalls: cfg.AI.MaxConcurrentCalls,
	})
	if err != nil {
		if err != ai.ErrDisabled {
			fmt.Fprintf(os.Stderr, "Warning: analyzer unavailable: %v\n", err)
		}
		return nil
	}
	return analyzer
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default .hindsight/hindsight.db)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".hindsight/config.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "cli", "Actor label recorded on emitted events")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
