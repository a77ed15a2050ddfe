package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/hindsight/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a hindsight store in the current directory",
	Long: `Create the .hindsight/ directory with a database and a config file
populated with the default policy constants.

This creates:
  - .hindsight/ directory
  - .hindsight/hindsight.db (SQLite database)
  - .hindsight/config.yaml (tunable thresholds and learning rates)

Example:
  cd ~/myproject
  hindsight init`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// The persistent pre-run already created the database through the
		// store; write the config file alongside it unless one exists.
		cfgPath := filepath.Join(filepath.Dir(cfg.Storage.Path), "config.yaml")
		if _, err := os.Stat(cfgPath); err == nil {
			fmt.Printf("Config already exists at %s, leaving it alone.\n", cfgPath)
		} else {
			data, err := yaml.Marshal(config.Default())
			if err != nil {
				return fmt.Errorf("serializing default config: %w", err)
			}
			if err := os.WriteFile(cfgPath, data, 0644); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			fmt.Printf("Wrote %s\n", cfgPath)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Initialized hindsight store at %s\n", green("✓"), cfg.Storage.Path)
		fmt.Println("\nNext steps:")
		fmt.Println("  some-runner 2>&1 | hindsight record --task t-1 --domain build")
		fmt.Println("  hindsight lessons")
		fmt.Println("  hindsight watch")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
