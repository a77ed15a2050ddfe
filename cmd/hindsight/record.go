package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/hindsight/internal/feedback"
	"github.com/steveyegge/hindsight/internal/types"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a finished task's outcome",
	Long: `Ingest one task report: classify its output, lay its trail, validate an
attached lesson, and register failures for self-healing.

Task output is read from --output, or from stdin when --output is omitted.

Examples:
  some-runner 2>&1 | hindsight record --task t-42 --domain build --paths src/main.go
  hindsight record --task t-43 --domain testing --output "all tests pass" \
    --rule "run the full suite before declaring victory"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID, _ := cmd.Flags().GetString("task")
		domain, _ := cmd.Flags().GetString("domain")
		output, _ := cmd.Flags().GetString("output")
		paths, _ := cmd.Flags().GetStringSlice("paths")
		rule, _ := cmd.Flags().GetString("rule")
		explanation, _ := cmd.Flags().GetString("explanation")
		source, _ := cmd.Flags().GetString("source")

		if output == "" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading task output from stdin: %w", err)
			}
			output = string(data)
		}

		result, err := core.RecordTaskOutcome(context.Background(), feedback.TaskReport{
			TaskID:      taskID,
			Domain:      domain,
			Output:      output,
			Paths:       paths,
			Rule:        rule,
			Explanation: explanation,
			Source:      types.LessonSource(source),
		})
		if err != nil {
			return err
		}

		printOutcome(result)
		return nil
	},
}

func printOutcome(result *feedback.Result) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	outcome := gray(string(result.Outcome))
	switch result.Outcome {
	case types.OutcomeSuccess:
		outcome = green("success")
	case types.OutcomeFailure:
		outcome = red("failure")
	}
	fmt.Printf("Outcome: %s\n", outcome)

	if result.TrailPaths > 0 {
		fmt.Printf("Trail:   %d paths\n", result.TrailPaths)
	}
	if result.Lesson != nil {
		golden := ""
		if result.Lesson.IsGolden {
			golden = color.New(color.FgYellow).Sprint(" ★ golden")
		}
		fmt.Printf("Lesson:  #%d confidence %.2f after %d validations%s\n",
			result.Lesson.ID, result.Lesson.Confidence, result.Lesson.Validations, golden)
	}
	if result.Failure != nil {
		fmt.Printf("Failure: %s (%s, state %s)\n",
			result.Failure.Fingerprint, result.Failure.Signature, result.Failure.State)
	}
}

func init() {
	recordCmd.Flags().String("task", "", "Task identifier (required)")
	recordCmd.Flags().String("domain", "", "Task domain (e.g. build, testing, deploy)")
	recordCmd.Flags().String("output", "", "Task output text (stdin when omitted)")
	recordCmd.Flags().StringSlice("paths", nil, "Paths the task touched")
	recordCmd.Flags().String("rule", "", "Lesson rule extracted from the task")
	recordCmd.Flags().String("explanation", "", "Why the lesson holds")
	recordCmd.Flags().String("source", "", "Lesson source: failure, success, or observation")
	recordCmd.MarkFlagRequired("task")
	rootCmd.AddCommand(recordCmd)
}
