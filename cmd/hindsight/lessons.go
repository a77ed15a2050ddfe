package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/hindsight/internal/types"
)

var lessonsCmd = &cobra.Command{
	Use:   "lessons",
	Short: "List lessons ordered by confidence",
	Long: `List accumulated lessons, most confident first.

Examples:
  hindsight lessons                      # All active lessons
  hindsight lessons --domain build       # One domain
  hindsight lessons --golden             # Only promoted golden rules
  hindsight lessons --min-confidence 0.7 # Confidence floor
  hindsight lessons --include-retired    # Audit view including retired`,
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, _ := cmd.Flags().GetString("domain")
		golden, _ := cmd.Flags().GetBool("golden")
		minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")
		includeRetired, _ := cmd.Flags().GetBool("include-retired")
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := core.Lessons().Query(context.Background(), types.LessonFilter{
			Domain:         domain,
			GoldenOnly:     golden,
			MinConfidence:  minConfidence,
			IncludeRetired: includeRetired,
			Limit:          limit,
		})
		if err != nil {
			return err
		}

		if len(list) == 0 {
			fmt.Println("No lessons recorded yet.")
			return nil
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		for _, l := range list {
			marker := "  "
			if l.IsGolden {
				marker = yellow("★ ")
			}
			line := fmt.Sprintf("%s#%-4d [%.2f] (%s, %d validations) %s",
				marker, l.ID, l.Confidence, l.Domain, l.Validations, l.Rule)
			if l.Retired {
				line = gray(line + " (retired)")
			}
			fmt.Println(line)
			if l.Explanation != "" {
				fmt.Printf("        %s\n", gray(l.Explanation))
			}
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <lesson-id> <outcome>",
	Short: "Apply an outcome to a lesson's confidence",
	Long: `Apply one validation outcome (success, failure, or unknown) to a lesson.
Confidence moves toward the outcome's signal, and the promotion, demotion,
and retirement gates are re-evaluated.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid lesson id %q", args[0])
		}

		lesson, err := core.Lessons().Validate(context.Background(), id, types.Outcome(args[1]))
		if err != nil {
			return err
		}

		status := ""
		if lesson.IsGolden {
			status = color.New(color.FgYellow).Sprint(" ★ golden")
		}
		if lesson.Retired {
			status = color.New(color.FgHiBlack).Sprint(" (retired)")
		}
		fmt.Printf("Lesson #%d: confidence %.3f, %d validations%s\n",
			lesson.ID, lesson.Confidence, lesson.Validations, status)
		return nil
	},
}

func init() {
	lessonsCmd.Flags().String("domain", "", "Filter by domain")
	lessonsCmd.Flags().Bool("golden", false, "Only golden rules")
	lessonsCmd.Flags().Float64("min-confidence", 0, "Minimum confidence")
	lessonsCmd.Flags().Bool("include-retired", false, "Include soft-retired lessons")
	lessonsCmd.Flags().IntP("limit", "n", 0, "Maximum results (0 = unlimited)")
	lessonsCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(lessonsCmd)
}
