// Package feedback is the ingestion facade for the learning core. One call
// takes a finished task's report and fans it out: the output is classified,
// the trail is laid, the attached lesson is validated against the outcome,
// and failures are registered for self-healing.
//
// Ingestion is fail-soft: a task finished whether or not the learning core
// can record it, so store errors are logged and a partial result is
// returned rather than surfaced as a hard failure.
package feedback

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/steveyegge/hindsight/internal/classifier"
	"github.com/steveyegge/hindsight/internal/config"
	"github.com/steveyegge/hindsight/internal/events"
	"github.com/steveyegge/hindsight/internal/healing"
	"github.com/steveyegge/hindsight/internal/lessons"
	"github.com/steveyegge/hindsight/internal/storage"
	"github.com/steveyegge/hindsight/internal/trails"
	"github.com/steveyegge/hindsight/internal/types"
)

// TaskReport is everything a caller hands over about one finished task.
type TaskReport struct {
	TaskID string
	Domain string
	Output string // Raw task output to classify
	Paths  []string

	// Optional lesson extracted from the task. When Rule is empty no lesson
	// is recorded and the outcome only feeds trails and healing.
	Rule        string
	Explanation string
	Source      types.LessonSource
}

// Result summarizes what ingestion recorded. Fields are nil or zero for
// the parts that did not apply or could not be stored.
type Result struct {
	Outcome    types.Outcome
	Lesson     *types.Lesson
	TrailPaths int
	Failure    *types.FailureRecord
}

// Core wires the learning components behind one ingestion surface.
type Core struct {
	store    storage.Storage
	lessons  *lessons.Engine
	trails   *trails.Ledger
	registry *healing.Registry
	actor    string
}

// New assembles the core from a store and configuration.
func New(store storage.Storage, cfg *config.Config, actor string) *Core {
	if actor == "" {
		actor = "feedback"
	}
	return &Core{
		store:    store,
		lessons:  lessons.NewEngine(store, cfg.Lessons, actor),
		trails:   trails.NewLedger(store, cfg.Trails, actor),
		registry: healing.NewRegistry(store, cfg.Healing, actor),
		actor:    actor,
	}
}

// Lessons exposes the lesson engine for query surfaces.
func (c *Core) Lessons() *lessons.Engine { return c.lessons }

// Trails exposes the trail ledger for hotspot queries.
func (c *Core) Trails() *trails.Ledger { return c.trails }

// Registry exposes the failure registry.
func (c *Core) Registry() *healing.Registry { return c.registry }

// RecordTaskOutcome ingests one task report. Classification always
// succeeds; everything downstream of it degrades independently, so one
// wedged subsystem never blocks the others from recording.
func (c *Core) RecordTaskOutcome(ctx context.Context, report TaskReport) (*Result, error) {
	if report.TaskID == "" {
		return nil, fmt.Errorf("task id is required")
	}

	outcome := classifier.Classify(report.Output, classifier.Context{Domain: report.Domain})
	result := &Result{Outcome: outcome}

	if n, err := c.trails.Lay(ctx, report.TaskID, report.Domain, report.Paths); err != nil {
		fmt.Fprintf(os.Stderr, "feedback: trail for task %s not recorded: %v\n", report.TaskID, err)
	} else {
		result.TrailPaths = n
	}

	if report.Rule != "" {
		source := report.Source
		if source == "" {
			source = sourceFor(outcome)
		}
		lesson, err := c.lessons.RecordAndValidate(ctx, report.Domain, report.Rule,
			report.Explanation, source, outcome)
		if err != nil {
			fmt.Fprintf(os.Stderr, "feedback: lesson for task %s not recorded: %v\n", report.TaskID, err)
		} else {
			result.Lesson = lesson
		}
	}

	if outcome == types.OutcomeFailure {
		signature := classifier.FailureSignature(report.Output, classifier.Context{Domain: report.Domain})
		if signature == "" {
			signature = firstLine(report.Output)
		}
		failure, err := c.registry.Register(ctx, report.Domain, signature, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "feedback: failure for task %s not registered: %v\n", report.TaskID, err)
		} else {
			result.Failure = failure
		}
	}

	c.emitOutcome(ctx, report, result)
	return result, nil
}

func (c *Core) emitOutcome(ctx context.Context, report TaskReport, result *Result) {
	ev := events.New(events.EventTypeOutcomeRecorded, events.SeverityInfo, report.TaskID,
		fmt.Sprintf("Task %s classified %s", report.TaskID, result.Outcome),
		map[string]interface{}{
			"task_id":     report.TaskID,
			"domain":      report.Domain,
			"outcome":     string(result.Outcome),
			"trail_paths": result.TrailPaths,
		})
	if err := c.store.StoreEvent(ctx, ev); err != nil {
		fmt.Printf("Warning: failed to store %s event: %v\n", ev.Type, err)
	}
}

// sourceFor picks a lesson source when the report does not name one.
func sourceFor(outcome types.Outcome) types.LessonSource {
	switch outcome {
	case types.OutcomeFailure:
		return types.SourceFailure
	case types.OutcomeSuccess:
		return types.SourceSuccess
	default:
		return types.SourceObservation
	}
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return "task failed with no output"
}
