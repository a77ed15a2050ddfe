// Package types defines the shared domain types for the hindsight learning core.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is the result of classifying a task's output text.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// OutcomeUnknown means no signal was found either way. Downstream
	// confidence updates treat unknown as success (optimistic default) -
	// only an explicit, unsuppressed failure match counts against a lesson.
	OutcomeUnknown Outcome = "unknown"
)

// IsValid checks if the outcome value is valid
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomeUnknown:
		return true
	}
	return false
}

// Signal returns the reinforcement signal for confidence updates.
// success and unknown pull confidence toward 1, failure toward 0.
func (o Outcome) Signal() float64 {
	if o == OutcomeFailure {
		return 0.0
	}
	return 1.0
}

// LessonSource records how a lesson was originally observed
type LessonSource string

const (
	SourceFailure     LessonSource = "failure"     // Learned directly from a task failure
	SourceSuccess     LessonSource = "success"     // Learned from a confirmed success
	SourceObservation LessonSource = "observation" // Indirect observation, weakest signal
)

// IsValid checks if the lesson source is valid
func (s LessonSource) IsValid() bool {
	switch s {
	case SourceFailure, SourceSuccess, SourceObservation:
		return true
	}
	return false
}

// Lesson is a domain-scoped rule with a confidence score, derived from
// observed task outcomes. Lessons whose confidence survives repeated
// validation get promoted to golden rules.
type Lesson struct {
	ID          int64        `json:"id"`
	Domain      string       `json:"domain"`
	Rule        string       `json:"rule"`
	Explanation string       `json:"explanation,omitempty"`
	Confidence  float64      `json:"confidence"`
	Source      LessonSource `json:"source"`
	Validations int          `json:"validations"`
	IsGolden    bool         `json:"is_golden"`
	Retired     bool         `json:"retired"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	PromotedAt  *time.Time   `json:"promoted_at,omitempty"`
}

// Validate checks if the lesson has valid field values
func (l *Lesson) Validate() error {
	if strings.TrimSpace(l.Rule) == "" {
		return fmt.Errorf("rule is required")
	}
	if len(l.Rule) > 2000 {
		return fmt.Errorf("rule must be 2000 characters or less (got %d)", len(l.Rule))
	}
	if l.Domain == "" {
		return fmt.Errorf("domain is required")
	}
	if l.Confidence < 0.0 || l.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.3f)", l.Confidence)
	}
	if !l.Source.IsValid() {
		return fmt.Errorf("invalid lesson source: %s", l.Source)
	}
	if l.Validations < 0 {
		return fmt.Errorf("validations cannot be negative")
	}
	return nil
}

// LessonFilter narrows lesson queries. Zero values mean "no filter".
type LessonFilter struct {
	Domain         string  // Filter by domain
	MinConfidence  float64 // Only lessons at or above this confidence
	GoldenOnly     bool    // Only promoted golden rules
	IncludeRetired bool    // Include soft-retired lessons (audit view)
	Limit          int     // Max results (0 = unlimited)
}

// TrailEvent records one resource touch by one task. Append-only: events
// are never mutated, and (task_id, path) is unique so re-laying the same
// trail is a no-op.
type TrailEvent struct {
	TaskID   string    `json:"task_id"`
	Path     string    `json:"path"`
	Domain   string    `json:"domain,omitempty"`
	Strength float64   `json:"strength"`
	LaidAt   time.Time `json:"laid_at"`
}

// Severity buckets decayed hotspot strength for consumers
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Hotspot is a node in the hierarchical activity aggregate. Leaf nodes are
// touched paths; directory nodes carry the sum of their descendants.
type Hotspot struct {
	Path     string     `json:"path"`
	Hits     int        `json:"hits"`
	Strength float64    `json:"strength"`
	Severity Severity   `json:"severity"`
	Children []*Hotspot `json:"children,omitempty"`
}
