// Package events defines the structured activity feed for the learning core.
// Every interesting state change (promotions, demotions, fix dispatches,
// circuit transitions) is recorded as an event in the store, giving operators
// an audit trail of what the core decided and why.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event that occurred in the learning core.
type EventType string

const (
	// Lesson lifecycle events
	// EventTypeLessonRecorded indicates a new lesson was recorded
	EventTypeLessonRecorded EventType = "lesson_recorded"
	// EventTypeLessonPromoted indicates a lesson was promoted to golden rule
	EventTypeLessonPromoted EventType = "lesson_promoted"
	// EventTypeLessonDemoted indicates a golden rule lost its status
	EventTypeLessonDemoted EventType = "lesson_demoted"
	// EventTypeLessonRetired indicates a lesson was soft-retired for sustained low confidence
	EventTypeLessonRetired EventType = "lesson_retired"

	// Task ingestion events
	// EventTypeOutcomeRecorded indicates a task outcome was classified and ingested
	EventTypeOutcomeRecorded EventType = "outcome_recorded"
	// EventTypeTrailLaid indicates trail events were appended for a task
	EventTypeTrailLaid EventType = "trail_laid"

	// Self-healing events
	// EventTypeFailureRegistered indicates a failure fingerprint was registered or re-seen
	EventTypeFailureRegistered EventType = "failure_registered"
	// EventTypeFixDispatched indicates a fix attempt was dispatched for a fingerprint
	EventTypeFixDispatched EventType = "fix_dispatched"
	// EventTypeFailureResolved indicates a fingerprint was confirmed fixed
	EventTypeFailureResolved EventType = "failure_resolved"
	// EventTypeFailureUnfixable indicates a fingerprint hit the retry ceiling and was circuit-broken
	EventTypeFailureUnfixable EventType = "failure_unfixable"

	// Escalation watcher events
	// EventTypeEscalationTriggered indicates the fast tier signaled and the deep tier ran
	EventTypeEscalationTriggered EventType = "escalation_triggered"
	// EventTypeEscalationResolved indicates the deep tier resolved the condition
	EventTypeEscalationResolved EventType = "escalation_resolved"
	// EventTypeCircuitOpened indicates the watcher opened its circuit breaker
	EventTypeCircuitOpened EventType = "circuit_opened"
	// EventTypeCircuitReset indicates the circuit was reset (manually or by cooldown)
	EventTypeCircuitReset EventType = "circuit_reset"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates error events
	SeverityError EventSeverity = "error"
	// SeverityCritical indicates critical events requiring immediate attention
	SeverityCritical EventSeverity = "critical"
)

// Event is one entry in the activity feed.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// Actor identifies what produced the event (task id, "watcher", "dispatcher")
	Actor string `json:"actor"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventFilter narrows event queries
type EventFilter struct {
	Type     EventType
	Severity EventSeverity
	Limit    int
}

// New creates an event with a fresh ID and timestamp.
func New(eventType EventType, severity EventSeverity, actor, message string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Actor:     actor,
		Severity:  severity,
		Message:   message,
		Data:      data,
	}
}
