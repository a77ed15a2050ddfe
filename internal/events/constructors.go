package events

import "fmt"

// NewLessonPromoted builds the event emitted when a lesson crosses both
// promotion gates (confidence and validation count).
func NewLessonPromoted(actor string, lessonID int64, domain, rule string, confidence float64, validations int) *Event {
	return New(EventTypeLessonPromoted, SeverityInfo, actor,
		fmt.Sprintf("Lesson %d promoted to golden rule (confidence %.2f after %d validations)", lessonID, confidence, validations),
		map[string]interface{}{
			"lesson_id":   lessonID,
			"domain":      domain,
			"rule":        rule,
			"confidence":  confidence,
			"validations": validations,
		})
}

// NewLessonDemoted builds the event emitted when a golden rule's confidence
// falls below the demotion threshold.
func NewLessonDemoted(actor string, lessonID int64, domain string, confidence float64) *Event {
	return New(EventTypeLessonDemoted, SeverityWarning, actor,
		fmt.Sprintf("Golden rule %d demoted (confidence fell to %.2f)", lessonID, confidence),
		map[string]interface{}{
			"lesson_id":  lessonID,
			"domain":     domain,
			"confidence": confidence,
		})
}

// NewLessonRetired builds the event emitted when a lesson is soft-retired.
func NewLessonRetired(actor string, lessonID int64, domain string, confidence float64) *Event {
	return New(EventTypeLessonRetired, SeverityInfo, actor,
		fmt.Sprintf("Lesson %d soft-retired (confidence %.3f)", lessonID, confidence),
		map[string]interface{}{
			"lesson_id":  lessonID,
			"domain":     domain,
			"confidence": confidence,
		})
}

// NewFailureUnfixable builds the event emitted when a fingerprint hits the
// retry ceiling. These are the records a human needs to look at.
func NewFailureUnfixable(actor, fingerprint, domain string, attempts int) *Event {
	return New(EventTypeFailureUnfixable, SeverityCritical, actor,
		fmt.Sprintf("Failure %s marked unfixable after %d attempts - human intervention required", fingerprint, attempts),
		map[string]interface{}{
			"fingerprint": fingerprint,
			"domain":      domain,
			"attempts":    attempts,
		})
}

// NewCircuitOpened builds the event emitted when the escalation watcher
// opens its circuit breaker.
func NewCircuitOpened(actor string, consecutiveEscalations int) *Event {
	return New(EventTypeCircuitOpened, SeverityCritical, actor,
		fmt.Sprintf("Escalation circuit opened after %d consecutive escalations without resolution", consecutiveEscalations),
		map[string]interface{}{
			"consecutive_escalations": consecutiveEscalations,
		})
}

// NewCircuitReset builds the event emitted when the circuit closes again.
func NewCircuitReset(actor, reason string) *Event {
	return New(EventTypeCircuitReset, SeverityInfo, actor,
		fmt.Sprintf("Escalation circuit reset (%s)", reason),
		map[string]interface{}{
			"reason": reason,
		})
}
