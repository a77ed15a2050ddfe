package types

import (
	"fmt"
	"time"
)

// FailureState tracks a failure fingerprint through the self-healing ladder
type FailureState string

const (
	FailureStateNew           FailureState = "new"            // Just registered, not yet classified
	FailureStateClassifying   FailureState = "classifying"    // Rule-based classification in progress
	FailureStateFixable       FailureState = "fixable"        // Eligible for automatic fix dispatch
	FailureStateUnfixable     FailureState = "unfixable"      // Terminal: automatic retries circuit-broken
	FailureStateFixDispatched FailureState = "fix_dispatched" // A fixer is working this fingerprint
	FailureStateRetry         FailureState = "retry"          // Fix attempt failed, eligible for next tier
	FailureStateResolved      FailureState = "resolved"       // Confirmed fixed; counters reset
)

// IsValid checks if the failure state is valid
func (s FailureState) IsValid() bool {
	switch s {
	case FailureStateNew, FailureStateClassifying, FailureStateFixable,
		FailureStateUnfixable, FailureStateFixDispatched, FailureStateRetry,
		FailureStateResolved:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic transitions are allowed.
// Resolved failures may re-enter the machine if the same fingerprint recurs.
func (s FailureState) IsTerminal() bool {
	return s == FailureStateUnfixable
}

// failureTransitions is the closed transition table for the self-healing
// state machine. Anything not listed here is an invalid transition.
var failureTransitions = map[FailureState][]FailureState{
	FailureStateNew:           {FailureStateClassifying},
	FailureStateClassifying:   {FailureStateFixable, FailureStateUnfixable},
	FailureStateFixable:       {FailureStateFixDispatched, FailureStateUnfixable},
	FailureStateFixDispatched: {FailureStateResolved, FailureStateRetry, FailureStateUnfixable},
	FailureStateRetry:         {FailureStateFixDispatched, FailureStateUnfixable},
	FailureStateResolved:      {FailureStateClassifying},
	FailureStateUnfixable:     {},
}

// CanTransitionTo reports whether moving from s to next is a legal transition
func (s FailureState) CanTransitionTo(next FailureState) bool {
	for _, allowed := range failureTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// FixTier is the cost ladder for fix dispatch: each retry climbs one rung,
// trading cost for analysis depth.
type FixTier string

const (
	TierCheap     FixTier = "cheap"     // Pattern-based fixes, no AI
	TierMid       FixTier = "mid"       // Cheap model assistance
	TierExpensive FixTier = "expensive" // Deep analysis with the high-end model
)

// IsValid checks if the fix tier is valid
func (t FixTier) IsValid() bool {
	switch t {
	case TierCheap, TierMid, TierExpensive:
		return true
	}
	return false
}

// Next returns the next rung on the cost ladder. The expensive tier is the
// top rung and returns itself.
func (t FixTier) Next() FixTier {
	switch t {
	case TierCheap:
		return TierMid
	case TierMid:
		return TierExpensive
	default:
		return TierExpensive
	}
}

// FailureRecord tracks a recurring failure signature across tasks
type FailureRecord struct {
	Fingerprint         string       `json:"fingerprint"`
	Domain              string       `json:"domain"`
	Signature           string       `json:"signature"`
	RootCause           string       `json:"root_cause,omitempty"`
	Lesson              string       `json:"lesson,omitempty"`
	Severity            int          `json:"severity"` // 1 (annoyance) to 5 (blocking)
	State               FailureState `json:"state"`
	Tier                FixTier      `json:"tier"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	FirstSeen           time.Time    `json:"first_seen"`
	LastSeen            time.Time    `json:"last_seen"`
}

// Validate checks if the failure record has valid field values
func (f *FailureRecord) Validate() error {
	if f.Fingerprint == "" {
		return fmt.Errorf("fingerprint is required")
	}
	if f.Signature == "" {
		return fmt.Errorf("signature is required")
	}
	if f.Severity < 1 || f.Severity > 5 {
		return fmt.Errorf("severity must be between 1 and 5 (got %d)", f.Severity)
	}
	if !f.State.IsValid() {
		return fmt.Errorf("invalid failure state: %s", f.State)
	}
	if !f.Tier.IsValid() {
		return fmt.Errorf("invalid fix tier: %s", f.Tier)
	}
	if f.ConsecutiveFailures < 0 {
		return fmt.Errorf("consecutive_failures cannot be negative")
	}
	return nil
}

// FailureFilter narrows failure queries
type FailureFilter struct {
	Domain string
	State  FailureState
	Limit  int
}

// WatchTier is the escalation watcher's two-level check ladder
type WatchTier string

const (
	WatchTierFast WatchTier = "fast" // Cheap rule-based check, runs every tick
	WatchTierDeep WatchTier = "deep" // Expensive analysis, only on fast-tier signal
)

// EscalationState is the watcher's coordination state. The watcher is its
// exclusive owner; other components only ever read it.
type EscalationState struct {
	Tier                   WatchTier  `json:"tier"`
	LastTick               time.Time  `json:"last_tick"`
	ConsecutiveEscalations int        `json:"consecutive_escalations"`
	CircuitOpen            bool       `json:"circuit_open"`
	CircuitOpenedAt        *time.Time `json:"circuit_opened_at,omitempty"`
}
