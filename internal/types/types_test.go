package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLessonValidate(t *testing.T) {
	tests := []struct {
		name    string
		lesson  Lesson
		wantErr string
	}{
		{
			name:   "valid lesson",
			lesson: Lesson{Domain: "testing", Rule: "run the full suite before closing", Confidence: 0.5, Source: SourceFailure},
		},
		{
			name:    "empty rule",
			lesson:  Lesson{Domain: "testing", Confidence: 0.5, Source: SourceFailure},
			wantErr: "rule is required",
		},
		{
			name:    "whitespace rule",
			lesson:  Lesson{Domain: "testing", Rule: "   ", Confidence: 0.5, Source: SourceFailure},
			wantErr: "rule is required",
		},
		{
			name:    "empty domain",
			lesson:  Lesson{Rule: "a rule", Confidence: 0.5, Source: SourceFailure},
			wantErr: "domain is required",
		},
		{
			name:    "confidence above range",
			lesson:  Lesson{Domain: "testing", Rule: "a rule", Confidence: 1.01, Source: SourceSuccess},
			wantErr: "confidence must be between",
		},
		{
			name:    "confidence below range",
			lesson:  Lesson{Domain: "testing", Rule: "a rule", Confidence: -0.2, Source: SourceSuccess},
			wantErr: "confidence must be between",
		},
		{
			name:    "invalid source",
			lesson:  Lesson{Domain: "testing", Rule: "a rule", Confidence: 0.5, Source: "rumor"},
			wantErr: "invalid lesson source",
		},
		{
			name:    "negative validations",
			lesson:  Lesson{Domain: "testing", Rule: "a rule", Confidence: 0.5, Source: SourceSuccess, Validations: -1},
			wantErr: "validations cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.lesson.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestOutcomeSignal(t *testing.T) {
	assert.Equal(t, 1.0, OutcomeSuccess.Signal())
	assert.Equal(t, 0.0, OutcomeFailure.Signal())
	// Unknown is optimistic: treated as success for confidence purposes
	assert.Equal(t, 1.0, OutcomeUnknown.Signal())
}

func TestFailureStateTransitions(t *testing.T) {
	tests := []struct {
		from    FailureState
		to      FailureState
		allowed bool
	}{
		{FailureStateNew, FailureStateClassifying, true},
		{FailureStateClassifying, FailureStateFixable, true},
		{FailureStateClassifying, FailureStateUnfixable, true},
		{FailureStateFixable, FailureStateFixDispatched, true},
		{FailureStateFixDispatched, FailureStateResolved, true},
		{FailureStateFixDispatched, FailureStateRetry, true},
		{FailureStateRetry, FailureStateFixDispatched, true},
		{FailureStateRetry, FailureStateUnfixable, true},
		{FailureStateResolved, FailureStateClassifying, true},

		// Illegal transitions
		{FailureStateNew, FailureStateFixDispatched, false},
		{FailureStateNew, FailureStateResolved, false},
		{FailureStateUnfixable, FailureStateFixDispatched, false},
		{FailureStateUnfixable, FailureStateResolved, false},
		{FailureStateResolved, FailureStateRetry, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestFailureStateTerminal(t *testing.T) {
	assert.True(t, FailureStateUnfixable.IsTerminal())
	assert.False(t, FailureStateResolved.IsTerminal())
	assert.False(t, FailureStateRetry.IsTerminal())
	assert.Empty(t, failureTransitions[FailureStateUnfixable], "unfixable must have no outgoing transitions")
}

func TestFixTierLadder(t *testing.T) {
	assert.Equal(t, TierMid, TierCheap.Next())
	assert.Equal(t, TierExpensive, TierMid.Next())
	// Top rung stays put
	assert.Equal(t, TierExpensive, TierExpensive.Next())
}

func TestFailureRecordValidate(t *testing.T) {
	valid := FailureRecord{
		Fingerprint: "a1b2c3d4e5f6",
		Domain:      "build",
		Signature:   "undefined: foo in widget.go",
		Severity:    3,
		State:       FailureStateNew,
		Tier:        TierCheap,
	}
	assert.NoError(t, valid.Validate())

	severityTooHigh := valid
	severityTooHigh.Severity = 6
	assert.ErrorContains(t, severityTooHigh.Validate(), "severity")

	noFingerprint := valid
	noFingerprint.Fingerprint = ""
	assert.ErrorContains(t, noFingerprint.Validate(), "fingerprint is required")

	badState := valid
	badState.State = "limbo"
	assert.ErrorContains(t, badState.Validate(), "invalid failure state")
}
