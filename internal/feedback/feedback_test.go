package feedback

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/steveyegge/hindsight/internal/config"
	"github.com/steveyegge/hindsight/internal/events"
	"github.com/steveyegge/hindsight/internal/storage"
	"github.com/steveyegge/hindsight/internal/storage/sqlite"
	"github.com/steveyegge/hindsight/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCore(t *testing.T) (*Core, storage.Storage) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"), sqlite.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, config.Default(), "test"), store
}

func TestRecordTaskOutcomeRequiresTaskID(t *testing.T) {
	core, _ := newTestCore(t)

	_, err := core.RecordTaskOutcome(context.Background(), TaskReport{Output: "done"})
	assert.ErrorContains(t, err, "task id is required")
}

func TestSuccessfulTaskValidatesLessonAndLaysTrail(t *testing.T) {
	core, store := newTestCore(t)
	ctx := context.Background()

	result, err := core.RecordTaskOutcome(ctx, TaskReport{
		TaskID: "t1",
		Domain: "testing",
		Output: "All 42 tests passed.\nTask complete.",
		Paths:  []string{"src/parser/lex.go", "src/parser/lex_test.go"},
		Rule:   "run the full suite before declaring victory",
	})
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 2, result.TrailPaths)
	require.NotNil(t, result.Lesson)
	assert.Equal(t, 1, result.Lesson.Validations)
	assert.Greater(t, result.Lesson.Confidence, 0.5)
	assert.Nil(t, result.Failure)

	recorded, err := store.GetRecentEvents(ctx, events.EventFilter{Type: events.EventTypeOutcomeRecorded})
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, "t1", recorded[0].Actor)
}

func TestFailedTaskRegistersFailure(t *testing.T) {
	core, _ := newTestCore(t)
	ctx := context.Background()

	result, err := core.RecordTaskOutcome(ctx, TaskReport{
		TaskID: "t2",
		Domain: "build",
		Output: "compiling...\nundefined: frobnicate\nTypeError: cannot call frobnicate\nexit status 2",
		Paths:  []string{"src/frob.go"},
		Rule:   "check symbol exports before calling across packages",
	})
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeFailure, result.Outcome)
	require.NotNil(t, result.Failure)
	assert.Contains(t, result.Failure.Signature, "TypeError")
	require.NotNil(t, result.Lesson)
	// Failure pulls the new lesson's confidence down from 0.5
	assert.Less(t, result.Lesson.Confidence, 0.5)

	pending, err := core.Registry().List(ctx, types.FailureFilter{Domain: "build"})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestQuotedErrorOutputDoesNotRegisterFailure(t *testing.T) {
	core, _ := newTestCore(t)

	result, err := core.RecordTaskOutcome(context.Background(), TaskReport{
		TaskID: "t3",
		Domain: "analysis",
		Output: "The root cause was a \"ValueError: bad input\" raised upstream.",
	})
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeUnknown, result.Outcome)
	assert.Nil(t, result.Failure)
}

func TestReportWithoutRuleSkipsLesson(t *testing.T) {
	core, _ := newTestCore(t)

	result, err := core.RecordTaskOutcome(context.Background(), TaskReport{
		TaskID: "t4",
		Domain: "testing",
		Output: "task complete",
		Paths:  []string{"README.md"},
	})
	require.NoError(t, err)
	assert.Nil(t, result.Lesson)
	assert.Equal(t, 1, result.TrailPaths)
}

// A bad lesson must not stop the trail or failure registration: ingestion
// degrades per subsystem.
func TestIngestionIsFailSoftPerSubsystem(t *testing.T) {
	core, _ := newTestCore(t)
	ctx := context.Background()

	// Empty domain makes the lesson invalid, but trails and classification
	// still go through
	result, err := core.RecordTaskOutcome(ctx, TaskReport{
		TaskID: "t5",
		Output: "panic: runtime error: index out of range",
		Paths:  []string{"src/slice.go"},
		Rule:   "bounds-check before indexing",
	})
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeFailure, result.Outcome)
	assert.Nil(t, result.Lesson)
	assert.Equal(t, 1, result.TrailPaths)
	require.NotNil(t, result.Failure)
}

func TestRepeatedFailureSharesOneFingerprint(t *testing.T) {
	core, _ := newTestCore(t)
	ctx := context.Background()

	for _, task := range []string{"t6", "t7"} {
		result, err := core.RecordTaskOutcome(ctx, TaskReport{
			TaskID: task,
			Domain: "build",
			Output: "Error: connection refused on port 5432",
		})
		require.NoError(t, err)
		require.NotNil(t, result.Failure)
	}

	all, err := core.Registry().List(ctx, types.FailureFilter{Domain: "build"})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
