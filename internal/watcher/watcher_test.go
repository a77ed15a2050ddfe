package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/steveyegge/hindsight/internal/ai"
	"github.com/steveyegge/hindsight/internal/config"
	"github.com/steveyegge/hindsight/internal/events"
	"github.com/steveyegge/hindsight/internal/healing"
	"github.com/steveyegge/hindsight/internal/storage"
	"github.com/steveyegge/hindsight/internal/storage/sqlite"
	"github.com/steveyegge/hindsight/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"), sqlite.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

type stubHealer struct {
	resolved int
	err      error
	calls    int
}

func (h *stubHealer) DispatchPending(ctx context.Context) (int, error) {
	h.calls++
	return h.resolved, h.err
}

type stubAnalyzer struct {
	verdict *ai.EscalationVerdict
	err     error
	calls   int
}

func (a *stubAnalyzer) AssessEscalation(ctx context.Context, digest string) (*ai.EscalationVerdict, error) {
	a.calls++
	return a.verdict, a.err
}

// registerStuck plants a failure the rule-based deep tier cannot clear.
func registerStuck(t *testing.T, store storage.Storage) {
	t.Helper()
	registry := healing.NewRegistry(store, config.Default().Healing, "test")
	_, err := registry.Register(context.Background(), "deploy", "permission denied on /var/lib", 0)
	require.NoError(t, err)
}

func TestCheckOnceHealthySystem(t *testing.T) {
	store := newTestStore(t)
	w := New(store, config.Default().Watcher, &stubHealer{}, nil, "test")
	ctx := context.Background()

	escalated, err := w.CheckOnce(ctx)
	require.NoError(t, err)
	assert.False(t, escalated)

	state, err := store.GetEscalationState(ctx)
	require.NoError(t, err)
	assert.False(t, state.LastTick.IsZero())
	assert.Zero(t, state.ConsecutiveEscalations)
}

func TestCheckOnceEscalatesOnStuckFailure(t *testing.T) {
	store := newTestStore(t)
	registerStuck(t, store)
	w := New(store, config.Default().Watcher, nil, nil, "test")
	ctx := context.Background()

	escalated, err := w.CheckOnce(ctx)
	require.NoError(t, err)
	assert.True(t, escalated)

	state, err := store.GetEscalationState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, state.ConsecutiveEscalations)
	assert.Equal(t, types.WatchTierDeep, state.Tier)

	triggered, err := store.GetRecentEvents(ctx, events.EventFilter{Type: events.EventTypeEscalationTriggered})
	require.NoError(t, err)
	assert.Len(t, triggered, 1)
}

func TestDeepTierHealingResolvesEscalation(t *testing.T) {
	store := newTestStore(t)
	cfg := config.Default()
	registry := healing.NewRegistry(store, cfg.Healing, "test")
	dispatcher := healing.NewDispatcher(store, cfg.Healing, map[types.FixTier]healing.Fixer{
		types.TierCheap: healing.FixerFunc(func(ctx context.Context, r *types.FailureRecord) (string, error) {
			return "patched", nil
		}),
	}, "test")

	_, err := registry.Register(context.Background(), "build", "syntax error in config", 0)
	require.NoError(t, err)

	w := New(store, cfg.Watcher, dispatcher, nil, "test")
	escalated, err := w.CheckOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, escalated)

	state, err := store.GetEscalationState(context.Background())
	require.NoError(t, err)
	assert.Zero(t, state.ConsecutiveEscalations)
}

func TestAnalyzerVerdictStandsDownEscalation(t *testing.T) {
	store := newTestStore(t)
	registerStuck(t, store)
	analyzer := &stubAnalyzer{verdict: &ai.EscalationVerdict{Resolved: true, Summary: "known flake"}}
	w := New(store, config.Default().Watcher, nil, analyzer, "test")

	escalated, err := w.CheckOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, escalated)
	assert.Equal(t, 1, analyzer.calls)
}

func TestAnalyzerErrorStillEscalates(t *testing.T) {
	store := newTestStore(t)
	registerStuck(t, store)
	analyzer := &stubAnalyzer{err: errors.New("api down")}
	w := New(store, config.Default().Watcher, nil, analyzer, "test")

	escalated, err := w.CheckOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, escalated)
}

// After the ceiling of consecutive escalations the next signal opens the
// circuit instead of escalating again, and ticks while open are no-ops.
func TestCircuitOpensAtCeiling(t *testing.T) {
	store := newTestStore(t)
	registerStuck(t, store)
	cfg := config.Default().Watcher
	cfg.EscalationCeiling = 4
	cfg.CircuitCooldown = 0 // manual reset only
	w := New(store, cfg, nil, nil, "test")
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		escalated, err := w.CheckOnce(ctx)
		require.NoError(t, err)
		assert.True(t, escalated)

		state, err := store.GetEscalationState(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, state.ConsecutiveEscalations)
		assert.False(t, state.CircuitOpen)
	}

	// Fifth signal: circuit opens, no fifth escalation event
	escalated, err := w.CheckOnce(ctx)
	require.NoError(t, err)
	assert.True(t, escalated)

	state, err := store.GetEscalationState(ctx)
	require.NoError(t, err)
	assert.True(t, state.CircuitOpen)
	require.NotNil(t, state.CircuitOpenedAt)

	triggered, err := store.GetRecentEvents(ctx, events.EventFilter{Type: events.EventTypeEscalationTriggered})
	require.NoError(t, err)
	assert.Len(t, triggered, 4)
	opened, err := store.GetRecentEvents(ctx, events.EventFilter{Type: events.EventTypeCircuitOpened})
	require.NoError(t, err)
	assert.Len(t, opened, 1)

	// While open with no cooldown, ticks do nothing
	escalated, err = w.CheckOnce(ctx)
	require.NoError(t, err)
	assert.False(t, escalated)
	triggered, err = store.GetRecentEvents(ctx, events.EventFilter{Type: events.EventTypeEscalationTriggered})
	require.NoError(t, err)
	assert.Len(t, triggered, 4)
}

func TestCircuitCooldownReset(t *testing.T) {
	store := newTestStore(t)
	registerStuck(t, store)
	cfg := config.Default().Watcher
	cfg.EscalationCeiling = 1
	cfg.CircuitCooldown = 20 * time.Millisecond
	w := New(store, cfg, nil, nil, "test")
	ctx := context.Background()

	_, err := w.CheckOnce(ctx) // escalation 1, hits ceiling
	require.NoError(t, err)
	_, err = w.CheckOnce(ctx) // opens circuit
	require.NoError(t, err)

	state, err := store.GetEscalationState(ctx)
	require.NoError(t, err)
	require.True(t, state.CircuitOpen)

	time.Sleep(30 * time.Millisecond)
	escalated, err := w.CheckOnce(ctx)
	require.NoError(t, err)
	assert.True(t, escalated)

	state, err = store.GetEscalationState(ctx)
	require.NoError(t, err)
	assert.False(t, state.CircuitOpen)
	assert.Equal(t, 1, state.ConsecutiveEscalations)

	resets, err := store.GetRecentEvents(ctx, events.EventFilter{Type: events.EventTypeCircuitReset})
	require.NoError(t, err)
	assert.Len(t, resets, 1)
}

func TestManualCircuitReset(t *testing.T) {
	store := newTestStore(t)
	registerStuck(t, store)
	cfg := config.Default().Watcher
	cfg.EscalationCeiling = 1
	cfg.CircuitCooldown = 0
	w := New(store, cfg, nil, nil, "test")
	ctx := context.Background()

	_, err := w.CheckOnce(ctx)
	require.NoError(t, err)
	_, err = w.CheckOnce(ctx)
	require.NoError(t, err)

	require.NoError(t, w.ResetCircuit(ctx))
	state, err := store.GetEscalationState(ctx)
	require.NoError(t, err)
	assert.False(t, state.CircuitOpen)
	assert.Zero(t, state.ConsecutiveEscalations)

	// Resetting a closed circuit is a no-op
	require.NoError(t, w.ResetCircuit(ctx))
}

// healerFixesOnSecondCall leaves the backlog alone on the first invocation
// and marks everything resolved on the second, so the first tick escalates
// and the second stands the streak down.
type healerFixesOnSecondCall struct {
	store storage.Storage
	calls int
}

func (h *healerFixesOnSecondCall) DispatchPending(ctx context.Context) (int, error) {
	h.calls++
	if h.calls < 2 {
		return 0, nil
	}
	records, err := h.store.ListFailures(ctx, types.FailureFilter{State: types.FailureStateFixable})
	if err != nil {
		return 0, err
	}
	for _, r := range records {
		_, err := h.store.MutateFailure(ctx, r.Fingerprint, func(f *types.FailureRecord) error {
			f.State = types.FailureStateResolved
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

func TestEscalationStreakResetsWhenClear(t *testing.T) {
	store := newTestStore(t)
	cfg := config.Default()
	registry := healing.NewRegistry(store, cfg.Healing, "test")
	_, err := registry.Register(context.Background(), "build", "syntax error in config", 0)
	require.NoError(t, err)

	w := New(store, cfg.Watcher, &healerFixesOnSecondCall{store: store}, nil, "test")
	ctx := context.Background()

	escalated, err := w.CheckOnce(ctx)
	require.NoError(t, err)
	assert.True(t, escalated)

	escalated, err = w.CheckOnce(ctx)
	require.NoError(t, err)
	assert.False(t, escalated)

	state, err := store.GetEscalationState(ctx)
	require.NoError(t, err)
	assert.Zero(t, state.ConsecutiveEscalations)

	resolutions, err := store.GetRecentEvents(ctx, events.EventFilter{Type: events.EventTypeEscalationResolved})
	require.NoError(t, err)
	assert.Len(t, resolutions, 1)
}

func TestStartStopCleanShutdown(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	store := newTestStore(t)
	cfg := config.Default().Watcher
	cfg.Interval = 10 * time.Millisecond
	w := New(store, cfg, &stubHealer{}, nil, "test")

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))

	time.Sleep(35 * time.Millisecond)
	w.Stop()
	w.Stop() // idempotent

	state, err := store.GetEscalationState(context.Background())
	require.NoError(t, err)
	assert.False(t, state.LastTick.IsZero())
}
