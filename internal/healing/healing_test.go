package healing

import (
	"context"
	"errors"
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

func TestFingerprintNormalization(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{
			name: "line numbers collapse",
			a:    "panic at main.go:120",
			b:    "panic at main.go:98",
			same: true,
		},
		{
			name: "addresses collapse",
			a:    "segfault at 0xdeadbeef",
			b:    "segfault at 0x00c0ffee",
			same: true,
		},
		{
			name: "case and whitespace collapse",
			a:    "Connection   Refused",
			b:    "connection refused",
			same: true,
		},
		{
			name: "different errors stay distinct",
			a:    "undefined: frobnicate",
			b:    "permission denied",
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := Fingerprint("build", tt.a)
			fb := Fingerprint("build", tt.b)
			assert.Len(t, fa, 12)
			if tt.same {
				assert.Equal(t, fa, fb)
			} else {
				assert.NotEqual(t, fa, fb)
			}
		})
	}
}

func TestFingerprintDomainScoped(t *testing.T) {
	assert.NotEqual(t,
		Fingerprint("build", "timeout"),
		Fingerprint("deploy", "timeout"))
}

func TestClassifySignature(t *testing.T) {
	assert.True(t, ClassifySignature("undefined: frobnicate"))
	assert.True(t, ClassifySignature("module not found: leftpad"))
	assert.True(t, ClassifySignature("something entirely novel"))
	assert.False(t, ClassifySignature("ERROR: Permission denied for /etc/shadow"))
	assert.False(t, ClassifySignature("API quota exceeded, upgrade your plan"))
	assert.False(t, ClassifySignature("merge conflict in main.go"))
}

func TestSuggestedSeverity(t *testing.T) {
	assert.Equal(t, 4, SuggestedSeverity("permission denied", 3))
	assert.Equal(t, 2, SuggestedSeverity("syntax error near line 4", 3))
	assert.Equal(t, 3, SuggestedSeverity("never seen this before", 3))
}

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"), sqlite.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRegisterClassifiesNewFailure(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store, config.Default().Healing, "test")
	ctx := context.Background()

	record, err := registry.Register(ctx, "build", "undefined: frobnicate", 0)
	require.NoError(t, err)
	assert.Equal(t, types.FailureStateFixable, record.State)
	assert.Equal(t, types.TierCheap, record.Tier)
	assert.Equal(t, 2, record.Severity)

	unfix, err := registry.Register(ctx, "deploy", "permission denied on /var/lib", 0)
	require.NoError(t, err)
	assert.Equal(t, types.FailureStateUnfixable, unfix.State)
	assert.Equal(t, 4, unfix.Severity)
}

func TestRegisterRepeatKeepsState(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store, config.Default().Healing, "test")
	ctx := context.Background()

	first, err := registry.Register(ctx, "build", "undefined: frobnicate", 0)
	require.NoError(t, err)

	// Same failure again, different volatile detail: one record, state intact
	again, err := registry.Register(ctx, "build", "undefined:  FROBNICATE", 0)
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, again.Fingerprint)
	assert.Equal(t, types.FailureStateFixable, again.State)

	all, err := registry.List(ctx, types.FailureFilter{Domain: "build"})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func alwaysFail(msg string) Fixer {
	return FixerFunc(func(ctx context.Context, record *types.FailureRecord) (string, error) {
		return "", errors.New(msg)
	})
}

func alwaysSucceed(note string) Fixer {
	return FixerFunc(func(ctx context.Context, record *types.FailureRecord) (string, error) {
		return note, nil
	})
}

func failingFixers() map[types.FixTier]Fixer {
	return map[types.FixTier]Fixer{
		types.TierCheap:     alwaysFail("cheap failed"),
		types.TierMid:       alwaysFail("mid failed"),
		types.TierExpensive: alwaysFail("expensive failed"),
	}
}

// Three failed attempts walk cheap, mid, expensive and then break the
// circuit: the record goes unfixable and no fourth attempt is dispatched.
func TestDispatchLadderExhaustsToUnfixable(t *testing.T) {
	store := newTestStore(t)
	cfg := config.Default().Healing
	registry := NewRegistry(store, cfg, "test")
	ctx := context.Background()

	attempts := 0
	counting := FixerFunc(func(ctx context.Context, record *types.FailureRecord) (string, error) {
		attempts++
		return "", errors.New("still broken")
	})
	dispatcher := NewDispatcher(store, cfg, map[types.FixTier]Fixer{
		types.TierCheap:     counting,
		types.TierMid:       counting,
		types.TierExpensive: counting,
	}, "test")

	record, err := registry.Register(ctx, "build", "undefined: frobnicate", 0)
	require.NoError(t, err)

	wantTiers := []types.FixTier{types.TierMid, types.TierExpensive}
	for i := 0; i < 2; i++ {
		record, err = dispatcher.Dispatch(ctx, record.Fingerprint)
		require.NoError(t, err)
		assert.Equal(t, types.FailureStateRetry, record.State)
		assert.Equal(t, wantTiers[i], record.Tier)
		assert.Equal(t, i+1, record.ConsecutiveFailures)
	}

	record, err = dispatcher.Dispatch(ctx, record.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, types.FailureStateUnfixable, record.State)
	assert.Equal(t, 3, record.ConsecutiveFailures)
	assert.Equal(t, 3, attempts)

	// Unfixable is terminal: no fourth dispatch happens
	_, err = dispatcher.Dispatch(ctx, record.Fingerprint)
	assert.ErrorContains(t, err, "not dispatchable")
	assert.Equal(t, 3, attempts)

	critical, err := store.GetRecentEvents(ctx, events.EventFilter{Type: events.EventTypeFailureUnfixable})
	require.NoError(t, err)
	assert.Len(t, critical, 1)
}

func TestDispatchSuccessResetsLadder(t *testing.T) {
	store := newTestStore(t)
	cfg := config.Default().Healing
	registry := NewRegistry(store, cfg, "test")
	dispatcher := NewDispatcher(store, cfg, map[types.FixTier]Fixer{
		types.TierCheap: alwaysFail("cheap failed"),
		types.TierMid:   alwaysSucceed("bumped the dependency"),
	}, "test")
	ctx := context.Background()

	record, err := registry.Register(ctx, "build", "module not found: leftpad", 0)
	require.NoError(t, err)

	record, err = dispatcher.Dispatch(ctx, record.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, types.FailureStateRetry, record.State)
	assert.Equal(t, types.TierMid, record.Tier)

	record, err = dispatcher.Dispatch(ctx, record.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, types.FailureStateResolved, record.State)
	assert.Equal(t, types.TierCheap, record.Tier)
	assert.Zero(t, record.ConsecutiveFailures)
	assert.Equal(t, "bumped the dependency", record.Lesson)
}

// A resolved fingerprint that recurs re-enters classification and can be
// dispatched again from the bottom of the ladder.
func TestResolvedRecurrenceReclassifies(t *testing.T) {
	store := newTestStore(t)
	cfg := config.Default().Healing
	registry := NewRegistry(store, cfg, "test")
	dispatcher := NewDispatcher(store, cfg, map[types.FixTier]Fixer{
		types.TierCheap: alwaysSucceed("patched"),
	}, "test")
	ctx := context.Background()

	record, err := registry.Register(ctx, "build", "syntax error in config", 0)
	require.NoError(t, err)
	record, err = dispatcher.Dispatch(ctx, record.Fingerprint)
	require.NoError(t, err)
	require.Equal(t, types.FailureStateResolved, record.State)

	record, err = registry.Register(ctx, "build", "syntax error in config", 0)
	require.NoError(t, err)
	assert.Equal(t, types.FailureStateFixable, record.State)
	assert.Equal(t, types.TierCheap, record.Tier)
}

func TestDispatchRejectsUnknownFingerprint(t *testing.T) {
	store := newTestStore(t)
	dispatcher := NewDispatcher(store, config.Default().Healing, failingFixers(), "test")

	_, err := dispatcher.Dispatch(context.Background(), "no-such-fp")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRuleFixer(t *testing.T) {
	fixer := NewRuleFixer()
	ctx := context.Background()

	note, err := fixer.Fix(ctx, &types.FailureRecord{Signature: "npm ERR! Module Not Found: leftpad"})
	require.NoError(t, err)
	assert.Contains(t, note, "install the missing module")

	_, err = fixer.Fix(ctx, &types.FailureRecord{Signature: "something nobody has seen"})
	assert.ErrorContains(t, err, "no canned remedy")
}

func TestAnalysisFixerWithoutAnalyzer(t *testing.T) {
	fixer := NewAnalysisFixer(nil)

	_, err := fixer.Fix(context.Background(), &types.FailureRecord{Signature: "weird failure"})
	assert.ErrorContains(t, err, "no analyzer configured")
}

func TestDefaultFixersCoverAllTiers(t *testing.T) {
	fixers := DefaultFixers(nil)
	for _, tier := range []types.FixTier{types.TierCheap, types.TierMid, types.TierExpensive} {
		assert.NotNil(t, fixers[tier], "tier %s", tier)
	}
}

func TestDispatchPending(t *testing.T) {
	store := newTestStore(t)
	cfg := config.Default().Healing
	registry := NewRegistry(store, cfg, "test")
	dispatcher := NewDispatcher(store, cfg, map[types.FixTier]Fixer{
		types.TierCheap: alwaysSucceed("patched"),
	}, "test")
	ctx := context.Background()

	_, err := registry.Register(ctx, "build", "syntax error one", 0)
	require.NoError(t, err)
	_, err = registry.Register(ctx, "build", "type error: two", 0)
	require.NoError(t, err)
	// Unfixable record must not be touched
	_, err = registry.Register(ctx, "deploy", "permission denied", 0)
	require.NoError(t, err)

	resolved, err := dispatcher.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, resolved)
}
