package healing

import (
	"context"
	"fmt"

	"github.com/steveyegge/hindsight/internal/config"
	"github.com/steveyegge/hindsight/internal/events"
	"github.com/steveyegge/hindsight/internal/storage"
	"github.com/steveyegge/hindsight/internal/types"
)

// Fixer attempts to remedy one failure. Implementations range from pattern
// substitutions to model-backed analysis; the dispatcher only cares whether
// the attempt succeeded.
type Fixer interface {
	// Fix attempts a remedy and returns a human-readable note about what it
	// did. A non-nil error means the attempt failed and the ladder climbs.
	Fix(ctx context.Context, record *types.FailureRecord) (string, error)
}

// FixerFunc adapts a function to the Fixer interface.
type FixerFunc func(ctx context.Context, record *types.FailureRecord) (string, error)

// Fix implements Fixer.
func (f FixerFunc) Fix(ctx context.Context, record *types.FailureRecord) (string, error) {
	return f(ctx, record)
}

// Dispatcher drives fixable failures up the tier ladder. Each attempt runs
// at the record's current tier; a failed attempt climbs one rung, and the
// retry ceiling breaks the circuit into unfixable so no fingerprint burns
// attempts forever.
type Dispatcher struct {
	store  storage.Storage
	cfg    config.Healing
	fixers map[types.FixTier]Fixer
	actor  string
}

// NewDispatcher creates a dispatcher with one fixer per tier. Tiers without
// a registered fixer fail their attempts immediately, which still advances
// the ladder.
func NewDispatcher(store storage.Storage, cfg config.Healing, fixers map[types.FixTier]Fixer, actor string) *Dispatcher {
	if actor == "" {
		actor = "dispatcher"
	}
	return &Dispatcher{store: store, cfg: cfg, fixers: fixers, actor: actor}
}

// Dispatch runs one fix attempt for the fingerprint. The record must be in
// fixable or retry state. On success the record resolves and its counters
// reset; on failure it either climbs a tier or, at the ceiling, goes
// unfixable.
func (d *Dispatcher) Dispatch(ctx context.Context, fingerprint string) (*types.FailureRecord, error) {
	record, err := d.store.MutateFailure(ctx, fingerprint, func(f *types.FailureRecord) error {
		if !f.State.CanTransitionTo(types.FailureStateFixDispatched) {
			return fmt.Errorf("failure %s is not dispatchable in state %s", f.Fingerprint, f.State)
		}
		f.State = types.FailureStateFixDispatched
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.emit(ctx, events.New(events.EventTypeFixDispatched, events.SeverityInfo, d.actor,
		fmt.Sprintf("Fix attempt %d dispatched for %s at tier %s", record.ConsecutiveFailures+1, fingerprint, record.Tier),
		map[string]interface{}{
			"fingerprint": fingerprint,
			"tier":        string(record.Tier),
			"attempt":     record.ConsecutiveFailures + 1,
		}))

	note, fixErr := d.attempt(ctx, record)
	if fixErr == nil {
		return d.resolve(ctx, fingerprint, note)
	}
	return d.recordFailure(ctx, fingerprint, fixErr)
}

func (d *Dispatcher) attempt(ctx context.Context, record *types.FailureRecord) (string, error) {
	fixer, ok := d.fixers[record.Tier]
	if !ok {
		return "", fmt.Errorf("no fixer registered for tier %s", record.Tier)
	}
	return fixer.Fix(ctx, record)
}

// resolve marks the fingerprint fixed and resets the ladder so a future
// recurrence starts from the cheap tier again.
func (d *Dispatcher) resolve(ctx context.Context, fingerprint, note string) (*types.FailureRecord, error) {
	record, err := d.store.MutateFailure(ctx, fingerprint, func(f *types.FailureRecord) error {
		f.State = types.FailureStateResolved
		f.ConsecutiveFailures = 0
		f.Tier = types.TierCheap
		if note != "" {
			f.Lesson = note
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.emit(ctx, events.New(events.EventTypeFailureResolved, events.SeverityInfo, d.actor,
		fmt.Sprintf("Failure %s resolved", fingerprint),
		map[string]interface{}{
			"fingerprint": fingerprint,
			"note":        note,
		}))
	return record, nil
}

// recordFailure books a failed attempt: climb a tier, or at the ceiling go
// unfixable and stop retrying.
func (d *Dispatcher) recordFailure(ctx context.Context, fingerprint string, fixErr error) (*types.FailureRecord, error) {
	var exhausted bool
	record, err := d.store.MutateFailure(ctx, fingerprint, func(f *types.FailureRecord) error {
		f.ConsecutiveFailures++
		if f.ConsecutiveFailures >= d.cfg.MaxAttempts {
			f.State = types.FailureStateUnfixable
			exhausted = true
			return nil
		}
		f.State = types.FailureStateRetry
		f.Tier = f.Tier.Next()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if exhausted {
		d.emit(ctx, events.NewFailureUnfixable(d.actor, fingerprint, record.Domain, record.ConsecutiveFailures))
	} else {
		fmt.Printf("Fix attempt for %s failed (%v), next tier %s\n", fingerprint, fixErr, record.Tier)
	}
	return record, nil
}

// DispatchPending runs one fix attempt for every currently dispatchable
// failure and returns how many attempts succeeded.
func (d *Dispatcher) DispatchPending(ctx context.Context) (resolved int, err error) {
	for _, state := range []types.FailureState{types.FailureStateFixable, types.FailureStateRetry} {
		records, err := d.store.ListFailures(ctx, types.FailureFilter{State: state})
		if err != nil {
			return resolved, err
		}
		for _, record := range records {
			updated, err := d.Dispatch(ctx, record.Fingerprint)
			if err != nil {
				return resolved, err
			}
			if updated.State == types.FailureStateResolved {
				resolved++
			}
		}
	}
	return resolved, nil
}

func (d *Dispatcher) emit(ctx context.Context, ev *events.Event) {
	if err := d.store.StoreEvent(ctx, ev); err != nil {
		fmt.Printf("Warning: failed to store %s event: %v\n", ev.Type, err)
	}
}
