package healing

import (
	"context"
	"fmt"

	"github.com/steveyegge/hindsight/internal/config"
	"github.com/steveyegge/hindsight/internal/events"
	"github.com/steveyegge/hindsight/internal/storage"
	"github.com/steveyegge/hindsight/internal/types"
)

// Registry tracks recurring failures by fingerprint and runs rule-based
// classification over new arrivals.
type Registry struct {
	store storage.Storage
	cfg   config.Healing
	actor string
}

// NewRegistry creates a failure registry.
func NewRegistry(store storage.Storage, cfg config.Healing, actor string) *Registry {
	if actor == "" {
		actor = "registry"
	}
	return &Registry{store: store, cfg: cfg, actor: actor}
}

// Register records a failure observation. First sightings are classified
// immediately; repeats refresh the existing record; a recurrence of a
// resolved fingerprint re-enters classification because the fix evidently
// did not hold. Unfixable records stay terminal and only bump last_seen.
func (r *Registry) Register(ctx context.Context, domain, signature string, severity int) (*types.FailureRecord, error) {
	if severity == 0 {
		severity = SuggestedSeverity(signature, r.cfg.DefaultSeverity)
	}

	record := &types.FailureRecord{
		Fingerprint: Fingerprint(domain, signature),
		Domain:      domain,
		Signature:   signature,
		Severity:    severity,
		State:       types.FailureStateNew,
		Tier:        types.TierCheap,
	}
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("invalid failure record: %w", err)
	}

	stored, err := r.store.UpsertFailure(ctx, record)
	if err != nil {
		return nil, err
	}

	r.emit(ctx, events.New(events.EventTypeFailureRegistered, events.SeverityWarning, r.actor,
		fmt.Sprintf("Failure %s registered in domain %s (state %s)", stored.Fingerprint, domain, stored.State),
		map[string]interface{}{
			"fingerprint": stored.Fingerprint,
			"domain":      domain,
			"state":       string(stored.State),
		}))

	switch stored.State {
	case types.FailureStateNew, types.FailureStateResolved:
		return r.classify(ctx, stored.Fingerprint)
	default:
		return stored, nil
	}
}

// classify moves a record through classifying into fixable or unfixable
// using the marker rules.
func (r *Registry) classify(ctx context.Context, fingerprint string) (*types.FailureRecord, error) {
	return r.store.MutateFailure(ctx, fingerprint, func(f *types.FailureRecord) error {
		if !f.State.CanTransitionTo(types.FailureStateClassifying) {
			return fmt.Errorf("cannot classify failure in state %s", f.State)
		}
		f.State = types.FailureStateClassifying

		if ClassifySignature(f.Signature) {
			f.State = types.FailureStateFixable
		} else {
			f.State = types.FailureStateUnfixable
		}
		return nil
	})
}

// Get fetches one failure record by fingerprint.
func (r *Registry) Get(ctx context.Context, fingerprint string) (*types.FailureRecord, error) {
	return r.store.GetFailure(ctx, fingerprint)
}

// List returns failure records matching the filter, most recently seen first.
func (r *Registry) List(ctx context.Context, filter types.FailureFilter) ([]*types.FailureRecord, error) {
	return r.store.ListFailures(ctx, filter)
}

func (r *Registry) emit(ctx context.Context, ev *events.Event) {
	if err := r.store.StoreEvent(ctx, ev); err != nil {
		fmt.Printf("Warning: failed to store %s event: %v\n", ev.Type, err)
	}
}
