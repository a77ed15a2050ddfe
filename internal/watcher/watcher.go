// Package watcher implements the escalation watcher: a background loop that
// periodically runs a cheap fast-tier health check and escalates to an
// expensive deep-tier analysis only when the fast tier signals. Consecutive
// unresolved escalations trip a circuit breaker so a persistently bad state
// cannot burn deep-tier budget forever.
package watcher

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/steveyegge/hindsight/internal/ai"
	"github.com/steveyegge/hindsight/internal/config"
	"github.com/steveyegge/hindsight/internal/events"
	"github.com/steveyegge/hindsight/internal/storage"
	"github.com/steveyegge/hindsight/internal/types"
)

// Healer drains the dispatchable failure backlog. Implemented by the
// healing dispatcher.
type Healer interface {
	DispatchPending(ctx context.Context) (int, error)
}

// DeepAnalyzer is the optional model-backed assessment used by the deep
// tier. Implemented by the ai analyzer; nil disables it.
type DeepAnalyzer interface {
	AssessEscalation(ctx context.Context, digest string) (*ai.EscalationVerdict, error)
}

// Watcher runs the two-tier escalation loop.
type Watcher struct {
	store    storage.Storage
	cfg      config.Watcher
	healer   Healer
	analyzer DeepAnalyzer
	actor    string

	// deepLimiter bounds deep-tier invocations regardless of how noisy the
	// fast tier gets
	deepLimiter *rate.Limiter

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	startMu  sync.Mutex
	started  bool

	// checking guards against overlapping ticks: a tick that arrives while
	// the previous check is still running is skipped, not queued
	checking sync.Mutex
}

// New creates a watcher. healer is required; analyzer may be nil, in which
// case the deep tier is purely rule-based.
func New(store storage.Storage, cfg config.Watcher, healer Healer, analyzer DeepAnalyzer, actor string) *Watcher {
	if actor == "" {
		actor = "watcher"
	}
	return &Watcher{
		store:       store,
		cfg:         cfg,
		healer:      healer,
		analyzer:    analyzer,
		actor:       actor,
		deepLimiter: rate.NewLimiter(rate.Limit(cfg.DeepRatePerMinute/60.0), 1),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start launches the watch loop in a background goroutine. Calling Start on
// a running watcher is an error.
func (w *Watcher) Start(ctx context.Context) error {
	w.startMu.Lock()
	defer w.startMu.Unlock()
	if w.started {
		return fmt.Errorf("watcher already started")
	}
	w.started = true

	go w.loop(ctx)
	return nil
}

// Stop signals the loop to exit and waits for it to finish. Safe to call
// more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.startMu.Lock()
	started := w.started
	w.startMu.Unlock()
	if started {
		<-w.doneCh
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			// Check for stop before starting a potentially slow check
			select {
			case <-w.stopCh:
				return
			default:
			}

			// Run the check interruptibly so Stop never waits a full tick
			done := make(chan error, 1)
			go func() {
				_, err := w.CheckOnce(ctx)
				done <- err
			}()

			select {
			case err := <-done:
				if err != nil {
					fmt.Fprintf(os.Stderr, "watcher: check failed: %v\n", err)
				}
			case <-w.stopCh:
				// The in-flight check finishes in the background
				return
			}
		}
	}
}

// CheckOnce runs a single tick: fast check, then deep tier on signal.
// Returns true when an unresolved escalation was recorded (or the circuit
// was opened), which the CLI maps to a non-zero exit status.
func (w *Watcher) CheckOnce(ctx context.Context) (escalated bool, err error) {
	// Skip rather than pile up when a previous tick is still in flight
	if !w.checking.TryLock() {
		return false, nil
	}
	defer w.checking.Unlock()

	state, err := w.store.GetEscalationState(ctx)
	if err != nil {
		return false, fmt.Errorf("loading escalation state: %w", err)
	}
	state.LastTick = time.Now()
	state.Tier = types.WatchTierFast

	defer func() {
		if saveErr := w.store.SaveEscalationState(ctx, state); saveErr != nil && err == nil {
			err = fmt.Errorf("saving escalation state: %w", saveErr)
		}
	}()

	if state.CircuitOpen {
		if !w.cooldownElapsed(state) {
			return false, nil
		}
		w.resetCircuit(ctx, state, "cooldown elapsed")
	}

	signal, digest, err := w.fastCheck(ctx, state)
	if err != nil {
		return false, fmt.Errorf("fast check: %w", err)
	}
	if !signal {
		if state.ConsecutiveEscalations > 0 {
			w.emit(ctx, events.New(events.EventTypeEscalationResolved, events.SeverityInfo, w.actor,
				"Fast tier clear, escalation streak reset", nil))
		}
		state.ConsecutiveEscalations = 0
		return false, nil
	}

	// The fast tier signaled. If the streak already hit the ceiling, open
	// the circuit instead of escalating again.
	if state.ConsecutiveEscalations >= w.cfg.EscalationCeiling {
		w.openCircuit(ctx, state)
		return true, nil
	}

	state.Tier = types.WatchTierDeep
	resolved, err := w.deepCheck(ctx, digest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watcher: deep check failed: %v\n", err)
		resolved = false
	}

	if resolved {
		state.ConsecutiveEscalations = 0
		w.emit(ctx, events.New(events.EventTypeEscalationResolved, events.SeverityInfo, w.actor,
			"Deep tier resolved the escalation", map[string]interface{}{"digest": digest}))
		return false, nil
	}

	state.ConsecutiveEscalations++
	w.emit(ctx, events.New(events.EventTypeEscalationTriggered, events.SeverityError, w.actor,
		fmt.Sprintf("Escalation %d of %d before circuit break", state.ConsecutiveEscalations, w.cfg.EscalationCeiling),
		map[string]interface{}{
			"consecutive": state.ConsecutiveEscalations,
			"digest":      digest,
		}))
	return true, nil
}

// fastCheck is the cheap rule-based tier. It signals when the healing
// backlog is non-empty or a fingerprint went unfixable since the last tick.
func (w *Watcher) fastCheck(ctx context.Context, state *types.EscalationState) (bool, string, error) {
	var findings []string

	for _, failureState := range []types.FailureState{types.FailureStateFixable, types.FailureStateRetry} {
		records, err := w.store.ListFailures(ctx, types.FailureFilter{State: failureState})
		if err != nil {
			return false, "", err
		}
		for _, r := range records {
			findings = append(findings, fmt.Sprintf("%s failure %s (%s) awaiting fix at tier %s",
				failureState, r.Fingerprint, r.Signature, r.Tier))
		}
	}

	unfixable, err := w.store.ListFailures(ctx, types.FailureFilter{State: types.FailureStateUnfixable})
	if err != nil {
		return false, "", err
	}
	for _, r := range unfixable {
		findings = append(findings, fmt.Sprintf("unfixable failure %s (%s) needs human attention",
			r.Fingerprint, r.Signature))
	}

	if len(findings) == 0 {
		return false, "", nil
	}
	return true, strings.Join(findings, "\n"), nil
}

// deepCheck is the expensive tier: drain the healing backlog, then re-run
// the fast check to see whether the condition cleared. When an analyzer is
// configured and a still-dirty state is within the rate budget, its verdict
// can also stand the escalation down.
func (w *Watcher) deepCheck(ctx context.Context, digest string) (bool, error) {
	if w.healer != nil {
		if n, err := w.healer.DispatchPending(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "watcher: healing dispatch failed: %v\n", err)
		} else if n > 0 {
			fmt.Printf("Watcher: deep tier resolved %d failures\n", n)
		}
	}

	signal, _, err := w.fastCheck(ctx, &types.EscalationState{})
	if err != nil {
		return false, err
	}
	if !signal {
		return true, nil
	}

	if w.analyzer != nil && w.deepLimiter.Allow() {
		verdict, err := w.analyzer.AssessEscalation(ctx, digest)
		if err != nil {
			return false, err
		}
		fmt.Printf("Watcher: deep analysis verdict: %s\n", verdict.Summary)
		return verdict.Resolved, nil
	}
	return false, nil
}

func (w *Watcher) openCircuit(ctx context.Context, state *types.EscalationState) {
	if state.CircuitOpen {
		return
	}
	state.CircuitOpen = true
	now := time.Now()
	state.CircuitOpenedAt = &now
	w.emit(ctx, events.NewCircuitOpened(w.actor, state.ConsecutiveEscalations))
}

// ResetCircuit closes the circuit manually, ahead of the cooldown.
func (w *Watcher) ResetCircuit(ctx context.Context) error {
	state, err := w.store.GetEscalationState(ctx)
	if err != nil {
		return err
	}
	if !state.CircuitOpen {
		return nil
	}
	w.resetCircuit(ctx, state, "manual reset")
	return w.store.SaveEscalationState(ctx, state)
}

func (w *Watcher) resetCircuit(ctx context.Context, state *types.EscalationState, reason string) {
	state.CircuitOpen = false
	state.CircuitOpenedAt = nil
	state.ConsecutiveEscalations = 0
	w.emit(ctx, events.NewCircuitReset(w.actor, reason))
}

func (w *Watcher) cooldownElapsed(state *types.EscalationState) bool {
	if w.cfg.CircuitCooldown <= 0 {
		// Zero cooldown means manual reset only
		return false
	}
	if state.CircuitOpenedAt == nil {
		return true
	}
	return time.Since(*state.CircuitOpenedAt) >= w.cfg.CircuitCooldown
}

func (w *Watcher) emit(ctx context.Context, ev *events.Event) {
	if err := w.store.StoreEvent(ctx, ev); err != nil {
		fmt.Printf("Warning: failed to store %s event: %v\n", ev.Type, err)
	}
}
