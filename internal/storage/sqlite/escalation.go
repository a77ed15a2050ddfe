package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/steveyegge/hindsight/internal/types"
)

// GetEscalationState loads the watcher's persisted state. A store that has
// never been ticked returns a zeroed fast-tier state so a fresh install and
// a restart look the same to the watcher.
func (s *SQLiteStorage) GetEscalationState(ctx context.Context) (*types.EscalationState, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var state types.EscalationState
	var tier string
	var lastTick, openedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT tier, last_tick, consecutive_escalations, circuit_open, circuit_opened_at
		FROM escalation_state WHERE id = 1
	`).Scan(&tier, &lastTick, &state.ConsecutiveEscalations, &state.CircuitOpen, &openedAt)

	if err == sql.ErrNoRows {
		return &types.EscalationState{Tier: types.WatchTierFast}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get escalation state: %w", err)
	}

	state.Tier = types.WatchTier(tier)
	if lastTick.Valid {
		state.LastTick = lastTick.Time
	}
	if openedAt.Valid {
		state.CircuitOpenedAt = &openedAt.Time
	}
	return &state, nil
}

// SaveEscalationState persists the watcher's state so a restart recovers
// the last known tier and counters.
func (s *SQLiteStorage) SaveEscalationState(ctx context.Context, state *types.EscalationState) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var openedAt interface{}
	if state.CircuitOpenedAt != nil {
		openedAt = *state.CircuitOpenedAt
	}

	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO escalation_state (id, tier, last_tick, consecutive_escalations, circuit_open, circuit_opened_at)
			VALUES (1, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				tier = excluded.tier,
				last_tick = excluded.last_tick,
				consecutive_escalations = excluded.consecutive_escalations,
				circuit_open = excluded.circuit_open,
				circuit_opened_at = excluded.circuit_opened_at
		`, state.Tier, state.LastTick, state.ConsecutiveEscalations, state.CircuitOpen, openedAt)
		if err != nil {
			return fmt.Errorf("failed to save escalation state: %w", err)
		}
		return nil
	})
}
