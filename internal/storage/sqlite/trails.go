package sqlite

import (
	"context"
	"fmt"

	"github.com/steveyegge/hindsight/internal/types"
)

// LayTrail appends one trail event per path for the given task. INSERT OR
// IGNORE against the (task_id, path) primary key makes repeats no-ops, so
// laying the identical trail twice never double-counts.
func (s *SQLiteStorage) LayTrail(ctx context.Context, taskID, domain string, paths []string, strength float64) (int, error) {
	if taskID == "" {
		return 0, fmt.Errorf("task_id is required")
	}
	if strength <= 0 {
		return 0, fmt.Errorf("strength must be positive (got %.3f)", strength)
	}
	if len(paths) == 0 {
		return 0, nil
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	inserted := 0
	err := s.withRetry(ctx, func() error {
		inserted = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		for _, p := range paths {
			res, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO trail_events (task_id, path, domain, strength)
				VALUES (?, ?, ?, ?)
			`, taskID, p, domain, strength)
			if err != nil {
				return fmt.Errorf("failed to insert trail event for %s: %w", p, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetTrailEvents returns trail events at or under the given scope prefix,
// oldest first. Empty scope returns all events.
func (s *SQLiteStorage) GetTrailEvents(ctx context.Context, scope string) ([]*types.TrailEvent, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `
		SELECT task_id, path, domain, strength, laid_at
		FROM trail_events`
	args := []interface{}{}
	if scope != "" {
		// Match the scope itself and anything beneath it
		query += ` WHERE path = ? OR path LIKE ? ESCAPE '\'`
		args = append(args, scope, likePrefix(scope)+"/%")
	}
	query += ` ORDER BY laid_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trail events: %w", err)
	}
	defer rows.Close()

	var trailEvents []*types.TrailEvent
	for rows.Next() {
		var ev types.TrailEvent
		if err := rows.Scan(&ev.TaskID, &ev.Path, &ev.Domain, &ev.Strength, &ev.LaidAt); err != nil {
			return nil, fmt.Errorf("failed to scan trail event: %w", err)
		}
		trailEvents = append(trailEvents, &ev)
	}
	return trailEvents, rows.Err()
}

// likePrefix escapes LIKE metacharacters in a path prefix
func likePrefix(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
