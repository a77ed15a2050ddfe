package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/hindsight/internal/storage"
	"github.com/steveyegge/hindsight/internal/types"
)

// UpsertFailure registers a failure fingerprint, or refreshes last_seen and
// the signature text if the fingerprint is already known. State-machine
// fields only move through MutateFailure.
func (s *SQLiteStorage) UpsertFailure(ctx context.Context, record *types.FailureRecord) (*types.FailureRecord, error) {
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var result *types.FailureRecord
	err := s.withRetry(ctx, func() error {
		return s.immediateTx(ctx, func(conn *sql.Conn) error {
			_, err := conn.ExecContext(ctx, `
				INSERT INTO failures (fingerprint, domain, signature, root_cause, lesson, severity, state, tier)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(fingerprint) DO UPDATE SET
					signature = excluded.signature,
					last_seen = CURRENT_TIMESTAMP
			`, record.Fingerprint, record.Domain, record.Signature, record.RootCause,
				record.Lesson, record.Severity, record.State, record.Tier)
			if err != nil {
				return fmt.Errorf("failed to upsert failure: %w", err)
			}

			row := conn.QueryRowContext(ctx, selectFailure+` WHERE fingerprint = ?`, record.Fingerprint)
			got, err := scanFailure(row)
			if err != nil {
				return fmt.Errorf("failed to read back failure: %w", err)
			}
			result = got
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetFailure retrieves a failure record by fingerprint
func (s *SQLiteStorage) GetFailure(ctx context.Context, fingerprint string) (*types.FailureRecord, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, selectFailure+` WHERE fingerprint = ?`, fingerprint)
	record, err := scanFailure(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("failure %s: %w", fingerprint, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failure: %w", err)
	}
	return record, nil
}

// MutateFailure applies fn to the failure record inside a write transaction,
// serializing concurrent dispatches for the same fingerprint.
func (s *SQLiteStorage) MutateFailure(ctx context.Context, fingerprint string, fn func(*types.FailureRecord) error) (*types.FailureRecord, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var result *types.FailureRecord
	err := s.withRetry(ctx, func() error {
		return s.immediateTx(ctx, func(conn *sql.Conn) error {
			row := conn.QueryRowContext(ctx, selectFailure+` WHERE fingerprint = ?`, fingerprint)
			record, err := scanFailure(row)
			if err == sql.ErrNoRows {
				return fmt.Errorf("failure %s: %w", fingerprint, storage.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("failed to read failure: %w", err)
			}

			if err := fn(record); err != nil {
				return err
			}
			if err := record.Validate(); err != nil {
				return fmt.Errorf("mutation produced invalid failure record: %w", err)
			}

			_, err = conn.ExecContext(ctx, `
				UPDATE failures
				SET domain = ?, root_cause = ?, lesson = ?, severity = ?, state = ?,
				    tier = ?, consecutive_failures = ?, last_seen = ?
				WHERE fingerprint = ?
			`, record.Domain, record.RootCause, record.Lesson, record.Severity,
				record.State, record.Tier, record.ConsecutiveFailures, time.Now(), fingerprint)
			if err != nil {
				return fmt.Errorf("failed to update failure: %w", err)
			}
			result = record
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListFailures finds failure records matching the filter, most recent first
func (s *SQLiteStorage) ListFailures(ctx context.Context, filter types.FailureFilter) ([]*types.FailureRecord, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	whereClauses := []string{}
	args := []interface{}{}

	if filter.Domain != "" {
		whereClauses = append(whereClauses, "domain = ?")
		args = append(args, filter.Domain)
	}
	if filter.State != "" {
		whereClauses = append(whereClauses, "state = ?")
		args = append(args, filter.State)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	limitSQL := ""
	if filter.Limit > 0 {
		limitSQL = fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`%s %s ORDER BY last_seen DESC %s`, selectFailure, whereSQL, limitSQL), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	defer rows.Close()

	var records []*types.FailureRecord
	for rows.Next() {
		record, err := scanFailure(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

const selectFailure = `
	SELECT fingerprint, domain, signature, root_cause, lesson, severity,
	       state, tier, consecutive_failures, first_seen, last_seen
	FROM failures`

func scanFailure(row scanner) (*types.FailureRecord, error) {
	var record types.FailureRecord
	err := row.Scan(
		&record.Fingerprint, &record.Domain, &record.Signature, &record.RootCause,
		&record.Lesson, &record.Severity, &record.State, &record.Tier,
		&record.ConsecutiveFailures, &record.FirstSeen, &record.LastSeen,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
