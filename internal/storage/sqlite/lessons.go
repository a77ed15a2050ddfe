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

// RecordLesson upserts a lesson keyed by (domain, rule). On conflict the
// explanation is refreshed if the new one is non-empty; confidence,
// validations, and golden status are left alone - those only move through
// MutateLesson.
func (s *SQLiteStorage) RecordLesson(ctx context.Context, lesson *types.Lesson) (*types.Lesson, error) {
	if err := lesson.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var result *types.Lesson
	err := s.withRetry(ctx, func() error {
		return s.immediateTx(ctx, func(conn *sql.Conn) error {
			_, err := conn.ExecContext(ctx, `
				INSERT INTO lessons (domain, rule, explanation, confidence, source)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(domain, rule) DO UPDATE SET
					explanation = CASE WHEN excluded.explanation != '' THEN excluded.explanation ELSE lessons.explanation END,
					updated_at = CURRENT_TIMESTAMP
			`, lesson.Domain, lesson.Rule, lesson.Explanation, lesson.Confidence, lesson.Source)
			if err != nil {
				return fmt.Errorf("failed to upsert lesson: %w", err)
			}

			row := conn.QueryRowContext(ctx, selectLesson+` WHERE domain = ? AND rule = ?`,
				lesson.Domain, lesson.Rule)
			got, err := scanLesson(row)
			if err != nil {
				return fmt.Errorf("failed to read back lesson: %w", err)
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

// GetLesson retrieves a lesson by ID
func (s *SQLiteStorage) GetLesson(ctx context.Context, id int64) (*types.Lesson, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, selectLesson+` WHERE id = ?`, id)
	lesson, err := scanLesson(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("lesson %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}
	return lesson, nil
}

// MutateLesson applies fn to the lesson inside a write transaction. The
// whole read-modify-write happens under the IMMEDIATE lock, so concurrent
// validations of the same lesson are serialized and none are lost.
func (s *SQLiteStorage) MutateLesson(ctx context.Context, id int64, fn func(*types.Lesson) error) (*types.Lesson, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var result *types.Lesson
	err := s.withRetry(ctx, func() error {
		return s.immediateTx(ctx, func(conn *sql.Conn) error {
			row := conn.QueryRowContext(ctx, selectLesson+` WHERE id = ?`, id)
			lesson, err := scanLesson(row)
			if err == sql.ErrNoRows {
				return fmt.Errorf("lesson %d: %w", id, storage.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("failed to read lesson: %w", err)
			}

			if err := fn(lesson); err != nil {
				return err
			}
			if err := lesson.Validate(); err != nil {
				return fmt.Errorf("mutation produced invalid lesson: %w", err)
			}

			var promotedAt interface{}
			if lesson.PromotedAt != nil {
				promotedAt = *lesson.PromotedAt
			}
			_, err = conn.ExecContext(ctx, `
				UPDATE lessons
				SET confidence = ?, validations = ?, is_golden = ?, retired = ?,
				    promoted_at = ?, updated_at = ?
				WHERE id = ?
			`, lesson.Confidence, lesson.Validations, lesson.IsGolden, lesson.Retired,
				promotedAt, time.Now(), id)
			if err != nil {
				return fmt.Errorf("failed to update lesson: %w", err)
			}
			result = lesson
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListLessons finds lessons matching the filter, ordered by confidence
// descending. Retired lessons are excluded unless the filter asks for them.
func (s *SQLiteStorage) ListLessons(ctx context.Context, filter types.LessonFilter) ([]*types.Lesson, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	whereClauses := []string{}
	args := []interface{}{}

	if !filter.IncludeRetired {
		whereClauses = append(whereClauses, "retired = 0")
	}
	if filter.Domain != "" {
		whereClauses = append(whereClauses, "domain = ?")
		args = append(args, filter.Domain)
	}
	if filter.MinConfidence > 0 {
		whereClauses = append(whereClauses, "confidence >= ?")
		args = append(args, filter.MinConfidence)
	}
	if filter.GoldenOnly {
		whereClauses = append(whereClauses, "is_golden = 1")
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	limitSQL := ""
	if filter.Limit > 0 {
		limitSQL = fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`%s %s ORDER BY confidence DESC, validations DESC %s`,
		selectLesson, whereSQL, limitSQL), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}
	defer rows.Close()

	var lessons []*types.Lesson
	for rows.Next() {
		lesson, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		lessons = append(lessons, lesson)
	}
	return lessons, rows.Err()
}

const selectLesson = `
	SELECT id, domain, rule, explanation, confidence, source, validations,
	       is_golden, retired, created_at, updated_at, promoted_at
	FROM lessons`

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLesson(row scanner) (*types.Lesson, error) {
	var lesson types.Lesson
	var promotedAt sql.NullTime

	err := row.Scan(
		&lesson.ID, &lesson.Domain, &lesson.Rule, &lesson.Explanation,
		&lesson.Confidence, &lesson.Source, &lesson.Validations,
		&lesson.IsGolden, &lesson.Retired, &lesson.CreatedAt,
		&lesson.UpdatedAt, &promotedAt,
	)
	if err != nil {
		return nil, err
	}
	if promotedAt.Valid {
		lesson.PromotedAt = &promotedAt.Time
	}
	return &lesson, nil
}
