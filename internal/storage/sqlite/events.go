package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/steveyegge/hindsight/internal/events"
)

// StoreEvent appends an event to the activity feed
func (s *SQLiteStorage) StoreEvent(ctx context.Context, event *events.Event) error {
	if event.ID == "" {
		return fmt.Errorf("event id is required")
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var dataJSON interface{}
	if event.Data != nil {
		b, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		dataJSON = string(b)
	}

	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO events (id, event_type, actor, severity, message, data, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, event.ID, event.Type, event.Actor, event.Severity, event.Message, dataJSON, event.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to store event: %w", err)
		}
		return nil
	})
}

// GetRecentEvents returns events matching the filter, newest first
func (s *SQLiteStorage) GetRecentEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	whereClauses := []string{}
	args := []interface{}{}

	if filter.Type != "" {
		whereClauses = append(whereClauses, "event_type = ?")
		args = append(args, filter.Type)
	}
	if filter.Severity != "" {
		whereClauses = append(whereClauses, "severity = ?")
		args = append(args, filter.Severity)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, event_type, actor, severity, message, data, created_at
		FROM events %s
		ORDER BY created_at DESC
		LIMIT %d
	`, whereSQL, limit), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var result []*events.Event
	for rows.Next() {
		var ev events.Event
		var eventType, severity string
		var dataJSON sql.NullString

		if err := rows.Scan(&ev.ID, &eventType, &ev.Actor, &severity, &ev.Message, &dataJSON, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Type = events.EventType(eventType)
		ev.Severity = events.EventSeverity(severity)
		if dataJSON.Valid && dataJSON.String != "" {
			if err := json.Unmarshal([]byte(dataJSON.String), &ev.Data); err != nil {
				// A malformed data blob shouldn't hide the event itself
				ev.Data = map[string]interface{}{"unparsed": dataJSON.String}
			}
		}
		result = append(result, &ev)
	}
	return result, rows.Err()
}
