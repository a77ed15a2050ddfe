// Package storage defines the persistence interface for the learning core.
// The store is the single shared mutable resource: all writes to a given
// lesson or failure fingerprint are serialized inside it, reads may proceed
// concurrently, and every operation is bounded by a timeout so no caller
// can hang on a wedged database.
package storage

import (
	"context"
	"errors"

	"github.com/steveyegge/hindsight/internal/events"
	"github.com/steveyegge/hindsight/internal/types"
)

// ErrNotFound is returned when a requested record does not exist.
// This is a caller error and is surfaced immediately, never retried.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a write lost to concurrent updates even
// after the store's transparent retries.
var ErrConflict = errors.New("concurrent update conflict")

// Storage defines the interface for learning-core storage backends
type Storage interface {
	// Lessons - confidence-scored heuristics keyed by (domain, rule).
	// RecordLesson upserts: re-recording an existing (domain, rule) updates
	// the record rather than duplicating it.
	RecordLesson(ctx context.Context, lesson *types.Lesson) (*types.Lesson, error)
	// GetLesson returns ErrNotFound for unknown ids.
	GetLesson(ctx context.Context, id int64) (*types.Lesson, error)
	// MutateLesson runs fn on the current record inside a write transaction
	// and persists the result. Concurrent mutations of the same id are
	// serialized; none are lost.
	MutateLesson(ctx context.Context, id int64, fn func(*types.Lesson) error) (*types.Lesson, error)
	ListLessons(ctx context.Context, filter types.LessonFilter) ([]*types.Lesson, error)

	// Trails - append-only resource touches. LayTrail inserts one event per
	// (taskID, path) pair, ignoring pairs already present, and returns the
	// number actually inserted.
	LayTrail(ctx context.Context, taskID, domain string, paths []string, strength float64) (int, error)
	// GetTrailEvents returns events whose path equals scope or falls under
	// it as a prefix. Empty scope returns everything.
	GetTrailEvents(ctx context.Context, scope string) ([]*types.TrailEvent, error)

	// Failures - keyed by fingerprint.
	UpsertFailure(ctx context.Context, record *types.FailureRecord) (*types.FailureRecord, error)
	GetFailure(ctx context.Context, fingerprint string) (*types.FailureRecord, error)
	MutateFailure(ctx context.Context, fingerprint string, fn func(*types.FailureRecord) error) (*types.FailureRecord, error)
	ListFailures(ctx context.Context, filter types.FailureFilter) ([]*types.FailureRecord, error)

	// Escalation state - single row owned by the watcher. GetEscalationState
	// returns a zeroed fast-tier state when none has been saved yet.
	GetEscalationState(ctx context.Context) (*types.EscalationState, error)
	SaveEscalationState(ctx context.Context, state *types.EscalationState) error

	// Events - activity feed
	StoreEvent(ctx context.Context, event *events.Event) error
	GetRecentEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error)

	Close() error
}
