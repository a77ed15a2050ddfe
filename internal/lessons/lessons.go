// Package lessons implements the heuristic store and confidence updater.
//
// A lesson is a domain-scoped rule whose confidence moves toward the signal
// of each validation outcome:
//
//	confidence' = confidence + lr(source) * (signal(outcome) - confidence)
//
// where signal is 1 for success (and unknown, the optimistic default) and 0
// for failure. The update is exponentially weighted, so confidence always
// stays in [0,1] and recent outcomes dominate old ones. Lessons that hold
// high confidence across enough validations get promoted to golden rules;
// golden rules that decay get demoted, and lessons near zero confidence are
// soft-retired.
package lessons

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/hindsight/internal/config"
	"github.com/steveyegge/hindsight/internal/events"
	"github.com/steveyegge/hindsight/internal/storage"
	"github.com/steveyegge/hindsight/internal/types"
)

// Engine applies the confidence-update policy on top of the store.
type Engine struct {
	store storage.Storage
	cfg   config.Lessons
	actor string
}

// NewEngine creates a lesson engine. The actor tags emitted events so the
// activity feed shows which component made each decision.
func NewEngine(store storage.Storage, cfg config.Lessons, actor string) *Engine {
	if actor == "" {
		actor = "lessons"
	}
	return &Engine{store: store, cfg: cfg, actor: actor}
}

// Record upserts a lesson for (domain, rule). New lessons start at the
// configured initial confidence; re-recording an existing pair refreshes its
// explanation without touching confidence or validation count.
func (e *Engine) Record(ctx context.Context, domain, rule, explanation string, source types.LessonSource) (*types.Lesson, error) {
	lesson := &types.Lesson{
		Domain:      domain,
		Rule:        rule,
		Explanation: explanation,
		Confidence:  e.cfg.InitialConfidence,
		Source:      source,
	}
	if err := lesson.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lesson: %w", err)
	}

	stored, err := e.store.RecordLesson(ctx, lesson)
	if err != nil {
		return nil, err
	}

	if stored.Validations == 0 && !stored.IsGolden {
		e.emit(ctx, events.New(events.EventTypeLessonRecorded, events.SeverityInfo, e.actor,
			fmt.Sprintf("Lesson %d recorded in domain %s", stored.ID, stored.Domain),
			map[string]interface{}{
				"lesson_id": stored.ID,
				"domain":    stored.Domain,
				"source":    string(stored.Source),
			}))
	}
	return stored, nil
}

// Validate applies one outcome to the lesson's confidence and re-evaluates
// the promotion, demotion, and retirement gates. The read-update-write runs
// inside the store's write transaction, so concurrent validations of the
// same lesson are serialized and none are lost.
func (e *Engine) Validate(ctx context.Context, id int64, outcome types.Outcome) (*types.Lesson, error) {
	if !outcome.IsValid() {
		return nil, fmt.Errorf("invalid outcome: %s", outcome)
	}

	var promoted, demoted, retired bool
	updated, err := e.store.MutateLesson(ctx, id, func(l *types.Lesson) error {
		lr := e.learningRate(l.Source)
		l.Confidence = clamp01(l.Confidence + lr*(outcome.Signal()-l.Confidence))
		l.Validations++

		switch {
		case !l.IsGolden &&
			l.Confidence >= e.cfg.PromotionThreshold &&
			l.Validations >= e.cfg.MinValidations:
			l.IsGolden = true
			l.Retired = false
			now := time.Now()
			l.PromotedAt = &now
			promoted = true
		case l.IsGolden && l.Confidence < e.cfg.DemotionThreshold:
			l.IsGolden = false
			l.PromotedAt = nil
			demoted = true
		}
		if !l.IsGolden && !l.Retired && l.Confidence < e.cfg.RetireThreshold {
			l.Retired = true
			retired = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case promoted:
		e.emit(ctx, events.NewLessonPromoted(e.actor, updated.ID, updated.Domain, updated.Rule,
			updated.Confidence, updated.Validations))
	case demoted:
		e.emit(ctx, events.NewLessonDemoted(e.actor, updated.ID, updated.Domain, updated.Confidence))
	}
	if retired {
		e.emit(ctx, events.NewLessonRetired(e.actor, updated.ID, updated.Domain, updated.Confidence))
	}
	return updated, nil
}

// RecordAndValidate records a lesson and immediately applies the outcome it
// arrived with. This is the path task ingestion uses: a failure both creates
// the lesson and counts as its first validation signal.
func (e *Engine) RecordAndValidate(ctx context.Context, domain, rule, explanation string, source types.LessonSource, outcome types.Outcome) (*types.Lesson, error) {
	stored, err := e.Record(ctx, domain, rule, explanation, source)
	if err != nil {
		return nil, err
	}
	return e.Validate(ctx, stored.ID, outcome)
}

// Get fetches one lesson by id.
func (e *Engine) Get(ctx context.Context, id int64) (*types.Lesson, error) {
	return e.store.GetLesson(ctx, id)
}

// Query lists lessons ordered by confidence. Retired lessons are excluded
// unless the filter asks for them.
func (e *Engine) Query(ctx context.Context, filter types.LessonFilter) ([]*types.Lesson, error) {
	return e.store.ListLessons(ctx, filter)
}

// GoldenRules returns the promoted rules for a domain (all domains when
// domain is empty).
func (e *Engine) GoldenRules(ctx context.Context, domain string) ([]*types.Lesson, error) {
	return e.store.ListLessons(ctx, types.LessonFilter{Domain: domain, GoldenOnly: true})
}

func (e *Engine) learningRate(source types.LessonSource) float64 {
	switch source {
	case types.SourceFailure:
		return e.cfg.LearningRateFailure
	case types.SourceSuccess:
		return e.cfg.LearningRateSuccess
	default:
		return e.cfg.LearningRateObservation
	}
}

// emit stores an event best-effort. A full audit feed is worth having but
// never worth failing the state change that already committed.
func (e *Engine) emit(ctx context.Context, ev *events.Event) {
	if err := e.store.StoreEvent(ctx, ev); err != nil {
		fmt.Printf("Warning: failed to store %s event: %v\n", ev.Type, err)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
