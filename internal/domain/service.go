// Package domain defines the micro-action habit tracking workflows.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/janhstrom/mindreminder-sub000/internal/observability"
	"github.com/janhstrom/mindreminder-sub000/internal/streak"
)

const (
	defaultPageSize           = 50
	maxPageSize               = 200
	defaultHistoryConcurrency = 4
	defaultReadRetryDelay     = 100 * time.Millisecond
)

// MicroActionRepository captures durable storage of habit definitions.
// Get returns (nil, nil) when no row matches the id and user.
type MicroActionRepository interface {
	Create(ctx context.Context, action MicroAction) error
	Get(ctx context.Context, userID, id string) (*MicroAction, error)
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]MicroAction, *Cursor, error)
	Update(ctx context.Context, action MicroAction) error
	Delete(ctx context.Context, userID, id string, deletedAt time.Time) (bool, error)
	SaveStreakSnapshot(ctx context.Context, userID, id string, snapshot StreakSnapshot) error
}

// CompletionLedger records one completion per micro-action and calendar day.
// Find returns (nil, nil) when the day has no completion.
type CompletionLedger interface {
	Complete(ctx context.Context, event CompletionEvent) (CompletionEvent, InsertOutcome, error)
	Find(ctx context.Context, userID, microActionID string, day civil.Date) (*CompletionEvent, error)
	Uncomplete(ctx context.Context, userID, microActionID string, day civil.Date, occurredAt time.Time) (bool, error)
	History(ctx context.Context, userID, microActionID string) ([]civil.Date, error)
}

// StatsCache stores computed dashboard stats per user and day. Invalidate advances
// the user's generation; entries Set under an older generation are never returned.
type StatsCache interface {
	Generation(ctx context.Context, userID string) (int64, error)
	Get(ctx context.Context, userID string, day civil.Date, generation int64) (*Stats, bool, error)
	Set(ctx context.Context, userID string, day civil.Date, generation int64, stats Stats) error
	Invalidate(ctx context.Context, userID string) error
}

// StreakSnapshot is the cached copy of derived streak fields. Stores must only ever
// raise Best.
type StreakSnapshot struct {
	Current int
	Best    int
	Total   int
}

// CompletionResult is returned by CompleteMicroAction.
type CompletionResult struct {
	View    MicroActionView
	Event   CompletionEvent
	Outcome InsertOutcome
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithClock overrides the clock used to determine "today".
func WithClock(clock Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithLocation sets the time zone calendar days are computed in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithStatsCache enables caching of GetStats results.
func WithStatsCache(cache StatsCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReadRetryDelay sets the pause before the single retry of a failed read.
func WithReadRetryDelay(delay time.Duration) Option {
	return func(s *Service) { s.retryDelay = delay }
}

// Service orchestrates the micro-action store, completion ledger, streak
// calculator and stats aggregator.
type Service struct {
	repo               MicroActionRepository
	ledger             CompletionLedger
	cache              StatsCache
	clock              Clock
	loc                *time.Location
	logger             *zap.Logger
	retryDelay         time.Duration
	historyConcurrency int
	locks              *keyedLocker
}

// NewService constructs a Service.
func NewService(repo MicroActionRepository, ledger CompletionLedger, opts ...Option) *Service {
	s := &Service{
		repo:               repo,
		ledger:             ledger,
		clock:              SystemClock,
		loc:                time.UTC,
		logger:             zap.NewNop(),
		retryDelay:         defaultReadRetryDelay,
		historyConcurrency: defaultHistoryConcurrency,
		locks:              newKeyedLocker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current calendar day in the service's time zone.
func (s *Service) Today() civil.Date {
	return civil.DateOf(s.clock.Now().In(s.loc))
}

// CreateMicroAction validates input and stores a new micro-action for userID.
func (s *Service) CreateMicroAction(ctx context.Context, userID string, input CreateMicroActionInput) (*MicroActionView, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	frequency := input.Frequency
	if frequency == "" {
		frequency = FrequencyDaily
	}
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}

	now := s.clock.Now().UTC()
	action := MicroAction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Category:    input.Category,
		Duration:    input.Duration,
		Frequency:   frequency,
		TimeOfDay:   input.TimeOfDay,
		HabitStack:  input.HabitStack,
		IsActive:    active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, action); err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, userID)

	s.logger.Info("micro_action_created",
		zap.String("user_id", userID),
		zap.String("micro_action_id", action.ID),
		zap.String("category", string(action.Category)),
		zap.String("frequency", string(action.Frequency)),
	)

	view := s.derive(action, nil, s.Today())
	return &view, nil
}

// GetMicroAction returns a single micro-action owned by userID.
func (s *Service) GetMicroAction(ctx context.Context, userID, id string) (*MicroActionView, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	action, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	views, err := s.viewsFor(ctx, userID, []MicroAction{*action}, s.Today())
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListMicroActionsPage returns one page of the caller's micro-actions ordered by creation time.
func (s *Service) ListMicroActionsPage(ctx context.Context, userID string, cursor *Cursor, limit int) ([]MicroActionView, *Cursor, error) {
	if err := requireUser(userID); err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	type page struct {
		items []MicroAction
		next  *Cursor
	}
	result, err := retryRead(ctx, s.retryDelay, func() (page, error) {
		items, next, err := s.repo.ListByUser(ctx, userID, cursor, limit)
		return page{items: items, next: next}, err
	})
	if err != nil {
		return nil, nil, err
	}

	views, err := s.viewsFor(ctx, userID, result.items, s.Today())
	if err != nil {
		return nil, nil, err
	}
	return views, result.next, nil
}

// ListMicroActions returns every micro-action owned by userID.
func (s *Service) ListMicroActions(ctx context.Context, userID string) ([]MicroActionView, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	actions, err := s.listAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.viewsFor(ctx, userID, actions, s.Today())
}

// UpdateMicroAction applies patch to a micro-action owned by userID.
func (s *Service) UpdateMicroAction(ctx context.Context, userID, id string, patch MicroActionPatch) (*MicroActionView, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	action, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updated := *action
	if err := patch.Apply(&updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.clock.Now().UTC()
	// best streak is measured in the old cadence's periods
	cadenceChanged := updated.Frequency != action.Frequency
	if cadenceChanged {
		updated.BestStreak = 0
	}

	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, userID)

	s.logger.Info("micro_action_updated",
		zap.String("user_id", userID),
		zap.String("micro_action_id", id),
		zap.Bool("cadence_changed", cadenceChanged),
	)

	if cadenceChanged {
		view, err := s.refresh(ctx, updated, s.Today())
		if err != nil {
			return nil, err
		}
		return &view, nil
	}
	views, err := s.viewsFor(ctx, userID, []MicroAction{updated}, s.Today())
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// DeleteMicroAction removes a micro-action and its ledger. Deleting an id that
// does not exist, or that belongs to someone else, is a no-op.
func (s *Service) DeleteMicroAction(ctx context.Context, userID, id string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	removed, err := s.repo.Delete(ctx, userID, id, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if removed {
		s.invalidateStats(ctx, userID)
	}
	s.logger.Info("micro_action_deleted",
		zap.String("user_id", userID),
		zap.String("micro_action_id", id),
		zap.Bool("removed", removed),
	)
	return nil
}

// CompleteMicroAction marks the micro-action done for today. Repeated calls on the
// same day return the existing completion with InsertExisting.
func (s *Service) CompleteMicroAction(ctx context.Context, userID, id string) (*CompletionResult, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	today := s.Today()
	unlock := s.locks.Lock(toggleKey(id, today))
	defer unlock()

	action, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !action.IsActive {
		return nil, NewValidationError("is_active", "inactive micro-actions cannot be completed")
	}

	event := CompletionEvent{
		ID:            uuid.NewString(),
		MicroActionID: id,
		UserID:        userID,
		Day:           today,
		CompletedAt:   s.clock.Now().UTC(),
	}
	stored, outcome, err := s.ledger.Complete(ctx, event)
	if errors.Is(err, ErrConflict) {
		s.logger.Debug("completion_conflict_ignored",
			zap.String("micro_action_id", id),
			zap.String("day", today.String()),
		)
		stored, outcome, err = s.winningCompletion(ctx, userID, id, today)
	}
	if err != nil {
		return nil, err
	}

	view, err := s.refresh(ctx, *action, today)
	if err != nil {
		return nil, err
	}

	created := outcome == InsertCreated
	observability.RecordCompletion(created)
	if created {
		s.invalidateStats(ctx, userID)
	}
	s.logger.Info("micro_action_completed",
		zap.String("user_id", userID),
		zap.String("micro_action_id", id),
		zap.String("day", today.String()),
		zap.Bool("replay", !created),
		zap.Int("current_streak", view.CurrentStreak),
	)

	return &CompletionResult{View: view, Event: stored, Outcome: outcome}, nil
}

// UncompleteMicroAction removes today's completion, if any.
func (s *Service) UncompleteMicroAction(ctx context.Context, userID, id string) (*MicroActionView, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	today := s.Today()
	unlock := s.locks.Lock(toggleKey(id, today))
	defer unlock()

	action, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	removed, err := s.ledger.Uncomplete(ctx, userID, id, today, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}

	view, err := s.refresh(ctx, *action, today)
	if err != nil {
		return nil, err
	}

	observability.RecordUncompletion(removed)
	if removed {
		s.invalidateStats(ctx, userID)
	}
	s.logger.Info("micro_action_uncompleted",
		zap.String("user_id", userID),
		zap.String("micro_action_id", id),
		zap.String("day", today.String()),
		zap.Bool("removed", removed),
	)
	return &view, nil
}

// History returns the ascending completion days of a micro-action owned by userID.
func (s *Service) History(ctx context.Context, userID, id string) ([]civil.Date, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if _, err := s.getOwned(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.history(ctx, userID, id)
}

// GetStats aggregates the caller's micro-actions for today.
func (s *Service) GetStats(ctx context.Context, userID string) (Stats, error) {
	if err := requireUser(userID); err != nil {
		return Stats{}, err
	}
	today := s.Today()

	// the generation is read before computing so a concurrent Invalidate orphans our Set
	var (
		cacheable  bool
		generation int64
	)
	if s.cache != nil {
		gen, err := s.cache.Generation(ctx, userID)
		if err != nil {
			s.logger.Warn("stats_cache_generation_failed", zap.String("user_id", userID), zap.Error(err))
		} else {
			cacheable, generation = true, gen
		}
	}
	if cacheable {
		cached, ok, err := s.cache.Get(ctx, userID, today, generation)
		switch {
		case err != nil:
			s.logger.Warn("stats_cache_get_failed", zap.String("user_id", userID), zap.Error(err))
		case ok:
			observability.RecordStatsCache(true)
			return *cached, nil
		}
		observability.RecordStatsCache(false)
	}

	actions, err := s.listAll(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	views, err := s.viewsFor(ctx, userID, actions, today)
	if err != nil {
		return Stats{}, err
	}
	stats := ComputeStats(views, today)

	if cacheable {
		if err := s.cache.Set(ctx, userID, today, generation, stats); err != nil {
			s.logger.Warn("stats_cache_set_failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return stats, nil
}

func (s *Service) listAll(ctx context.Context, userID string) ([]MicroAction, error) {
	var (
		all    []MicroAction
		cursor *Cursor
	)
	for {
		type page struct {
			items []MicroAction
			next  *Cursor
		}
		result, err := retryRead(ctx, s.retryDelay, func() (page, error) {
			items, next, err := s.repo.ListByUser(ctx, userID, cursor, maxPageSize)
			return page{items: items, next: next}, err
		})
		if err != nil {
			return nil, err
		}
		all = append(all, result.items...)
		if result.next == nil {
			return all, nil
		}
		cursor = result.next
	}
}

// viewsFor loads the ledger of every action concurrently and derives its view.
func (s *Service) viewsFor(ctx context.Context, userID string, actions []MicroAction, today civil.Date) ([]MicroActionView, error) {
	views := make([]MicroActionView, len(actions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.historyConcurrency)
	for i, action := range actions {
		g.Go(func() error {
			history, err := s.history(gctx, userID, action.ID)
			if err != nil {
				return err
			}
			views[i] = s.derive(action, history, today)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// refresh recomputes streak fields from the ledger after a write and stores the
// snapshot. A failed snapshot write is logged only; the ledger stays the source of truth.
func (s *Service) refresh(ctx context.Context, action MicroAction, today civil.Date) (MicroActionView, error) {
	history, err := s.history(ctx, action.UserID, action.ID)
	if err != nil {
		return MicroActionView{}, err
	}
	view := s.derive(action, history, today)

	snapshot := StreakSnapshot{
		Current: view.CurrentStreak,
		Best:    view.BestStreak,
		Total:   view.TotalCompletions,
	}
	if err := s.repo.SaveStreakSnapshot(ctx, action.UserID, action.ID, snapshot); err != nil {
		s.logger.Warn("streak_snapshot_failed",
			zap.String("micro_action_id", action.ID),
			zap.Error(err),
		)
	}
	return view, nil
}

func (s *Service) derive(action MicroAction, history []civil.Date, today civil.Date) MicroActionView {
	cadence := action.Frequency.Cadence()
	summary := streak.Calculate(history, cadence, today)
	observability.RecordStreakRecompute(string(action.Frequency))

	view := MicroActionView{
		MicroAction:    action,
		CompletedToday: summary.CompletedToday,
		LastCompleted:  summary.LastCompleted,
		History:        history,
	}
	view.CurrentStreak = summary.Current
	view.TotalCompletions = summary.Total
	view.BestStreak = max(action.BestStreak, summary.Best, summary.Current)

	switch {
	case !action.IsActive:
		view.Status = StatusNotDueToday
	case summary.CompletedToday:
		view.Status = StatusCompletedToday
	case streak.DueOn(cadence, today, history):
		view.Status = StatusDueToday
	default:
		view.Status = StatusNotDueToday
	}
	return view
}

// winningCompletion loads the completion a concurrent writer stored for day.
func (s *Service) winningCompletion(ctx context.Context, userID, id string, day civil.Date) (CompletionEvent, InsertOutcome, error) {
	existing, err := retryRead(ctx, s.retryDelay, func() (*CompletionEvent, error) {
		return s.ledger.Find(ctx, userID, id, day)
	})
	if err != nil {
		return CompletionEvent{}, InsertExisting, err
	}
	if existing == nil {
		return CompletionEvent{}, InsertExisting, fmt.Errorf("completion for %s vanished after conflict: %w", day, ErrConflict)
	}
	return *existing, InsertExisting, nil
}

func (s *Service) getOwned(ctx context.Context, userID, id string) (*MicroAction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	action, err := retryRead(ctx, s.retryDelay, func() (*MicroAction, error) {
		return s.repo.Get(ctx, userID, id)
	})
	if err != nil {
		return nil, err
	}
	if action == nil || action.UserID != userID {
		return nil, ErrNotFound
	}
	return action, nil
}

func (s *Service) history(ctx context.Context, userID, id string) ([]civil.Date, error) {
	return retryRead(ctx, s.retryDelay, func() ([]civil.Date, error) {
		return s.ledger.History(ctx, userID, id)
	})
}

func (s *Service) invalidateStats(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("stats_cache_invalidate_failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUnauthenticated
	}
	return nil
}

func toggleKey(id string, day civil.Date) string {
	return id + "|" + day.String()
}
