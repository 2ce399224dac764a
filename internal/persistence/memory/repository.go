// Package memory provides an in-process store for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/janhstrom/mindreminder-sub000/internal/domain"
)

type completionKey struct {
	microActionID string
	day           civil.Date
}

// Repository stores micro-actions and their completion ledger in memory. It
// implements both domain.MicroActionRepository and domain.CompletionLedger.
type Repository struct {
	mu          sync.RWMutex
	actions     map[string]domain.MicroAction
	completions map[completionKey]domain.CompletionEvent
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		actions:     make(map[string]domain.MicroAction),
		completions: make(map[completionKey]domain.CompletionEvent),
	}
}

// Create implements domain.MicroActionRepository.
func (r *Repository) Create(ctx context.Context, action domain.MicroAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[action.ID]; exists {
		return domain.ErrConflict
	}
	r.actions[action.ID] = action
	return nil
}

// Get implements domain.MicroActionRepository.
func (r *Repository) Get(ctx context.Context, userID, id string) (*domain.MicroAction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	action, ok := r.actions[id]
	if !ok || action.UserID != userID {
		return nil, nil
	}
	return &action, nil
}

// ListByUser implements domain.MicroActionRepository.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.MicroAction, *domain.Cursor, error) {
	r.mu.RLock()
	owned := make([]domain.MicroAction, 0)
	for _, action := range r.actions {
		if action.UserID == userID {
			owned = append(owned, action)
		}
	}
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID < owned[j].ID
		}
		return owned[i].CreatedAt.Before(owned[j].CreatedAt)
	})

	results := make([]domain.MicroAction, 0, limit)
	for _, action := range owned {
		if cursor != nil && !after(action, *cursor) {
			continue
		}
		results = append(results, action)
		if len(results) == limit {
			break
		}
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, next, nil
}

// Update implements domain.MicroActionRepository.
func (r *Repository) Update(ctx context.Context, action domain.MicroAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.actions[action.ID]
	if !ok || existing.UserID != action.UserID {
		return domain.ErrNotFound
	}
	action.CreatedAt = existing.CreatedAt
	action.CurrentStreak = existing.CurrentStreak
	action.TotalCompletions = existing.TotalCompletions
	action.BestStreak = existing.BestStreak
	if action.Frequency != existing.Frequency {
		action.BestStreak = 0
	}
	r.actions[action.ID] = action
	return nil
}

// Delete implements domain.MicroActionRepository and cascades to the ledger.
func (r *Repository) Delete(ctx context.Context, userID, id string, deletedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	action, ok := r.actions[id]
	if !ok || action.UserID != userID {
		return false, nil
	}
	delete(r.actions, id)
	for key := range r.completions {
		if key.microActionID == id {
			delete(r.completions, key)
		}
	}
	return true, nil
}

// SaveStreakSnapshot implements domain.MicroActionRepository. Best only ever rises.
func (r *Repository) SaveStreakSnapshot(ctx context.Context, userID, id string, snapshot domain.StreakSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	action, ok := r.actions[id]
	if !ok || action.UserID != userID {
		return domain.ErrNotFound
	}
	action.CurrentStreak = snapshot.Current
	action.TotalCompletions = snapshot.Total
	action.BestStreak = max(action.BestStreak, snapshot.Best)
	r.actions[id] = action
	return nil
}

// Complete implements domain.CompletionLedger.
func (r *Repository) Complete(ctx context.Context, event domain.CompletionEvent) (domain.CompletionEvent, domain.InsertOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	action, ok := r.actions[event.MicroActionID]
	if !ok || action.UserID != event.UserID {
		return domain.CompletionEvent{}, domain.InsertCreated, domain.ErrNotFound
	}

	key := completionKey{microActionID: event.MicroActionID, day: event.Day}
	if existing, found := r.completions[key]; found {
		return existing, domain.InsertExisting, nil
	}
	r.completions[key] = event
	return event, domain.InsertCreated, nil
}

// Find implements domain.CompletionLedger.
func (r *Repository) Find(ctx context.Context, userID, microActionID string, day civil.Date) (*domain.CompletionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	existing, found := r.completions[completionKey{microActionID: microActionID, day: day}]
	if !found || existing.UserID != userID {
		return nil, nil
	}
	return &existing, nil
}

// Uncomplete implements domain.CompletionLedger.
func (r *Repository) Uncomplete(ctx context.Context, userID, microActionID string, day civil.Date, occurredAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := completionKey{microActionID: microActionID, day: day}
	existing, found := r.completions[key]
	if !found || existing.UserID != userID {
		return false, nil
	}
	delete(r.completions, key)
	return true, nil
}

// History implements domain.CompletionLedger.
func (r *Repository) History(ctx context.Context, userID, microActionID string) ([]civil.Date, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	days := make([]civil.Date, 0)
	for key, event := range r.completions {
		if key.microActionID == microActionID && event.UserID == userID {
			days = append(days, key.day)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

// CompletionCount returns the number of stored ledger rows for a micro-action.
func (r *Repository) CompletionCount(microActionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for key := range r.completions {
		if key.microActionID == microActionID {
			count++
		}
	}
	return count
}

func after(action domain.MicroAction, cursor domain.Cursor) bool {
	if action.CreatedAt.Equal(cursor.CreatedAt) {
		return action.ID > cursor.ID
	}
	return action.CreatedAt.After(cursor.CreatedAt)
}
