// Package postgres persists micro-actions, their completion ledger and outbox events.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/janhstrom/mindreminder-sub000/internal/domain"
	"github.com/janhstrom/mindreminder-sub000/internal/events"
)

const selectColumns = `micro_action_id::text, user_id, title, description, category, duration, frequency, time_of_day, habit_stack, is_active, current_streak, best_streak, total_completions, created_at, updated_at`

const microActionColumns = `micro_action_id, user_id, title, description, category, duration, frequency, time_of_day, habit_stack, is_active, current_streak, best_streak, total_completions, created_at, updated_at`

// Repository provides Postgres-backed persistence for micro-actions, completions and
// outbox events. It implements domain.MicroActionRepository and domain.CompletionLedger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// inTx runs fn in a transaction scoped to userID for row level security.
func (r *Repository) inTx(ctx context.Context, op, userID string, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.user_id', $1, true)", userID); err != nil {
		return classify(op, err)
	}
	if err := fn(tx); err != nil {
		return classify(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(op, err)
	}
	return nil
}

// Create stores the micro-action and its created event inside a single transaction.
func (r *Repository) Create(ctx context.Context, action domain.MicroAction) error {
	return r.inTx(ctx, "create micro-action", action.UserID, func(tx pgx.Tx) error {
		const stmt = `INSERT INTO micro_actions (` + microActionColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

		if _, err := tx.Exec(ctx, stmt,
			action.ID,
			action.UserID,
			action.Title,
			action.Description,
			string(action.Category),
			action.Duration,
			string(action.Frequency),
			action.TimeOfDay,
			action.HabitStack,
			action.IsActive,
			action.CurrentStreak,
			action.BestStreak,
			action.TotalCompletions,
			action.CreatedAt,
			action.UpdatedAt,
		); err != nil {
			return err
		}

		return insertOutbox(ctx, tx, outboxEntry{
			UserID:        action.UserID,
			MicroActionID: action.ID,
			EventType:     events.TypeMicroActionCreated,
			OccurredAt:    action.CreatedAt,
			Payload: events.MicroActionCreated{
				MicroActionID: action.ID,
				UserID:        action.UserID,
				Title:         action.Title,
				Category:      string(action.Category),
				Frequency:     string(action.Frequency),
				IsActive:      action.IsActive,
				CreatedAt:     action.CreatedAt,
			},
		})
	})
}

// Get retrieves a micro-action owned by userID. It returns (nil, nil) when none matches.
func (r *Repository) Get(ctx context.Context, userID, id string) (*domain.MicroAction, error) {
	var found *domain.MicroAction
	err := r.inTx(ctx, "get micro-action", userID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+selectColumns+`
        FROM micro_actions WHERE user_id=$1 AND micro_action_id::text=$2`, userID, id)
		action, err := scanMicroAction(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		found = &action
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// ListByUser returns micro-actions for a user ordered by creation time.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.MicroAction, *domain.Cursor, error) {
	args := []any{userID, limit}
	query := `SELECT ` + selectColumns + `
        FROM micro_actions WHERE user_id=$1`

	if cursor != nil {
		query += ` AND (created_at, micro_action_id::text) > ($3, $4)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	query += ` ORDER BY created_at, micro_action_id::text LIMIT $2`

	results := make([]domain.MicroAction, 0, limit)
	err := r.inTx(ctx, "list micro-actions", userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			action, err := scanMicroAction(rows)
			if err != nil {
				return err
			}
			results = append(results, action)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, nextCursor, nil
}

// Update overwrites the editable fields of a micro-action. Streak fields and
// created_at are left to the store, except that a frequency change resets best_streak.
func (r *Repository) Update(ctx context.Context, action domain.MicroAction) error {
	return r.inTx(ctx, "update micro-action", action.UserID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE micro_actions
               SET title=$3, description=$4, category=$5, duration=$6, frequency=$7,
                   time_of_day=$8, habit_stack=$9, is_active=$10, updated_at=$11,
                   best_streak=CASE WHEN frequency <> $7 THEN 0 ELSE best_streak END
             WHERE user_id=$1 AND micro_action_id::text=$2`,
			action.UserID,
			action.ID,
			action.Title,
			action.Description,
			string(action.Category),
			action.Duration,
			string(action.Frequency),
			action.TimeOfDay,
			action.HabitStack,
			action.IsActive,
			action.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}

		return insertOutbox(ctx, tx, outboxEntry{
			UserID:        action.UserID,
			MicroActionID: action.ID,
			EventType:     events.TypeMicroActionUpdated,
			OccurredAt:    action.UpdatedAt,
			Payload: events.MicroActionUpdated{
				MicroActionID: action.ID,
				UserID:        action.UserID,
				Title:         action.Title,
				Category:      string(action.Category),
				Frequency:     string(action.Frequency),
				IsActive:      action.IsActive,
				UpdatedAt:     action.UpdatedAt,
			},
		})
	})
}

// Delete removes a micro-action; completions go with it through the foreign key cascade.
func (r *Repository) Delete(ctx context.Context, userID, id string, deletedAt time.Time) (bool, error) {
	removed := false
	err := r.inTx(ctx, "delete micro-action", userID, func(tx pgx.Tx) error {
		var deletedID string
		err := tx.QueryRow(ctx,
			`DELETE FROM micro_actions WHERE user_id=$1 AND micro_action_id::text=$2 RETURNING micro_action_id::text`,
			userID, id,
		).Scan(&deletedID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		removed = true

		return insertOutbox(ctx, tx, outboxEntry{
			UserID:        userID,
			MicroActionID: deletedID,
			EventType:     events.TypeMicroActionDeleted,
			OccurredAt:    deletedAt,
			Payload: events.MicroActionDeleted{
				MicroActionID: deletedID,
				UserID:        userID,
				DeletedAt:     deletedAt,
			},
		})
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// SaveStreakSnapshot stores the derived streak fields. best_streak only ever rises.
func (r *Repository) SaveStreakSnapshot(ctx context.Context, userID, id string, snapshot domain.StreakSnapshot) error {
	return r.inTx(ctx, "save streak snapshot", userID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE micro_actions
               SET current_streak=$3, best_streak=GREATEST(best_streak, $4), total_completions=$5
             WHERE user_id=$1 AND micro_action_id::text=$2`,
			userID, id, snapshot.Current, snapshot.Best, snapshot.Total,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func scanMicroAction(row pgx.Row) (domain.MicroAction, error) {
	var (
		action    domain.MicroAction
		category  string
		frequency string
	)
	err := row.Scan(
		&action.ID,
		&action.UserID,
		&action.Title,
		&action.Description,
		&category,
		&action.Duration,
		&frequency,
		&action.TimeOfDay,
		&action.HabitStack,
		&action.IsActive,
		&action.CurrentStreak,
		&action.BestStreak,
		&action.TotalCompletions,
		&action.CreatedAt,
		&action.UpdatedAt,
	)
	if err != nil {
		return domain.MicroAction{}, err
	}
	action.Category = domain.Category(category)
	action.Frequency = domain.Frequency(frequency)
	return action, nil
}
