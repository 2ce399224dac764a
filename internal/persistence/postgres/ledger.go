package postgres

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"

	"github.com/janhstrom/mindreminder-sub000/internal/domain"
	"github.com/janhstrom/mindreminder-sub000/internal/events"
	"github.com/janhstrom/mindreminder-sub000/internal/observability"
)

// Complete records a completion for event.Day. Concurrent callers for the same
// micro-action and day serialize on an advisory lock; the unique constraint on
// (micro_action_id, completed_on) backs it up.
func (r *Repository) Complete(ctx context.Context, event domain.CompletionEvent) (domain.CompletionEvent, domain.InsertOutcome, error) {
	stored := event
	outcome := domain.InsertCreated

	err := r.inTx(ctx, "complete micro-action", event.UserID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, event.MicroActionID+"|"+event.Day.String()); err != nil {
			return err
		}

		var owned bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM micro_actions WHERE user_id=$1 AND micro_action_id::text=$2)`,
			event.UserID, event.MicroActionID,
		).Scan(&owned); err != nil {
			return err
		}
		if !owned {
			return domain.ErrNotFound
		}

		var insertedID string
		err := tx.QueryRow(ctx,
			`INSERT INTO micro_action_completions (completion_id, micro_action_id, user_id, completed_on, completed_at)
             VALUES ($1,$2,$3,$4::date,$5)
             ON CONFLICT (micro_action_id, completed_on) DO NOTHING
             RETURNING completion_id::text`,
			event.ID, event.MicroActionID, event.UserID, event.Day.String(), event.CompletedAt,
		).Scan(&insertedID)
		if errors.Is(err, pgx.ErrNoRows) {
			outcome = domain.InsertExisting
			existing, findErr := findCompletion(ctx, tx, event.UserID, event.MicroActionID, event.Day)
			if findErr != nil {
				return findErr
			}
			stored = existing
			return nil
		}
		if err != nil {
			return err
		}

		return insertOutbox(ctx, tx, outboxEntry{
			UserID:        event.UserID,
			MicroActionID: event.MicroActionID,
			EventType:     events.TypeMicroActionCompleted,
			OccurredAt:    event.CompletedAt,
			DedupeSuffix:  event.Day.String(),
			Payload: events.MicroActionCompleted{
				CompletionID:  event.ID,
				MicroActionID: event.MicroActionID,
				UserID:        event.UserID,
				CompletedOn:   event.Day.String(),
				CompletedAt:   event.CompletedAt,
			},
		})
	})
	if err != nil {
		return domain.CompletionEvent{}, domain.InsertCreated, err
	}
	if outcome == domain.InsertCreated {
		observability.RecordLedgerWrite(event.CompletedAt)
	}
	return stored, outcome, nil
}

// Find returns the completion stored for day, or nil.
func (r *Repository) Find(ctx context.Context, userID, microActionID string, day civil.Date) (*domain.CompletionEvent, error) {
	var found *domain.CompletionEvent
	err := r.inTx(ctx, "find completion", userID, func(tx pgx.Tx) error {
		event, err := findCompletion(ctx, tx, userID, microActionID, day)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = &event
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Uncomplete deletes the completion for day, reporting whether a row existed.
func (r *Repository) Uncomplete(ctx context.Context, userID, microActionID string, day civil.Date, occurredAt time.Time) (bool, error) {
	removed := false
	err := r.inTx(ctx, "uncomplete micro-action", userID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, microActionID+"|"+day.String()); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`DELETE FROM micro_action_completions WHERE user_id=$1 AND micro_action_id::text=$2 AND completed_on=$3::date`,
			userID, microActionID, day.String(),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		removed = true

		return insertOutbox(ctx, tx, outboxEntry{
			UserID:        userID,
			MicroActionID: microActionID,
			EventType:     events.TypeMicroActionUncompleted,
			OccurredAt:    occurredAt,
			DedupeSuffix:  day.String(),
			Payload: events.MicroActionUncompleted{
				MicroActionID: microActionID,
				UserID:        userID,
				CompletedOn:   day.String(),
				OccurredAt:    occurredAt,
			},
		})
	})
	if err != nil {
		return false, err
	}
	if removed {
		observability.RecordLedgerWrite(occurredAt)
	}
	return removed, nil
}

// History returns the completion days of a micro-action in ascending order.
func (r *Repository) History(ctx context.Context, userID, microActionID string) ([]civil.Date, error) {
	days := make([]civil.Date, 0)
	err := r.inTx(ctx, "completion history", userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT completed_on FROM micro_action_completions
              WHERE user_id=$1 AND micro_action_id::text=$2
              ORDER BY completed_on`,
			userID, microActionID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var day time.Time
			if err := rows.Scan(&day); err != nil {
				return err
			}
			days = append(days, civil.DateOf(day))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return days, nil
}

func findCompletion(ctx context.Context, tx pgx.Tx, userID, microActionID string, day civil.Date) (domain.CompletionEvent, error) {
	var (
		event       domain.CompletionEvent
		completedOn time.Time
	)
	err := tx.QueryRow(ctx,
		`SELECT completion_id::text, micro_action_id::text, user_id, completed_on, completed_at
           FROM micro_action_completions
          WHERE user_id=$1 AND micro_action_id::text=$2 AND completed_on=$3::date`,
		userID, microActionID, day.String(),
	).Scan(&event.ID, &event.MicroActionID, &event.UserID, &completedOn, &event.CompletedAt)
	if err != nil {
		return domain.CompletionEvent{}, err
	}
	event.Day = civil.DateOf(completedOn)
	return event, nil
}
