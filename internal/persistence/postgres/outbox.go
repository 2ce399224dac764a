package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/janhstrom/mindreminder-sub000/internal/events"
)

type outboxEntry struct {
	UserID        string
	MicroActionID string
	EventType     string
	OccurredAt    time.Time
	// DedupeSuffix distinguishes repeated events of one type, e.g. the completion day.
	DedupeSuffix string
	Payload      any
}

func insertOutbox(ctx context.Context, tx pgx.Tx, entry outboxEntry) error {
	body, err := json.Marshal(entry.Payload)
	if err != nil {
		return err
	}

	route, ok := events.RouteFor(entry.EventType)
	if !ok {
		return fmt.Errorf("unknown event type: %s", entry.EventType)
	}

	suffix := entry.DedupeSuffix
	if suffix == "" {
		suffix = strconv.FormatInt(entry.OccurredAt.UnixNano(), 10)
	} else {
		suffix += ":" + strconv.FormatInt(entry.OccurredAt.UnixNano(), 10)
	}
	dedupeKey := fmt.Sprintf("%s:%s:%s", entry.MicroActionID, entry.EventType, suffix)

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		entry.UserID,
		"micro_action",
		entry.MicroActionID,
		entry.EventType,
		route.Topic,
		route.SchemaSubject,
		route.PartitionKey(entry.UserID, entry.MicroActionID),
		body,
		dedupeKey,
	)
	return err
}
