package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/janhstrom/mindreminder-sub000/internal/events"
)

// Every outbox and DLQ series is labelled by micro-action event type
// (micro_action.created ... micro_action.uncompleted).
var (
	claimedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mindreminder",
		Subsystem: "outbox",
		Name:      "events_claimed_total",
		Help:      "Number of outbox rows claimed for delivery.",
	})

	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindreminder",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Micro-action events published to Kafka.",
	}, []string{"event_type"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindreminder",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Micro-action events whose batch failed to publish.",
	}, []string{"event_type"})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindreminder",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Micro-action events moved to the dead-letter queue.",
	}, []string{"event_type"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mindreminder",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent fetching, delivering, and marking outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	producedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindreminder",
		Subsystem: "producer",
		Name:      "records_written_total",
		Help:      "Records acknowledged by Kafka, by topic and event type.",
	}, []string{"topic", "event_type"})

	dlqRequeuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindreminder",
		Subsystem: "dlq",
		Name:      "events_requeued_total",
		Help:      "DLQ entries reinserted into the outbox for another delivery attempt.",
	}, []string{"event_type"})

	dlqRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindreminder",
		Subsystem: "dlq",
		Name:      "retries_scheduled_total",
		Help:      "DLQ entries pushed back with exponential backoff after a failed requeue.",
	}, []string{"event_type"})

	dlqQuarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindreminder",
		Subsystem: "dlq",
		Name:      "events_quarantined_total",
		Help:      "DLQ entries quarantined after exhausting their retries.",
	}, []string{"event_type"})

	dlqBacklogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mindreminder",
		Subsystem: "dlq",
		Name:      "backlog_events",
		Help:      "Unquarantined DLQ entries waiting for replay.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(
		claimedCounter,
		deliveredCounter,
		failedCounter,
		dlqCounter,
		batchDuration,
		producedCounter,
		dlqRequeuedCounter,
		dlqRetryCounter,
		dlqQuarantinedCounter,
		dlqBacklogGauge,
	)
}

func recordDelivered(messages []Message) {
	for _, msg := range messages {
		deliveredCounter.WithLabelValues(msg.EventType).Inc()
	}
}

func recordFailed(messages []Message) {
	for _, msg := range messages {
		failedCounter.WithLabelValues(msg.EventType).Inc()
	}
}

func recordDLQRequeued(entry dlqEntry) {
	dlqRequeuedCounter.WithLabelValues(entry.EventType).Inc()
}

func recordDLQRetry(entry dlqEntry) {
	dlqRetryCounter.WithLabelValues(entry.EventType).Inc()
}

func recordDLQQuarantined(entry dlqEntry) {
	dlqQuarantinedCounter.WithLabelValues(entry.EventType).Inc()
}

// updateBacklogGauge refreshes the per-event-type backlog. Types with no rows are set to 0
// so a drained queue reads as empty instead of keeping its last value.
func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	rows, err := pool.Query(ctx, `SELECT event_type, COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL GROUP BY event_type`)
	if err != nil {
		return
	}
	defer rows.Close()

	counts := make(map[string]int, len(events.Types()))
	for _, eventType := range events.Types() {
		counts[eventType] = 0
	}
	for rows.Next() {
		var (
			eventType string
			count     int
		)
		if err := rows.Scan(&eventType, &count); err != nil {
			return
		}
		counts[eventType] = count
	}
	if rows.Err() != nil {
		return
	}
	for eventType, count := range counts {
		dlqBacklogGauge.WithLabelValues(eventType).Set(float64(count))
	}
}
