package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/janhstrom/mindreminder-sub000/internal/events"
)

// ErrMisrouted is returned when a record's event_type header does not route to the topic
// it is being written to.
var ErrMisrouted = errors.New("record does not route to topic")

// ProducerOption tunes the writers a KafkaProducer creates.
type ProducerOption func(*kafka.Writer)

// WithBatchTimeout overrides how long a writer waits to fill a batch.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(w *kafka.Writer) { w.BatchTimeout = d }
}

// KafkaProducer holds one writer per micro-action topic. Records are hash-balanced on
// their key, so every completion of a micro-action, and every definition change of a
// user's micro-action, lands on the same partition in order.
type KafkaProducer struct {
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates writers for every topic in the event routing table.
func NewKafkaProducer(brokers []string, opts ...ProducerOption) *KafkaProducer {
	writers := make(map[string]*kafka.Writer, len(events.Topics()))
	for _, topic := range events.Topics() {
		writer := &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			BatchTimeout: 50 * time.Millisecond,
		}
		for _, opt := range opts {
			opt(writer)
		}
		writers[topic] = writer
	}
	return &KafkaProducer{writers: writers}
}

// WriteMessages writes records to topic after checking each one is routed there and keyed.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	writer, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("%w: no micro-action events route to %q", ErrMisrouted, topic)
	}
	eventTypes := make([]string, len(msgs))
	for i, msg := range msgs {
		eventType, err := routedEventType(topic, msg)
		if err != nil {
			return err
		}
		eventTypes[i] = eventType
	}

	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	for _, eventType := range eventTypes {
		producedCounter.WithLabelValues(topic, eventType).Inc()
	}
	return nil
}

func routedEventType(topic string, msg kafka.Message) (string, error) {
	var eventType string
	for _, h := range msg.Headers {
		if h.Key == "event_type" {
			eventType = string(h.Value)
			break
		}
	}
	route, ok := events.RouteFor(eventType)
	if !ok || route.Topic != topic {
		return "", fmt.Errorf("%w: event_type=%q topic=%q", ErrMisrouted, eventType, topic)
	}
	if len(msg.Key) == 0 {
		return "", fmt.Errorf("%s record without partition key", eventType)
	}
	return eventType, nil
}

// Close releases all writers.
func (p *KafkaProducer) Close() error {
	var err error
	for _, writer := range p.writers {
		err = errors.Join(err, writer.Close())
	}
	return err
}
