package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/janhstrom/mindreminder-sub000/internal/events"
)

func TestEncodeWireFormat(t *testing.T) {
	frame := encodeWireFormat(258, []byte(`{"a":1}`))
	require.Equal(t, byte(0), frame[0])
	require.Equal(t, uint32(258), binary.BigEndian.Uint32(frame[1:5]))
	require.Equal(t, `{"a":1}`, string(frame[5:]))
}

func TestDeliverSetsHeadersAndResolvesSchemas(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	d := NewDispatcher(nil, producer, registry, 0, 10)

	payload := json.RawMessage(`{"micro_action_id":"ma-1","user_id":"u1","completed_on":"2025-01-06"}`)
	messages := []Message{
		{EventID: 1, UserID: "u1", EventType: events.TypeMicroActionCompleted, Topic: events.TopicCompletions, SchemaSubject: events.TopicCompletions + "-value", PartitionKey: "ma-1", Payload: payload},
		{EventID: 2, UserID: "u1", EventType: events.TypeMicroActionUncompleted, Topic: events.TopicCompletions, SchemaSubject: events.TopicCompletions + "-value", PartitionKey: "ma-1", Payload: payload},
		{EventID: 3, UserID: "u1", EventType: events.TypeMicroActionCreated, Topic: events.TopicMicroActionEvents, SchemaSubject: events.TopicMicroActionEvents + "-value", PartitionKey: "u1:ma-1", Payload: json.RawMessage(`{"micro_action_id":"ma-1","user_id":"u1"}`)},
	}

	require.NoError(t, d.deliver(context.Background(), messages))

	require.Len(t, producer.writes, 2)
	require.Equal(t, events.TopicCompletions, producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 2)
	require.Equal(t, events.TopicMicroActionEvents, producer.writes[1].topic)
	require.Equal(t, []string{
		events.TypeMicroActionCompleted,
		events.TypeMicroActionUncompleted,
		events.TypeMicroActionCreated,
	}, registry.calls)

	first := producer.writes[0].messages[0]
	require.Equal(t, "ma-1", string(first.Key))
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(first.Value[1:5]))
	require.JSONEq(t, string(payload), string(first.Value[5:]))
	headers := map[string]string{}
	for _, h := range first.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, map[string]string{
		"event_type":     events.TypeMicroActionCompleted,
		"user_id":        "u1",
		"schema_subject": events.TopicCompletions + "-value",
	}, headers)
}

func TestDeliverRejectsUnknownEventType(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 1}
	d := NewDispatcher(nil, producer, registry, 0, 10)

	err := d.deliver(context.Background(), []Message{{EventType: "habit.archived", Topic: "habit_events"}})
	require.ErrorContains(t, err, "no schema metadata for event_type=habit.archived")
	require.Empty(t, producer.writes)
	require.Empty(t, registry.calls)
}

func TestSchemaRegistryRegistersOncePerSubject(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "JSON", body["schemaType"])
		require.Equal(t, completionEventsSchema, body["schema"])

		if !strings.HasSuffix(r.URL.Path, "/versions") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error_code":40403,"message":"Schema not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")
	for _, eventType := range []string{events.TypeMicroActionCompleted, events.TypeMicroActionUncompleted} {
		id, err := client.SchemaIDFor(context.Background(), eventType)
		require.NoError(t, err)
		require.Equal(t, 7, id)
	}
	require.Equal(t, []string{
		"POST /subjects/micro_action_completions-value",
		"POST /subjects/micro_action_completions-value/versions",
	}, paths)

	_, err := client.SchemaIDFor(context.Background(), "habit.archived")
	require.Error(t, err)
}

func TestSchemaRegistryReusesRegisteredSchema(t *testing.T) {
	var registered bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/versions") {
			registered = true
		}
		_, _ = w.Write([]byte(`{"subject":"micro_action_events-value","version":3,"id":11}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).SchemaIDFor(context.Background(), events.TypeMicroActionUpdated)
	require.NoError(t, err)
	require.Equal(t, 11, id)
	require.False(t, registered)
}

func TestProducerRejectsMisroutedRecords(t *testing.T) {
	p := NewKafkaProducer([]string{"127.0.0.1:1"})
	defer p.Close()

	completed := kafka.Message{
		Key:     []byte("ma-1"),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(events.TypeMicroActionCompleted)}},
	}

	err := p.WriteMessages(context.Background(), events.TopicMicroActionEvents, completed)
	require.ErrorIs(t, err, ErrMisrouted)

	err = p.WriteMessages(context.Background(), "habit_events", completed)
	require.ErrorIs(t, err, ErrMisrouted)

	unkeyed := completed
	unkeyed.Key = nil
	err = p.WriteMessages(context.Background(), events.TopicCompletions, unkeyed)
	require.ErrorContains(t, err, "without partition key")
}

func TestBackoffDelayIsCapped(t *testing.T) {
	m := NewDLQManager(nil, 3, 0, nil)
	require.Equal(t, m.baseDelay, m.backoffDelay(1))
	require.Equal(t, 4*m.baseDelay, m.backoffDelay(3))
	require.Equal(t, m.backoffDelay(60), m.backoffDelay(100))
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: copied})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []string
}

func (s *stubRegistry) SchemaIDFor(ctx context.Context, eventType string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, eventType)
	if s.err != nil {
		return 0, s.err
	}
	if s.id == 0 {
		s.id = 1
	}
	return s.id, nil
}
