// Package events defines the payloads published for micro-action changes.
package events

import (
	"sort"
	"time"
)

// Event types written to the outbox.
const (
	TypeMicroActionCreated     = "micro_action.created"
	TypeMicroActionUpdated     = "micro_action.updated"
	TypeMicroActionDeleted     = "micro_action.deleted"
	TypeMicroActionCompleted   = "micro_action.completed"
	TypeMicroActionUncompleted = "micro_action.uncompleted"
)

// Kafka topics.
const (
	TopicMicroActionEvents = "micro_action_events"
	TopicCompletions       = "micro_action_completions"
)

// Route describes where an event type is published.
type Route struct {
	Topic         string
	SchemaSubject string
	// PerUserKey partitions by user:micro-action instead of micro-action alone.
	PerUserKey bool
}

var routes = map[string]Route{
	TypeMicroActionCreated:     {Topic: TopicMicroActionEvents, SchemaSubject: TopicMicroActionEvents + "-value", PerUserKey: true},
	TypeMicroActionUpdated:     {Topic: TopicMicroActionEvents, SchemaSubject: TopicMicroActionEvents + "-value", PerUserKey: true},
	TypeMicroActionDeleted:     {Topic: TopicMicroActionEvents, SchemaSubject: TopicMicroActionEvents + "-value", PerUserKey: true},
	TypeMicroActionCompleted:   {Topic: TopicCompletions, SchemaSubject: TopicCompletions + "-value"},
	TypeMicroActionUncompleted: {Topic: TopicCompletions, SchemaSubject: TopicCompletions + "-value"},
}

// RouteFor returns the routing metadata of eventType.
func RouteFor(eventType string) (Route, bool) {
	r, ok := routes[eventType]
	return r, ok
}

// PartitionKey builds the Kafka key for an event about microActionID.
func (r Route) PartitionKey(userID, microActionID string) string {
	if r.PerUserKey {
		return userID + ":" + microActionID
	}
	return microActionID
}

// Reference is the subset every payload carries. Consumers decode it without knowing the event type.
type Reference struct {
	MicroActionID string `json:"micro_action_id"`
	UserID        string `json:"user_id"`
}

// MicroActionCreated is emitted when a micro-action is stored.
type MicroActionCreated struct {
	MicroActionID string    `json:"micro_action_id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	Frequency     string    `json:"frequency"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// MicroActionUpdated carries the editable fields after an update.
type MicroActionUpdated struct {
	MicroActionID string    `json:"micro_action_id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	Frequency     string    `json:"frequency"`
	IsActive      bool      `json:"is_active"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MicroActionDeleted is emitted once when a micro-action and its ledger are removed.
type MicroActionDeleted struct {
	MicroActionID string    `json:"micro_action_id"`
	UserID        string    `json:"user_id"`
	DeletedAt     time.Time `json:"deleted_at"`
}

// MicroActionCompleted is emitted for a newly recorded completion only, never for replays.
type MicroActionCompleted struct {
	CompletionID  string    `json:"completion_id"`
	MicroActionID string    `json:"micro_action_id"`
	UserID        string    `json:"user_id"`
	CompletedOn   string    `json:"completed_on"`
	CompletedAt   time.Time `json:"completed_at"`
}

// MicroActionUncompleted is emitted when a day's completion is removed.
type MicroActionUncompleted struct {
	MicroActionID string    `json:"micro_action_id"`
	UserID        string    `json:"user_id"`
	CompletedOn   string    `json:"completed_on"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Types lists every routed event type, sorted.
func Types() []string {
	out := make([]string, 0, len(routes))
	for eventType := range routes {
		out = append(out, eventType)
	}
	sort.Strings(out)
	return out
}

// Topics lists the distinct topics events are published to, sorted.
func Topics() []string {
	seen := make(map[string]struct{}, len(routes))
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		if _, ok := seen[r.Topic]; ok {
			continue
		}
		seen[r.Topic] = struct{}{}
		out = append(out, r.Topic)
	}
	sort.Strings(out)
	return out
}
