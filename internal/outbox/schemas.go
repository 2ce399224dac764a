package outbox

import "github.com/janhstrom/mindreminder-sub000/internal/events"

// micro_action_events carries created, updated and deleted payloads.
const microActionEventsSchema = `{
  "type": "object",
  "title": "MicroActionEvent",
  "properties": {
    "micro_action_id": {"type": "string"},
    "user_id": {"type": "string"},
    "title": {"type": "string"},
    "category": {"type": "string", "enum": ["health", "learning", "mindfulness", "productivity", "relationships"]},
    "frequency": {"type": "string", "enum": ["daily", "weekdays", "weekends", "3x-week"]},
    "is_active": {"type": "boolean"},
    "created_at": {"type": "string", "format": "date-time"},
    "updated_at": {"type": "string", "format": "date-time"},
    "deleted_at": {"type": "string", "format": "date-time"}
  },
  "required": ["micro_action_id", "user_id"],
  "additionalProperties": false
}`

const completionEventsSchema = `{
  "type": "object",
  "title": "MicroActionCompletionEvent",
  "properties": {
    "completion_id": {"type": "string"},
    "micro_action_id": {"type": "string"},
    "user_id": {"type": "string"},
    "completed_on": {"type": "string", "format": "date"},
    "completed_at": {"type": "string", "format": "date-time"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["micro_action_id", "user_id", "completed_on"],
  "additionalProperties": false
}`

var schemaCatalog = map[string]string{
	events.TypeMicroActionCreated:     microActionEventsSchema,
	events.TypeMicroActionUpdated:     microActionEventsSchema,
	events.TypeMicroActionDeleted:     microActionEventsSchema,
	events.TypeMicroActionCompleted:   completionEventsSchema,
	events.TypeMicroActionUncompleted: completionEventsSchema,
}

func schemaFor(eventType string) (string, bool) {
	schema, ok := schemaCatalog[eventType]
	return schema, ok
}
