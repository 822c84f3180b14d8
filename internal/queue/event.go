// Package queue defines message payloads exchanged over the message broker.
package queue

// Event types carried in ActivityEvent.Type.
const (
    EventRoutineCreated    = "routine.created"
    EventRoutineUpdated    = "routine.updated"
    EventRoutineDeleted    = "routine.deleted"
    EventCompletionToggled = "completion.toggled"
)

// ActivityQueueName is the durable queue activity events are routed to.
const ActivityQueueName = "routine.activity"

// ActivityEvent is published after a routine or one of its completions
// changed.  It contains enough information for downstream consumers to log,
// notify, or trigger analytics without querying the primary database.
type ActivityEvent struct {
    Type       string `json:"type"`
    UserID     uint64 `json:"user_id"`
    RoutineID  uint64 `json:"routine_id"`
    Title      string `json:"title,omitempty"`
    Day        string `json:"day,omitempty"`
    Completed  bool   `json:"completed"`
    OccurredAt string `json:"occurred_at"`
    LocalDay   string `json:"local_day"` // server-local calendar day of OccurredAt
}
