package turn

// EventType labels the notifications the coordinator publishes to its host.
type EventType string

const (
	// EventTypeStatus carries informational messages about coordinator state.
	EventTypeStatus EventType = "status"
	// EventTypeDelta carries one streamed content chunk already applied to
	// the active turn.
	EventTypeDelta EventType = "delta"
	// EventTypeTurnStarted signals a new turn at Generation.
	EventTypeTurnStarted EventType = "turn_started"
	// EventTypeTurnFinalized signals the active turn reached a terminal
	// status; Metadata carries the baked turn.
	EventTypeTurnFinalized EventType = "turn_finalized"
	// EventTypeToolUpdate signals a tool call changed state.
	EventTypeToolUpdate EventType = "tool_update"
	// EventTypeAgentUpdate signals a sub-agent changed state.
	EventTypeAgentUpdate EventType = "agent_update"
	// EventTypeTaskUpdate signals the task checklist snapshot was replaced.
	EventTypeTaskUpdate EventType = "task_update"
	// EventTypeMetaUpdate signals live response metadata was replaced.
	EventTypeMetaUpdate EventType = "meta_update"
	// EventTypeAskUser signals the backend is waiting on a user answer.
	EventTypeAskUser EventType = "ask_user"
	// EventTypeQueueUpdate signals the parked-message queue changed.
	EventTypeQueueUpdate EventType = "queue_update"
	// EventTypeError carries a host-visible failure.
	EventTypeError EventType = "error"
)

// StatusLevel indicates the severity associated with an event.
type StatusLevel string

const (
	StatusLevelInfo  StatusLevel = "info"
	StatusLevelWarn  StatusLevel = "warn"
	StatusLevelError StatusLevel = "error"
)

// Event is a notification published on the coordinator's Events channel.
// Hosts typically react by re-reading Snapshot; Message and Metadata exist so
// line-oriented hosts can print without a snapshot round trip.
type Event struct {
	Type       EventType
	Message    string
	Level      StatusLevel
	Generation int
	Metadata   map[string]any
}
