package turn

import "time"

// TurnStatus describes where the active turn sits in its lifecycle.
type TurnStatus string

const (
	StatusIdle        TurnStatus = "idle"
	StatusStreaming   TurnStatus = "streaming"
	StatusInterrupted TurnStatus = "interrupted"
	StatusCompleted   TurnStatus = "completed"
)

// ToolStatus tracks the lifecycle of a tool invocation inside a turn.
type ToolStatus string

const (
	ToolPending     ToolStatus = "pending"
	ToolRunning     ToolStatus = "running"
	ToolCompleted   ToolStatus = "completed"
	ToolError       ToolStatus = "error"
	ToolInterrupted ToolStatus = "interrupted"
)

// AgentStatus tracks the lifecycle of a sub-agent spawned during a turn.
type AgentStatus string

const (
	AgentPending     AgentStatus = "pending"
	AgentRunning     AgentStatus = "running"
	AgentBackground  AgentStatus = "background"
	AgentCompleted   AgentStatus = "completed"
	AgentError       AgentStatus = "error"
	AgentInterrupted AgentStatus = "interrupted"
)

// Meta carries live response metadata delivered out of band by the backend.
type Meta struct {
	Model            string
	OutputTokens     int
	ThinkingDuration time.Duration
	ThinkingText     string
}

// ToolCall records a single tool invocation. ContentOffset is the length of
// the turn content at the moment the call was first observed, which is what
// lets the segmenter place the call chronologically among text.
type ToolCall struct {
	ID            string
	Name          string
	Input         string
	Output        string
	Error         string
	Status        ToolStatus
	ContentOffset int
}

// SubAgent records a sub-task spawned during a turn. A background agent may
// outlive the turn that spawned it and only leaves its active state through
// an explicit completion event.
type SubAgent struct {
	ID            string
	Name          string
	Task          string
	Status        AgentStatus
	Background    bool
	ContentOffset int
	CurrentTool   string
	Result        string
	StartedAt     time.Time
	Duration      time.Duration
}

// Task is one entry of the checklist snapshot the backend may push while a
// turn streams. The snapshot is rendered once, anchored at the content offset
// where it first appeared.
type Task struct {
	ID     string
	Title  string
	Status string
}

// QueuedMessage is a user submission parked behind the active turn.
type QueuedMessage struct {
	ID         string
	Content    string
	EnqueuedAt time.Time
}

// Turn is one request/response cycle. Content is append-only while the turn
// streams; ToolCalls, Agents and Tasks are baked in on finalize.
type Turn struct {
	ID         string
	Generation int
	Status     TurnStatus
	Prompt     string
	Content    string
	Meta       Meta
	StartedAt  time.Time
	Duration   time.Duration

	ToolCalls    []ToolCall
	Agents       []SubAgent
	AgentsOffset int
	Tasks        []Task
	TasksOffset  int
}

// Snapshot is the read-only view of coordinator state handed to presentation
// layers. Slices are copies; mutating them does not affect the coordinator.
type Snapshot struct {
	Status       TurnStatus
	Generation   int
	TurnID       string
	Prompt       string
	Content      string
	Meta         Meta
	ToolCalls    []ToolCall
	Agents       []SubAgent
	AgentsOffset int
	Tasks        []Task
	TasksOffset  int
	Queue        []QueuedMessage
	AskPrompt    string
	StartedAt    time.Time
}
