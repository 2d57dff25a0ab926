package turn

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Coordinator owns the active conversational turn and everything that hangs
// off it: streamed content, tool calls, sub-agents, the parked-message queue
// and the deferred-completion machinery. Every entry point serializes through
// one mutex, which is what stands in for the single-threaded event loop of a
// classic TUI host; backend callbacks are the only concurrency sources and
// they all pass through the generation guard.
type Coordinator struct {
	opts Options

	mu         sync.Mutex
	generation int
	active     *Turn
	tools      *toolCallTracker
	agents     *subAgentRegistry
	queue      *messageQueue
	history    transcript

	tasks          []Task
	tasksOffset    int
	tasksOffsetSet bool

	askPrompt string

	// pendingSubmit is the deferred interrupt payload: a submission that
	// arrived while non-background agents were still active. It fires the
	// moment the last blocking agent leaves its active state.
	pendingSubmit *pendingSubmission
	// completionDeferred records a natural stream completion held back by
	// running tools or blocking agents.
	completionDeferred bool

	cancelStream context.CancelFunc

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
}

type pendingSubmission struct {
	content string
}

// New builds a Coordinator from the provided options.
func New(opts Options) (*Coordinator, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Coordinator{
		opts:   opts,
		tools:  newToolCallTracker(),
		agents: newSubAgentRegistry(),
		queue:  newMessageQueue(),
		events: make(chan Event, opts.EventBuffer),
		closed: make(chan struct{}),
	}, nil
}

// Events exposes the notification channel hosts drain to drive re-renders.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// Close releases the notification channel. Call once the host is done.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		close(c.events)
	})
}

// Submit routes a user submission into the turn state machine. With no turn
// active it starts one; with blocking sub-agents it parks the submission as
// the pending interrupt payload; otherwise it pre-empts the in-flight turn
// (round-robin injection). Whitespace-only content is ignored.
func (c *Coordinator) Submit(content string) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		c.opts.Logger.Warn(context.Background(), "Ignoring empty submission")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.askPrompt = ""

	if c.active == nil {
		c.startTurnLocked(trimmed, false)
		return
	}

	if c.agents.anyBlocking() {
		c.pendingSubmit = &pendingSubmission{content: trimmed}
		c.opts.Logger.Info(context.Background(), "Submission deferred behind active sub-agents",
			Field("generation", c.generation),
		)
		c.emit(Event{
			Type:       EventTypeStatus,
			Message:    "Submission parked until sub-agents finish.",
			Level:      StatusLevelInfo,
			Generation: c.generation,
		})
		return
	}

	c.preemptLocked(trimmed)
}

// Enqueue parks a submission behind the active turn without interrupting it.
// With no turn active the message is dispatched immediately.
func (c *Coordinator) Enqueue(content string) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		c.startTurnLocked(trimmed, false)
		return
	}

	c.queue.enqueue(trimmed)
	c.emit(Event{
		Type:       EventTypeQueueUpdate,
		Message:    "Message queued.",
		Level:      StatusLevelInfo,
		Generation: c.generation,
		Metadata:   map[string]any{"depth": c.queue.len()},
	})
}

// UpdateQueued edits a parked message in place, addressed by queue index.
func (c *Coordinator) UpdateQueued(index int, content string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.queue.update(index, content)
	if ok {
		c.emit(Event{Type: EventTypeQueueUpdate, Level: StatusLevelInfo, Generation: c.generation})
	}
	return ok
}

// ClearQueue drops every parked message.
func (c *Coordinator) ClearQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.clear()
	c.emit(Event{Type: EventTypeQueueUpdate, Level: StatusLevelInfo, Generation: c.generation})
}

// Interrupt aborts the in-flight turn. Idempotent no-op when idle. The
// generation counter is deliberately left alone so late callbacks from the
// cancelled stream are still recognizable as belonging to the dead turn.
func (c *Coordinator) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return
	}

	c.opts.Logger.Info(context.Background(), "Interrupting active turn",
		Field("generation", c.generation),
	)
	c.pendingSubmit = nil
	c.completionDeferred = false
	c.cancelStreamLocked()
	c.finalizeLocked(StatusInterrupted)
}

// HandleChunk appends streamed text to the active turn iff the callback's
// generation is current and the turn is still streaming; anything else is
// dropped silently. This guard, not cancellation, is what keeps a pre-empted
// stream from corrupting its successor.
func (c *Coordinator) HandleChunk(gen int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) || c.active.Status != StatusStreaming {
		c.opts.Metrics.RecordStaleDrop("chunk")
		return
	}
	c.active.Content += text
	c.emit(Event{Type: EventTypeDelta, Message: text, Level: StatusLevelInfo, Generation: gen})
}

// HandleMeta replaces the live response metadata under the same guard.
func (c *Coordinator) HandleMeta(gen int, meta Meta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) || c.active.Status != StatusStreaming {
		c.opts.Metrics.RecordStaleDrop("meta")
		return
	}
	c.active.Meta = meta
	c.emit(Event{Type: EventTypeMetaUpdate, Level: StatusLevelInfo, Generation: gen})
}

// HandleToolStart records a tool invocation at the current content offset.
func (c *Coordinator) HandleToolStart(gen int, id, name, input string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) {
		c.opts.Metrics.RecordStaleDrop("tool")
		return
	}
	c.tools.start(id, name, input, len(c.active.Content))
	c.emit(Event{
		Type:       EventTypeToolUpdate,
		Message:    name,
		Level:      StatusLevelInfo,
		Generation: gen,
		Metadata:   map[string]any{"tool_id": id, "status": ToolRunning},
	})
}

// HandleToolComplete transitions a tool call to its terminal status and
// re-checks the deferred-completion predicates. Completing an ID that was
// never started is logged and ignored.
func (c *Coordinator) HandleToolComplete(gen int, id, output string, ok bool, errMsg, input string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) {
		c.opts.Metrics.RecordStaleDrop("tool")
		return
	}
	if !c.tools.complete(id, output, ok, errMsg, input) {
		c.opts.Logger.Warn(context.Background(), "Completion for unknown tool call",
			Field("tool_id", id),
		)
		return
	}
	status := ToolCompleted
	if !ok {
		status = ToolError
	}
	c.opts.Metrics.RecordToolCall(status)
	c.emit(Event{
		Type:       EventTypeToolUpdate,
		Level:      StatusLevelInfo,
		Generation: gen,
		Metadata:   map[string]any{"tool_id": id, "status": status},
	})
	c.recheckLocked()
}

// HandleAgentSpawn registers a sub-agent. The shared agents-tree offset is
// captured on the first spawn of the turn.
func (c *Coordinator) HandleAgentSpawn(gen int, id, name, task string, background bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) {
		c.opts.Metrics.RecordStaleDrop("agent")
		return
	}
	c.agents.spawn(id, name, task, background, len(c.active.Content), c.opts.Clock())
	c.emit(Event{
		Type:       EventTypeAgentUpdate,
		Message:    name,
		Level:      StatusLevelInfo,
		Generation: gen,
		Metadata:   map[string]any{"agent_id": id, "background": background},
	})
}

// HandleAgentProgress updates a sub-agent's live-status text.
func (c *Coordinator) HandleAgentProgress(gen int, id, currentTool string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) {
		c.opts.Metrics.RecordStaleDrop("agent")
		return
	}
	if c.agents.progress(id, currentTool) {
		c.emit(Event{
			Type:       EventTypeAgentUpdate,
			Level:      StatusLevelInfo,
			Generation: gen,
			Metadata:   map[string]any{"agent_id": id},
		})
	}
}

// HandleAgentComplete finishes a sub-agent. This is the only path out of the
// background status, so completions for a background agent are honored even
// after its owning turn finalized: the baked transcript entry is updated.
func (c *Coordinator) HandleAgentComplete(gen int, id string, ok bool, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Clock()

	if c.currentLocked(gen) {
		if c.agents.complete(id, ok, result, now) {
			status := AgentCompleted
			if !ok {
				status = AgentError
			}
			c.opts.Metrics.RecordAgentFinished(status, false)
			c.emit(Event{
				Type:       EventTypeAgentUpdate,
				Level:      StatusLevelInfo,
				Generation: gen,
				Metadata:   map[string]any{"agent_id": id, "status": status},
			})
			c.recheckLocked()
			return
		}
		c.opts.Logger.Warn(context.Background(), "Completion for unknown sub-agent",
			Field("agent_id", id),
		)
		return
	}

	if agent := c.history.findAgent(gen, id); agent != nil && agent.Status == AgentBackground {
		if ok {
			agent.Status = AgentCompleted
		} else {
			agent.Status = AgentError
		}
		agent.Result = result
		agent.CurrentTool = ""
		agent.Duration = now.Sub(agent.StartedAt)
		c.opts.Metrics.RecordAgentFinished(agent.Status, true)
		c.emit(Event{
			Type:       EventTypeAgentUpdate,
			Level:      StatusLevelInfo,
			Generation: gen,
			Metadata:   map[string]any{"agent_id": id, "status": agent.Status, "background": true},
		})
		return
	}

	c.opts.Metrics.RecordStaleDrop("agent")
}

// HandleTasks replaces the task checklist snapshot; its content offset is
// captured the first time tasks appear within the turn.
func (c *Coordinator) HandleTasks(gen int, tasks []Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) {
		c.opts.Metrics.RecordStaleDrop("tasks")
		return
	}
	if !c.tasksOffsetSet {
		c.tasksOffset = len(c.active.Content)
		c.tasksOffsetSet = true
	}
	c.tasks = append([]Task(nil), tasks...)
	c.emit(Event{Type: EventTypeTaskUpdate, Level: StatusLevelInfo, Generation: gen})
}

// HandleAskUser records a prompt the backend is waiting on. Cleared by
// interrupt or by the next submission.
func (c *Coordinator) HandleAskUser(gen int, prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) {
		c.opts.Metrics.RecordStaleDrop("ask")
		return
	}
	c.askPrompt = prompt
	c.emit(Event{Type: EventTypeAskUser, Message: prompt, Level: StatusLevelInfo, Generation: gen})
}

// HandleComplete reacts to the stream ending naturally. When tools are still
// running or non-background agents still active, the completion is stored and
// replayed the instant both predicates clear; otherwise the turn finalizes
// and the next parked action is dispatched.
func (c *Coordinator) HandleComplete(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) {
		c.opts.Metrics.RecordStaleDrop("complete")
		return
	}

	if c.tools.anyRunning() || c.agents.anyBlocking() {
		c.completionDeferred = true
		c.opts.Metrics.RecordDeferredCompletion()
		c.opts.Logger.Info(context.Background(), "Completion deferred behind tools or sub-agents",
			Field("generation", gen),
		)
		c.emit(Event{
			Type:       EventTypeStatus,
			Message:    "Stream finished; waiting for tools and sub-agents.",
			Level:      StatusLevelInfo,
			Generation: gen,
		})
		return
	}

	c.finalizeLocked(StatusCompleted)
	c.dispatchNextLocked()
}

// Snapshot returns a read-only copy of the observable coordinator state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Status:       StatusIdle,
		Generation:   c.generation,
		ToolCalls:    c.tools.snapshot(),
		Agents:       c.agents.snapshot(),
		AgentsOffset: c.agents.agentsOffset(),
		Tasks:        append([]Task(nil), c.tasks...),
		TasksOffset:  c.tasksOffset,
		Queue:        c.queue.snapshot(),
		AskPrompt:    c.askPrompt,
	}
	if c.active != nil {
		snap.Status = c.active.Status
		snap.TurnID = c.active.ID
		snap.Prompt = c.active.Prompt
		snap.Content = c.active.Content
		snap.Meta = c.active.Meta
		snap.StartedAt = c.active.StartedAt
	}
	return snap
}

// Segments derives the renderable segment sequence for the active turn.
func (c *Coordinator) Segments() []Segment {
	snap := c.Snapshot()
	return SegmentContent(snap.Content, snap.ToolCalls, snap.Agents, snap.AgentsOffset, snap.Tasks, snap.TasksOffset)
}

// History returns a copy of the finalized turns of this session.
func (c *Coordinator) History() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.snapshot()
}

// Generation returns the current generation counter.
func (c *Coordinator) Generation() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Coordinator) currentLocked(gen int) bool {
	return c.active != nil && gen == c.generation
}

// startTurnLocked begins a new turn at the next generation and launches the
// backend stream with callbacks bound to that generation. injected marks
// submissions replayed from the deferred-interrupt path so hosts do not echo
// them as fresh user messages.
func (c *Coordinator) startTurnLocked(prompt string, injected bool) {
	c.generation++
	gen := c.generation

	c.tools.reset()
	c.agents.reset()
	c.tasks = nil
	c.tasksOffset = 0
	c.tasksOffsetSet = false
	c.completionDeferred = false
	c.askPrompt = ""

	c.active = &Turn{
		ID:         uuid.NewString(),
		Generation: gen,
		Status:     StatusStreaming,
		Prompt:     prompt,
		StartedAt:  c.opts.Clock(),
	}
	c.opts.Metrics.RecordTurnStarted(gen)
	c.opts.Logger.Info(context.Background(), "Turn started",
		Field("generation", gen),
		Field("turn_id", c.active.ID),
	)
	c.emit(Event{
		Type:       EventTypeTurnStarted,
		Message:    prompt,
		Level:      StatusLevelInfo,
		Generation: gen,
		Metadata:   map[string]any{"turn_id": c.active.ID, "injected": injected},
	})

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelStream = cancel
	go c.opts.Backend.Stream(ctx, prompt, streamBinding{c: c, gen: gen})
}

// preemptLocked is round-robin injection: the in-flight turn is finalized as
// interrupted in place and the new submission starts immediately.
func (c *Coordinator) preemptLocked(content string) {
	c.opts.Logger.Info(context.Background(), "Pre-empting active turn",
		Field("generation", c.generation),
	)
	c.cancelStreamLocked()
	c.finalizeLocked(StatusInterrupted)
	c.startTurnLocked(content, false)
}

func (c *Coordinator) cancelStreamLocked() {
	if c.cancelStream != nil {
		c.cancelStream()
		c.cancelStream = nil
	}
	c.opts.Backend.Cancel()
}

// finalizeLocked moves the active turn to its terminal status, applies the
// matching transforms to tools and agents, bakes the snapshots into the turn
// and appends it to the transcript. Background agents are left untouched
// either way.
func (c *Coordinator) finalizeLocked(status TurnStatus) {
	now := c.opts.Clock()
	t := c.active
	t.Status = status
	t.Duration = now.Sub(t.StartedAt)

	if status == StatusInterrupted {
		c.tools.interruptRunning()
		c.agents.interruptActive(now)
	} else {
		c.agents.finalizeActive(now)
	}

	t.ToolCalls = c.tools.snapshot()
	t.Agents = c.agents.snapshot()
	t.AgentsOffset = c.agents.agentsOffset()
	t.Tasks = append([]Task(nil), c.tasks...)
	t.TasksOffset = c.tasksOffset
	c.history.append(*t)

	c.active = nil
	c.completionDeferred = false
	c.askPrompt = ""
	c.opts.Metrics.RecordTurnFinalized(status, t.Duration)
	c.opts.Logger.Info(context.Background(), "Turn finalized",
		Field("generation", t.Generation),
		Field("status", status),
		Field("duration_ms", t.Duration.Milliseconds()),
	)
	c.emit(Event{
		Type:       EventTypeTurnFinalized,
		Message:    t.Content,
		Level:      StatusLevelInfo,
		Generation: t.Generation,
		Metadata:   map[string]any{"turn": *t, "status": status},
	})
}

// recheckLocked re-evaluates the deferred machinery after a tool call or
// sub-agent left its active state. The pending interrupt payload outranks a
// stored natural completion: when it fires, the completion is discarded.
func (c *Coordinator) recheckLocked() {
	if c.active == nil {
		return
	}

	if c.pendingSubmit != nil && !c.agents.anyBlocking() {
		pending := c.pendingSubmit
		c.pendingSubmit = nil
		c.completionDeferred = false
		c.cancelStreamLocked()
		c.finalizeLocked(StatusInterrupted)
		c.startTurnLocked(pending.content, true)
		return
	}

	if c.completionDeferred && !c.tools.anyRunning() && !c.agents.anyBlocking() {
		c.finalizeLocked(StatusCompleted)
		c.dispatchNextLocked()
	}
}

// dispatchNextLocked starts whatever should follow a naturally finalized
// turn: the pending interrupt payload if one was captured during tool
// execution, else the head of the message queue.
func (c *Coordinator) dispatchNextLocked() {
	if pending := c.pendingSubmit; pending != nil {
		c.pendingSubmit = nil
		c.startTurnLocked(pending.content, true)
		return
	}
	if msg, ok := c.queue.dequeue(); ok {
		c.emit(Event{
			Type:       EventTypeQueueUpdate,
			Level:      StatusLevelInfo,
			Generation: c.generation,
			Metadata:   map[string]any{"depth": c.queue.len()},
		})
		c.startTurnLocked(msg.Content, false)
	}
}

// emit publishes a notification without ever blocking the coordinator lock
// indefinitely: with no EmitTimeout the event is dropped when the host lags.
func (c *Coordinator) emit(evt Event) {
	select {
	case <-c.closed:
		return
	default:
	}

	if c.opts.EmitTimeout <= 0 {
		select {
		case c.events <- evt:
		default:
		}
		return
	}

	timer := time.NewTimer(c.opts.EmitTimeout)
	defer timer.Stop()

	select {
	case c.events <- evt:
	case <-timer.C:
	case <-c.closed:
	}
}

// streamBinding adapts backend callbacks onto coordinator entry points,
// carrying the generation captured when the turn started.
type streamBinding struct {
	c   *Coordinator
	gen int
}

func (b streamBinding) OnChunk(text string) { b.c.HandleChunk(b.gen, text) }
func (b streamBinding) OnMeta(meta Meta)    { b.c.HandleMeta(b.gen, meta) }
func (b streamBinding) OnToolStart(id, name, input string) {
	b.c.HandleToolStart(b.gen, id, name, input)
}
func (b streamBinding) OnToolComplete(id, output string, ok bool, errMsg, input string) {
	b.c.HandleToolComplete(b.gen, id, output, ok, errMsg, input)
}
func (b streamBinding) OnAgentSpawn(id, name, task string, background bool) {
	b.c.HandleAgentSpawn(b.gen, id, name, task, background)
}
func (b streamBinding) OnAgentProgress(id, currentTool string) {
	b.c.HandleAgentProgress(b.gen, id, currentTool)
}
func (b streamBinding) OnAgentComplete(id string, ok bool, result string) {
	b.c.HandleAgentComplete(b.gen, id, ok, result)
}
func (b streamBinding) OnTasks(tasks []Task)    { b.c.HandleTasks(b.gen, tasks) }
func (b streamBinding) OnAskUser(prompt string) { b.c.HandleAskUser(b.gen, prompt) }
func (b streamBinding) OnComplete()             { b.c.HandleComplete(b.gen) }
