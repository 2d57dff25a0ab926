package turn

import (
	"sync"
	"time"
)

// Metrics collects coordinator counters for observability. The coordinator
// calls these hooks from inside its lock, so implementations must be cheap.
type Metrics interface {
	// RecordTurnStarted records a new turn at the given generation.
	RecordTurnStarted(generation int)
	// RecordTurnFinalized records a finalized turn with its terminal status.
	RecordTurnFinalized(status TurnStatus, duration time.Duration)
	// RecordStaleDrop records an asynchronous callback discarded by the
	// generation guard. kind names the callback (chunk, meta, tool, agent,
	// complete).
	RecordStaleDrop(kind string)
	// RecordToolCall records a tool call reaching a terminal status.
	RecordToolCall(status ToolStatus)
	// RecordAgentFinished records a sub-agent reaching a terminal status.
	RecordAgentFinished(status AgentStatus, background bool)
	// RecordDeferredCompletion records a natural completion held back by
	// running tools or blocking agents.
	RecordDeferredCompletion()
	// Snapshot returns a point-in-time copy of the counters.
	Snapshot() MetricsSnapshot
	// Reset clears all counters.
	Reset()
}

// MetricsSnapshot is a point-in-time view of collected coordinator metrics.
type MetricsSnapshot struct {
	TurnsStarted        int64
	TurnsCompleted      int64
	TurnsInterrupted    int64
	TotalTurnTime       time.Duration
	StaleDrops          map[string]int64
	ToolCalls           map[ToolStatus]int64
	AgentsFinished      map[AgentStatus]int64
	BackgroundFinished  int64
	DeferredCompletions int64
	LastTurnFinalizedAt time.Time
	HighestGeneration   int
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordTurnStarted(int)                         {}
func (NoOpMetrics) RecordTurnFinalized(TurnStatus, time.Duration) {}
func (NoOpMetrics) RecordStaleDrop(string)                        {}
func (NoOpMetrics) RecordToolCall(ToolStatus)                     {}
func (NoOpMetrics) RecordAgentFinished(AgentStatus, bool)         {}
func (NoOpMetrics) RecordDeferredCompletion()                     {}
func (NoOpMetrics) Snapshot() MetricsSnapshot                     { return MetricsSnapshot{} }
func (NoOpMetrics) Reset()                                        {}

// InMemoryMetrics is a mutex-guarded collector suitable for tests and the
// /status command.
type InMemoryMetrics struct {
	mu sync.Mutex
	s  MetricsSnapshot
}

func NewInMemoryMetrics() *InMemoryMetrics {
	m := &InMemoryMetrics{}
	m.Reset()
	return m
}

func (m *InMemoryMetrics) RecordTurnStarted(generation int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.TurnsStarted++
	if generation > m.s.HighestGeneration {
		m.s.HighestGeneration = generation
	}
}

func (m *InMemoryMetrics) RecordTurnFinalized(status TurnStatus, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch status {
	case StatusCompleted:
		m.s.TurnsCompleted++
	case StatusInterrupted:
		m.s.TurnsInterrupted++
	}
	m.s.TotalTurnTime += duration
	m.s.LastTurnFinalizedAt = time.Now()
}

func (m *InMemoryMetrics) RecordStaleDrop(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.StaleDrops[kind]++
}

func (m *InMemoryMetrics) RecordToolCall(status ToolStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.ToolCalls[status]++
}

func (m *InMemoryMetrics) RecordAgentFinished(status AgentStatus, background bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.AgentsFinished[status]++
	if background {
		m.s.BackgroundFinished++
	}
}

func (m *InMemoryMetrics) RecordDeferredCompletion() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.DeferredCompletions++
}

func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.s
	out.StaleDrops = make(map[string]int64, len(m.s.StaleDrops))
	for k, v := range m.s.StaleDrops {
		out.StaleDrops[k] = v
	}
	out.ToolCalls = make(map[ToolStatus]int64, len(m.s.ToolCalls))
	for k, v := range m.s.ToolCalls {
		out.ToolCalls[k] = v
	}
	out.AgentsFinished = make(map[AgentStatus]int64, len(m.s.AgentsFinished))
	for k, v := range m.s.AgentsFinished {
		out.AgentsFinished[k] = v
	}
	return out
}

func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = MetricsSnapshot{
		StaleDrops:     make(map[string]int64),
		ToolCalls:      make(map[ToolStatus]int64),
		AgentsFinished: make(map[AgentStatus]int64),
	}
}
