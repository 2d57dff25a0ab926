package turn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeBackend records Stream invocations without producing any events; tests
// drive the coordinator's Handle methods directly.
type fakeBackend struct {
	mu      sync.Mutex
	prompts []string
	cancels int
}

func (b *fakeBackend) Stream(_ context.Context, prompt string, _ StreamHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompts = append(b.prompts, prompt)
}

func (b *fakeBackend) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancels++
}

func (b *fakeBackend) promptCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.prompts)
}

func (b *fakeBackend) lastPrompt() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.prompts) == 0 {
		return ""
	}
	return b.prompts[len(b.prompts)-1]
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeBackend, *InMemoryMetrics) {
	t.Helper()
	backend := &fakeBackend{}
	metrics := NewInMemoryMetrics()
	coord, err := New(Options{Backend: backend, Metrics: metrics})
	require.NoError(t, err)
	t.Cleanup(coord.Close)
	return coord, backend, metrics
}

func TestSubmitStartsTurnWhenIdle(t *testing.T) {
	t.Parallel()

	coord, backend, metrics := newTestCoordinator(t)
	coord.Submit("  hello  ")

	snap := coord.Snapshot()
	require.Equal(t, StatusStreaming, snap.Status)
	require.Equal(t, 1, snap.Generation)
	require.Equal(t, "hello", snap.Prompt)
	require.NotEmpty(t, snap.TurnID)
	require.EqualValues(t, 1, metrics.Snapshot().TurnsStarted)

	require.Eventually(t, func() bool { return backend.promptCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "hello", backend.lastPrompt())
}

func TestSubmitIgnoresWhitespaceOnlyContent(t *testing.T) {
	t.Parallel()

	coord, backend, _ := newTestCoordinator(t)
	coord.Submit("   \n\t ")

	require.Equal(t, StatusIdle, coord.Snapshot().Status)
	require.Equal(t, 0, coord.Generation())
	require.Equal(t, 0, backend.promptCount())
}

func TestSubmitPreemptsActiveTurn(t *testing.T) {
	t.Parallel()

	coord, backend, _ := newTestCoordinator(t)
	coord.Submit("first")
	gen := coord.Generation()
	coord.HandleChunk(gen, "partial answer")

	coord.Submit("second")

	snap := coord.Snapshot()
	require.Equal(t, 2, snap.Generation)
	require.Equal(t, "second", snap.Prompt)
	require.Empty(t, snap.Content)

	history := coord.History()
	require.Len(t, history, 1)
	require.Equal(t, StatusInterrupted, history[0].Status)
	require.Equal(t, "partial answer", history[0].Content)

	require.Eventually(t, func() bool { return backend.promptCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestPreemptionIgnoresRunningTools(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Submit("first")
	gen := coord.Generation()
	coord.HandleToolStart(gen, "tool-1", "grep", "{}")

	coord.Submit("second")

	require.Equal(t, 2, coord.Generation())
	history := coord.History()
	require.Len(t, history, 1)
	require.Equal(t, ToolInterrupted, history[0].ToolCalls[0].Status)
}

func TestStaleCallbacksAreDropped(t *testing.T) {
	t.Parallel()

	coord, _, metrics := newTestCoordinator(t)
	coord.Submit("first")
	stale := coord.Generation()
	coord.Submit("second")

	coord.HandleChunk(stale, "ghost text")
	coord.HandleToolStart(stale, "tool-1", "grep", "{}")
	coord.HandleComplete(stale)

	snap := coord.Snapshot()
	require.Equal(t, StatusStreaming, snap.Status)
	require.Empty(t, snap.Content)
	require.Empty(t, snap.ToolCalls)

	drops := metrics.Snapshot().StaleDrops
	require.EqualValues(t, 1, drops["chunk"])
	require.EqualValues(t, 1, drops["tool"])
	require.EqualValues(t, 1, drops["complete"])
}

func TestInterruptFinalizesTurnInPlace(t *testing.T) {
	t.Parallel()

	coord, backend, _ := newTestCoordinator(t)
	coord.Submit("prompt")
	gen := coord.Generation()
	coord.HandleChunk(gen, "some partial ")
	coord.HandleChunk(gen, "content")
	coord.HandleToolStart(gen, "tool-1", "bash", `{"cmd":"ls"}`)

	coord.Interrupt()

	require.Equal(t, StatusIdle, coord.Snapshot().Status)
	require.Equal(t, gen, coord.Generation(), "interrupt must not advance the generation")

	history := coord.History()
	require.Len(t, history, 1)
	require.Equal(t, StatusInterrupted, history[0].Status)
	require.Equal(t, "some partial content", history[0].Content)
	require.Equal(t, ToolInterrupted, history[0].ToolCalls[0].Status)

	require.Eventually(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return backend.cancels == 1
	}, time.Second, 5*time.Millisecond)
}

func TestInterruptWhenIdleIsNoOp(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Interrupt()
	coord.Interrupt()

	require.Equal(t, StatusIdle, coord.Snapshot().Status)
	require.Empty(t, coord.History())
}

func TestLateChunksAfterInterruptAreDropped(t *testing.T) {
	t.Parallel()

	coord, _, metrics := newTestCoordinator(t)
	coord.Submit("prompt")
	gen := coord.Generation()
	coord.Interrupt()

	// Cancellation is best-effort; the dead stream may keep calling back.
	coord.HandleChunk(gen, "late")
	coord.HandleComplete(gen)

	require.Equal(t, StatusIdle, coord.Snapshot().Status)
	require.Len(t, coord.History(), 1)
	require.Equal(t, "", coord.History()[0].Content)
	require.EqualValues(t, 1, metrics.Snapshot().StaleDrops["chunk"])
}

func TestEnqueueParksBehindActiveTurn(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Submit("first")
	gen := coord.Generation()

	coord.Enqueue("queued one")
	coord.Enqueue("queued two")

	snap := coord.Snapshot()
	require.Equal(t, gen, snap.Generation)
	require.Len(t, snap.Queue, 2)
	require.Equal(t, "queued one", snap.Queue[0].Content)

	coord.HandleComplete(gen)

	snap = coord.Snapshot()
	require.Equal(t, gen+1, snap.Generation)
	require.Equal(t, "queued one", snap.Prompt)
	require.Len(t, snap.Queue, 1)
	require.Equal(t, "queued two", snap.Queue[0].Content)
}

func TestEnqueueWhenIdleStartsImmediately(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Enqueue("go now")

	snap := coord.Snapshot()
	require.Equal(t, StatusStreaming, snap.Status)
	require.Equal(t, "go now", snap.Prompt)
	require.Empty(t, snap.Queue)
}

func TestUpdateQueuedEditsInPlace(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Submit("active")
	coord.Enqueue("draft")

	require.True(t, coord.UpdateQueued(0, "edited"))
	require.False(t, coord.UpdateQueued(1, "nope"))
	require.False(t, coord.UpdateQueued(-1, "nope"))

	snap := coord.Snapshot()
	require.Equal(t, "edited", snap.Queue[0].Content)

	coord.ClearQueue()
	require.Empty(t, coord.Snapshot().Queue)
}

func TestCompletionDeferredBehindRunningTool(t *testing.T) {
	t.Parallel()

	coord, _, metrics := newTestCoordinator(t)
	coord.Submit("prompt")
	gen := coord.Generation()
	coord.HandleToolStart(gen, "tool-1", "bash", "{}")

	coord.HandleComplete(gen)

	require.Equal(t, StatusStreaming, coord.Snapshot().Status)
	require.EqualValues(t, 1, metrics.Snapshot().DeferredCompletions)

	coord.HandleToolComplete(gen, "tool-1", "ok", true, "", "")

	require.Equal(t, StatusIdle, coord.Snapshot().Status)
	history := coord.History()
	require.Len(t, history, 1)
	require.Equal(t, StatusCompleted, history[0].Status)
	require.Equal(t, ToolCompleted, history[0].ToolCalls[0].Status)
}

func TestCompletionDeferredBehindBlockingAgent(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Submit("prompt")
	gen := coord.Generation()
	coord.HandleAgentSpawn(gen, "agent-1", "explorer", "scan", false)

	coord.HandleComplete(gen)
	require.Equal(t, StatusStreaming, coord.Snapshot().Status)

	coord.HandleAgentComplete(gen, "agent-1", true, "done")

	history := coord.History()
	require.Len(t, history, 1)
	require.Equal(t, StatusCompleted, history[0].Status)
	require.Equal(t, AgentCompleted, history[0].Agents[0].Status)
	require.Equal(t, "done", history[0].Agents[0].Result)
}

func TestBackgroundAgentNeverBlocksCompletion(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Submit("prompt")
	gen := coord.Generation()
	coord.HandleAgentSpawn(gen, "bg-1", "indexer", "index the repo", true)

	coord.HandleComplete(gen)

	history := coord.History()
	require.Len(t, history, 1)
	require.Equal(t, StatusCompleted, history[0].Status)
	// Natural completion must not force-complete a background agent.
	require.Equal(t, AgentBackground, history[0].Agents[0].Status)
}

func TestBackgroundAgentSurvivesInterrupt(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Submit("prompt")
	gen := coord.Generation()
	coord.HandleAgentSpawn(gen, "bg-1", "indexer", "index", true)
	coord.HandleAgentSpawn(gen, "fg-1", "helper", "assist", false)

	coord.Interrupt()

	history := coord.History()
	require.Equal(t, AgentBackground, history[0].Agents[0].Status)
	require.Equal(t, AgentInterrupted, history[0].Agents[1].Status)
}

func TestLateBackgroundCompletionUpdatesHistory(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Submit("prompt")
	gen := coord.Generation()
	coord.HandleAgentSpawn(gen, "bg-1", "indexer", "index", true)
	coord.HandleComplete(gen)

	coord.Submit("next prompt")

	// The backend reports the background agent finishing after its turn ended.
	coord.HandleAgentComplete(gen, "bg-1", true, "12 files indexed")

	history := coord.History()
	require.Len(t, history, 1)
	require.Equal(t, AgentCompleted, history[0].Agents[0].Status)
	require.Equal(t, "12 files indexed", history[0].Agents[0].Result)
}

func TestSubmitDeferredBehindBlockingAgent(t *testing.T) {
	t.Parallel()

	coord, backend, _ := newTestCoordinator(t)
	coord.Submit("first")
	gen := coord.Generation()
	coord.HandleAgentSpawn(gen, "agent-1", "worker", "dig", false)

	coord.Submit("second")

	// The submission is parked, not injected, while the agent is active.
	require.Equal(t, gen, coord.Generation())
	require.Equal(t, StatusStreaming, coord.Snapshot().Status)

	coord.HandleAgentComplete(gen, "agent-1", true, "dug")

	snap := coord.Snapshot()
	require.Equal(t, gen+1, snap.Generation)
	require.Equal(t, "second", snap.Prompt)

	history := coord.History()
	require.Len(t, history, 1)
	require.Equal(t, StatusInterrupted, history[0].Status)

	require.Eventually(t, func() bool { return backend.promptCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDeferredSubmitOutranksDeferredCompletion(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Submit("first")
	gen := coord.Generation()
	coord.HandleAgentSpawn(gen, "agent-1", "worker", "dig", false)

	coord.HandleComplete(gen)
	coord.Submit("second")
	coord.HandleAgentComplete(gen, "agent-1", true, "dug")

	// The parked submission wins: the turn ends interrupted, not completed.
	history := coord.History()
	require.Len(t, history, 1)
	require.Equal(t, StatusInterrupted, history[0].Status)
	require.Equal(t, "second", coord.Snapshot().Prompt)
}

func TestDeferredSubmitLatestWins(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Submit("first")
	gen := coord.Generation()
	coord.HandleAgentSpawn(gen, "agent-1", "worker", "dig", false)

	coord.Submit("second")
	coord.Submit("third")
	coord.HandleAgentComplete(gen, "agent-1", true, "dug")

	require.Equal(t, "third", coord.Snapshot().Prompt)
}

func TestInterruptDiscardsDeferredState(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Submit("first")
	gen := coord.Generation()
	coord.HandleAgentSpawn(gen, "agent-1", "worker", "dig", false)
	coord.HandleComplete(gen)
	coord.Submit("second")

	coord.Interrupt()

	// Neither the parked submission nor the stored completion replays.
	require.Equal(t, StatusIdle, coord.Snapshot().Status)
	require.Len(t, coord.History(), 1)
}

func TestToolCompleteForUnknownIDIsIgnored(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Submit("prompt")
	gen := coord.Generation()

	coord.HandleToolComplete(gen, "never-started", "out", true, "", "")

	snap := coord.Snapshot()
	require.Equal(t, StatusStreaming, snap.Status)
	require.Empty(t, snap.ToolCalls)
}

func TestToolInputAdoptedAtCompletion(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Submit("prompt")
	gen := coord.Generation()

	coord.HandleToolStart(gen, "tool-1", "bash", "")
	coord.HandleToolComplete(gen, "tool-1", "listing", true, "", `{"cmd":"ls"}`)

	snap := coord.Snapshot()
	require.Equal(t, `{"cmd":"ls"}`, snap.ToolCalls[0].Input)
	require.Equal(t, ToolCompleted, snap.ToolCalls[0].Status)
}

func TestContentOffsetsRecordedAtArrival(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Submit("prompt")
	gen := coord.Generation()

	coord.HandleChunk(gen, "ab")
	coord.HandleToolStart(gen, "tool-1", "grep", "{}")
	coord.HandleChunk(gen, "cd")
	coord.HandleAgentSpawn(gen, "agent-1", "worker", "dig", false)
	coord.HandleTasks(gen, []Task{{ID: "t1", Title: "step"}})
	coord.HandleChunk(gen, "ef")

	snap := coord.Snapshot()
	require.Equal(t, 2, snap.ToolCalls[0].ContentOffset)
	require.Equal(t, 4, snap.AgentsOffset)
	require.Equal(t, 4, snap.TasksOffset)
	require.Equal(t, "abcdef", snap.Content)
}

func TestTasksOffsetCapturedOnFirstSnapshotOnly(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Submit("prompt")
	gen := coord.Generation()

	coord.HandleChunk(gen, "ab")
	coord.HandleTasks(gen, []Task{{ID: "t1", Title: "one"}})
	coord.HandleChunk(gen, "cd")
	coord.HandleTasks(gen, []Task{{ID: "t1", Title: "one", Status: "completed"}, {ID: "t2", Title: "two"}})

	snap := coord.Snapshot()
	require.Equal(t, 2, snap.TasksOffset)
	require.Len(t, snap.Tasks, 2)
	require.Equal(t, "completed", snap.Tasks[0].Status)
}

func TestMetaUpdatesActiveTurn(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Submit("prompt")
	gen := coord.Generation()

	coord.HandleMeta(gen, Meta{Model: "agent-large", OutputTokens: 128})

	snap := coord.Snapshot()
	require.Equal(t, "agent-large", snap.Meta.Model)
	require.Equal(t, 128, snap.Meta.OutputTokens)
}

func TestAskUserRecordedAndClearedBySubmission(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Submit("prompt")
	gen := coord.Generation()

	coord.HandleAskUser(gen, "Which file do you mean?")
	require.Equal(t, "Which file do you mean?", coord.Snapshot().AskPrompt)

	coord.Submit("the second one")
	require.Empty(t, coord.Snapshot().AskPrompt)
}

func TestAgentProgressUpdatesCurrentTool(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)
	coord.Submit("prompt")
	gen := coord.Generation()

	coord.HandleAgentSpawn(gen, "agent-1", "worker", "dig", false)
	coord.HandleAgentProgress(gen, "agent-1", "read_file")
	require.Equal(t, "read_file", coord.Snapshot().Agents[0].CurrentTool)

	coord.HandleAgentComplete(gen, "agent-1", true, "done")
	require.Empty(t, coord.Snapshot().Agents[0].CurrentTool)
}

func TestGenerationMonotonicAcrossLifecycle(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t)

	coord.Submit("one")
	require.Equal(t, 1, coord.Generation())
	coord.HandleComplete(1)
	require.Equal(t, 1, coord.Generation())

	coord.Submit("two")
	require.Equal(t, 2, coord.Generation())
	coord.Interrupt()
	require.Equal(t, 2, coord.Generation())

	coord.Submit("three")
	require.Equal(t, 3, coord.Generation())
	coord.Submit("four")
	require.Equal(t, 4, coord.Generation())
}

func TestEventsCarryGeneration(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	coord, err := New(Options{Backend: backend})
	require.NoError(t, err)
	defer coord.Close()

	coord.Submit("prompt")
	gen := coord.Generation()
	coord.HandleChunk(gen, "hi")
	coord.HandleComplete(gen)

	var sawStart, sawDelta, sawFinal bool
	for {
		select {
		case evt := <-coord.Events():
			switch evt.Type {
			case EventTypeTurnStarted:
				sawStart = true
				require.Equal(t, gen, evt.Generation)
			case EventTypeDelta:
				sawDelta = true
				require.Equal(t, "hi", evt.Message)
			case EventTypeTurnFinalized:
				sawFinal = true
				require.Equal(t, gen, evt.Generation)
			}
		default:
			require.True(t, sawStart && sawDelta && sawFinal)
			return
		}
	}
}
