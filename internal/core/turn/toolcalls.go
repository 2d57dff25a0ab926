package turn

// toolCallTracker records the tool invocations observed during the active
// turn. Calls are never removed; they only transition toward a terminal
// status. The tracker is not safe for concurrent use on its own — the
// coordinator serializes access.
type toolCallTracker struct {
	calls []ToolCall
	index map[string]int
}

func newToolCallTracker() *toolCallTracker {
	return &toolCallTracker{index: make(map[string]int)}
}

// start registers a tool invocation. Backends may emit a preliminary call
// with empty input followed by a populated one, so a repeated ID merges
// rather than duplicating: the latest non-empty input wins.
func (t *toolCallTracker) start(id, name, input string, contentOffset int) {
	if i, ok := t.index[id]; ok {
		if input != "" {
			t.calls[i].Input = input
		}
		if name != "" && t.calls[i].Name == "" {
			t.calls[i].Name = name
		}
		return
	}
	t.index[id] = len(t.calls)
	t.calls = append(t.calls, ToolCall{
		ID:            id,
		Name:          name,
		Input:         input,
		Status:        ToolRunning,
		ContentOffset: contentOffset,
	})
}

// complete transitions a call to its terminal status. Completing an unknown
// ID is a no-op; the caller logs it. When the recorded input was empty and a
// fuller one accompanies completion, adopt it.
func (t *toolCallTracker) complete(id, output string, ok bool, errMsg, input string) bool {
	i, found := t.index[id]
	if !found {
		return false
	}
	call := &t.calls[i]
	if ok {
		call.Status = ToolCompleted
	} else {
		call.Status = ToolError
	}
	call.Output = output
	call.Error = errMsg
	if call.Input == "" && input != "" {
		call.Input = input
	}
	return true
}

func (t *toolCallTracker) anyRunning() bool {
	for _, call := range t.calls {
		if call.Status == ToolRunning || call.Status == ToolPending {
			return true
		}
	}
	return false
}

// interruptRunning forces every active call to the interrupted status and
// reports how many were affected.
func (t *toolCallTracker) interruptRunning() int {
	var n int
	for i := range t.calls {
		if t.calls[i].Status == ToolRunning || t.calls[i].Status == ToolPending {
			t.calls[i].Status = ToolInterrupted
			n++
		}
	}
	return n
}

func (t *toolCallTracker) snapshot() []ToolCall {
	return append([]ToolCall(nil), t.calls...)
}

func (t *toolCallTracker) reset() {
	t.calls = nil
	t.index = make(map[string]int)
}
