package turn

import "context"

// StreamHandler receives the asynchronous events a backend stream produces
// for one turn. Every method may be called from the backend's goroutine; the
// coordinator's implementation closes over the turn generation and routes
// through the generation guard, so late calls after cancellation are safe.
type StreamHandler interface {
	OnChunk(text string)
	OnMeta(meta Meta)
	OnToolStart(id, name, input string)
	OnToolComplete(id, output string, ok bool, errMsg, input string)
	OnAgentSpawn(id, name, task string, background bool)
	OnAgentProgress(id, currentTool string)
	OnAgentComplete(id string, ok bool, result string)
	OnTasks(tasks []Task)
	OnAskUser(prompt string)
	OnComplete()
}

// Backend is the external collaborator that talks to the language-model
// service. Stream must eventually invoke OnComplete on the handler, even on
// failure, so a turn can never hang; Cancel is best-effort and the
// generation guard remains the authoritative defense against stale effects.
type Backend interface {
	Stream(ctx context.Context, prompt string, h StreamHandler)
	Cancel()
}
