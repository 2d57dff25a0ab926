package turn

import "time"

// subAgentRegistry tracks the sub-tasks spawned during the active turn.
// Background agents are deliberately excluded from the blocking check: they
// must not stall the visible conversation, and the only way they leave their
// active state is an explicit completion event. Access is serialized by the
// coordinator.
type subAgentRegistry struct {
	agents []SubAgent
	index  map[string]int

	// Content offset shared by the agents-tree insertion, captured the first
	// time any agent-spawning tool fires within the turn.
	offset    int
	offsetSet bool
}

func newSubAgentRegistry() *subAgentRegistry {
	return &subAgentRegistry{index: make(map[string]int)}
}

func (r *subAgentRegistry) spawn(id, name, task string, background bool, contentOffset int, now time.Time) {
	if !r.offsetSet {
		r.offset = contentOffset
		r.offsetSet = true
	}
	if _, ok := r.index[id]; ok {
		return
	}
	status := AgentRunning
	if background {
		status = AgentBackground
	}
	r.index[id] = len(r.agents)
	r.agents = append(r.agents, SubAgent{
		ID:            id,
		Name:          name,
		Task:          task,
		Status:        status,
		Background:    background,
		ContentOffset: contentOffset,
		StartedAt:     now,
	})
}

// progress updates the live-status text without a status transition.
func (r *subAgentRegistry) progress(id, currentTool string) bool {
	i, ok := r.index[id]
	if !ok {
		return false
	}
	r.agents[i].CurrentTool = currentTool
	return true
}

// complete transitions an agent from any status, including background, to its
// terminal state. This is the only path out of background.
func (r *subAgentRegistry) complete(id string, ok bool, result string, now time.Time) bool {
	i, found := r.index[id]
	if !found {
		return false
	}
	agent := &r.agents[i]
	if ok {
		agent.Status = AgentCompleted
	} else {
		agent.Status = AgentError
	}
	agent.Result = result
	agent.CurrentTool = ""
	agent.Duration = now.Sub(agent.StartedAt)
	return true
}

// anyBlocking reports whether any agent would hold up turn finalization.
// Background agents never block.
func (r *subAgentRegistry) anyBlocking() bool {
	for _, agent := range r.agents {
		if agent.Status == AgentRunning || agent.Status == AgentPending {
			return true
		}
	}
	return false
}

func (r *subAgentRegistry) allIdleOrBackground() bool {
	return !r.anyBlocking()
}

// finalizeActive marks every running or pending agent completed. Called when
// the turn finalizes naturally; background agents are left untouched.
func (r *subAgentRegistry) finalizeActive(now time.Time) int {
	var n int
	for i := range r.agents {
		if r.agents[i].Status == AgentRunning || r.agents[i].Status == AgentPending {
			r.agents[i].Status = AgentCompleted
			r.agents[i].Duration = now.Sub(r.agents[i].StartedAt)
			n++
		}
	}
	return n
}

// interruptActive marks every running or pending agent interrupted and clears
// its live progress. Background agents are left untouched.
func (r *subAgentRegistry) interruptActive(now time.Time) int {
	var n int
	for i := range r.agents {
		if r.agents[i].Status == AgentRunning || r.agents[i].Status == AgentPending {
			r.agents[i].Status = AgentInterrupted
			r.agents[i].CurrentTool = ""
			r.agents[i].Duration = now.Sub(r.agents[i].StartedAt)
			n++
		}
	}
	return n
}

func (r *subAgentRegistry) agentsOffset() int {
	return r.offset
}

func (r *subAgentRegistry) empty() bool {
	return len(r.agents) == 0
}

func (r *subAgentRegistry) snapshot() []SubAgent {
	return append([]SubAgent(nil), r.agents...)
}

func (r *subAgentRegistry) reset() {
	r.agents = nil
	r.index = make(map[string]int)
	r.offset = 0
	r.offsetSet = false
}
