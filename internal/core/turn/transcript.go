package turn

// transcript keeps the finalized turns of the session in memory so hosts can
// render prior exchanges. Background agents that outlive their turn are
// completed here when their completion event finally arrives.
type transcript struct {
	turns []Turn
}

func (t *transcript) append(turn Turn) {
	t.turns = append(t.turns, turn)
}

// findAgent locates a baked sub-agent by owning generation and agent ID.
// Returns nil when the turn or agent is unknown.
func (t *transcript) findAgent(generation int, agentID string) *SubAgent {
	for i := range t.turns {
		if t.turns[i].Generation != generation {
			continue
		}
		for j := range t.turns[i].Agents {
			if t.turns[i].Agents[j].ID == agentID {
				return &t.turns[i].Agents[j]
			}
		}
	}
	return nil
}

func (t *transcript) snapshot() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	for i := range out {
		out[i].ToolCalls = append([]ToolCall(nil), t.turns[i].ToolCalls...)
		out[i].Agents = append([]SubAgent(nil), t.turns[i].Agents...)
		out[i].Tasks = append([]Task(nil), t.turns[i].Tasks...)
	}
	return out
}
