package turn

import (
	"sort"
	"strings"
)

// SegmentKind discriminates the payload carried by a Segment.
type SegmentKind string

const (
	SegmentText   SegmentKind = "text"
	SegmentTool   SegmentKind = "tool"
	SegmentAgents SegmentKind = "agents"
	SegmentTasks  SegmentKind = "tasks"
)

// Segment is one renderable slice of a turn: a run of text, a tool call, the
// agents tree, or the task checklist. Segments are derived on every render
// and never persisted.
type Segment struct {
	Kind   SegmentKind
	Text   string
	Tool   ToolCall
	Agents []SubAgent
	Tasks  []Task
}

// insertion is a point in the content at which a non-text segment appears.
type insertion struct {
	offset  int
	segment Segment
}

// SegmentContent slices accumulated turn content into an ordered sequence of
// renderable segments. Each tool call is inserted at the content offset
// recorded when it started; the agents tree and the task checklist are each
// inserted at most once, at the offset first observed. Insertion points are
// ordered by offset, ties broken by recording order (tool calls come first at
// equal offsets since they are recorded as an ordered list). Text slices are
// trimmed; an all-whitespace slice yields no segment.
func SegmentContent(content string, toolCalls []ToolCall, agents []SubAgent, agentsOffset int, tasks []Task, tasksOffset int) []Segment {
	insertions := make([]insertion, 0, len(toolCalls)+2)
	for _, call := range toolCalls {
		insertions = append(insertions, insertion{
			offset:  clampOffset(call.ContentOffset, len(content)),
			segment: Segment{Kind: SegmentTool, Tool: call},
		})
	}
	if len(agents) > 0 {
		insertions = append(insertions, insertion{
			offset:  clampOffset(agentsOffset, len(content)),
			segment: Segment{Kind: SegmentAgents, Agents: agents},
		})
	}
	if len(tasks) > 0 {
		insertions = append(insertions, insertion{
			offset:  clampOffset(tasksOffset, len(content)),
			segment: Segment{Kind: SegmentTasks, Tasks: tasks},
		})
	}

	if len(insertions) == 0 {
		if text := strings.TrimSpace(content); text != "" {
			return []Segment{{Kind: SegmentText, Text: text}}
		}
		return nil
	}

	sort.SliceStable(insertions, func(i, j int) bool {
		return insertions[i].offset < insertions[j].offset
	})

	segments := make([]Segment, 0, len(insertions)*2+1)
	cursor := 0
	for _, ins := range insertions {
		if ins.offset > cursor {
			if text := strings.TrimSpace(content[cursor:ins.offset]); text != "" {
				segments = append(segments, Segment{Kind: SegmentText, Text: text})
			}
			cursor = ins.offset
		}
		segments = append(segments, ins.segment)
	}
	if cursor < len(content) {
		if text := strings.TrimSpace(content[cursor:]); text != "" {
			segments = append(segments, Segment{Kind: SegmentText, Text: text})
		}
	}
	return segments
}

func clampOffset(offset, max int) int {
	if offset < 0 {
		return 0
	}
	if offset > max {
		return max
	}
	return offset
}
