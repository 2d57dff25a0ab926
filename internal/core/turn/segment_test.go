package turn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSegmentContentPlainText(t *testing.T) {
	t.Parallel()

	segments := SegmentContent("just text", nil, nil, 0, nil, 0)
	require.Len(t, segments, 1)
	require.Equal(t, SegmentText, segments[0].Kind)
	require.Equal(t, "just text", segments[0].Text)
}

func TestSegmentContentEmpty(t *testing.T) {
	t.Parallel()

	require.Nil(t, SegmentContent("", nil, nil, 0, nil, 0))
	require.Nil(t, SegmentContent("   \n\t", nil, nil, 0, nil, 0))
}

func TestSegmentContentSplitsAroundTool(t *testing.T) {
	t.Parallel()

	calls := []ToolCall{{ID: "tool-1", Name: "grep", Status: ToolCompleted, ContentOffset: 2}}
	segments := SegmentContent("abcd", calls, nil, 0, nil, 0)

	require.Len(t, segments, 3)
	require.Equal(t, SegmentText, segments[0].Kind)
	require.Equal(t, "ab", segments[0].Text)
	require.Equal(t, SegmentTool, segments[1].Kind)
	require.Equal(t, "tool-1", segments[1].Tool.ID)
	require.Equal(t, SegmentText, segments[2].Kind)
	require.Equal(t, "cd", segments[2].Text)
}

func TestSegmentContentToolAtStartAndEnd(t *testing.T) {
	t.Parallel()

	calls := []ToolCall{
		{ID: "first", ContentOffset: 0},
		{ID: "last", ContentOffset: 4},
	}
	segments := SegmentContent("text", calls, nil, 0, nil, 0)

	require.Len(t, segments, 3)
	require.Equal(t, SegmentTool, segments[0].Kind)
	require.Equal(t, "first", segments[0].Tool.ID)
	require.Equal(t, SegmentText, segments[1].Kind)
	require.Equal(t, "text", segments[1].Text)
	require.Equal(t, SegmentTool, segments[2].Kind)
	require.Equal(t, "last", segments[2].Tool.ID)
}

func TestSegmentContentToolsKeepRecordingOrderAtEqualOffset(t *testing.T) {
	t.Parallel()

	calls := []ToolCall{
		{ID: "a", ContentOffset: 2},
		{ID: "b", ContentOffset: 2},
	}
	segments := SegmentContent("abcd", calls, nil, 0, nil, 0)

	require.Len(t, segments, 4)
	require.Equal(t, "a", segments[1].Tool.ID)
	require.Equal(t, "b", segments[2].Tool.ID)
}

func TestSegmentContentAgentsAndTasksInsertedOnce(t *testing.T) {
	t.Parallel()

	agents := []SubAgent{
		{ID: "agent-1", ContentOffset: 1},
		{ID: "agent-2", ContentOffset: 1},
	}
	tasks := []Task{{ID: "t1", Title: "one"}}
	segments := SegmentContent("abcdef", nil, agents, 1, tasks, 3)

	require.Len(t, segments, 5)
	require.Equal(t, "a", segments[0].Text)
	require.Equal(t, SegmentAgents, segments[1].Kind)
	require.Len(t, segments[1].Agents, 2)
	require.Equal(t, "bc", segments[2].Text)
	require.Equal(t, SegmentTasks, segments[3].Kind)
	require.Equal(t, "def", segments[4].Text)
}

func TestSegmentContentToolWinsTieAgainstAgents(t *testing.T) {
	t.Parallel()

	calls := []ToolCall{{ID: "tool-1", ContentOffset: 2}}
	agents := []SubAgent{{ID: "agent-1", ContentOffset: 2}}
	segments := SegmentContent("abcd", calls, agents, 2, nil, 0)

	require.Len(t, segments, 4)
	require.Equal(t, SegmentTool, segments[1].Kind)
	require.Equal(t, SegmentAgents, segments[2].Kind)
}

func TestSegmentContentDropsWhitespaceOnlySlices(t *testing.T) {
	t.Parallel()

	calls := []ToolCall{{ID: "tool-1", ContentOffset: 2}}
	segments := SegmentContent("  \ncd", calls, nil, 0, nil, 0)

	require.Len(t, segments, 2)
	require.Equal(t, SegmentTool, segments[0].Kind)
	require.Equal(t, "cd", segments[1].Text)
}

func TestSegmentContentClampsOutOfRangeOffsets(t *testing.T) {
	t.Parallel()

	calls := []ToolCall{
		{ID: "neg", ContentOffset: -3},
		{ID: "far", ContentOffset: 99},
	}
	segments := SegmentContent("ab", calls, nil, 0, nil, 0)

	require.Len(t, segments, 3)
	require.Equal(t, "neg", segments[0].Tool.ID)
	require.Equal(t, "ab", segments[1].Text)
	require.Equal(t, "far", segments[2].Tool.ID)
}

func TestSegmentContentNoInsertionsForEmptySets(t *testing.T) {
	t.Parallel()

	// Zero-length agent and task slices must not produce insertions even
	// when their offsets were captured.
	segments := SegmentContent("text", nil, []SubAgent{}, 2, []Task{}, 2)
	require.Len(t, segments, 1)
	require.Equal(t, SegmentText, segments[0].Kind)
}
