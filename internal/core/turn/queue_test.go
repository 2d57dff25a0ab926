package turn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageQueueFIFO(t *testing.T) {
	t.Parallel()

	q := newMessageQueue()
	q.enqueue("one")
	q.enqueue("two")
	q.enqueue("three")
	require.Equal(t, 3, q.len())

	msg, ok := q.dequeue()
	require.True(t, ok)
	require.Equal(t, "one", msg.Content)
	require.NotEmpty(t, msg.ID)

	msg, ok = q.dequeue()
	require.True(t, ok)
	require.Equal(t, "two", msg.Content)
	require.Equal(t, 1, q.len())
}

func TestMessageQueueDequeueEmpty(t *testing.T) {
	t.Parallel()

	q := newMessageQueue()
	_, ok := q.dequeue()
	require.False(t, ok)
}

func TestMessageQueueUpdateBounds(t *testing.T) {
	t.Parallel()

	q := newMessageQueue()
	q.enqueue("draft")

	require.True(t, q.update(0, "final"))
	require.False(t, q.update(1, "x"))
	require.False(t, q.update(-1, "x"))

	msg, _ := q.dequeue()
	require.Equal(t, "final", msg.Content)
}

func TestMessageQueueUpdateKeepsIdentityAndOrder(t *testing.T) {
	t.Parallel()

	q := newMessageQueue()
	first := q.enqueue("a")
	q.enqueue("b")

	require.True(t, q.update(0, "edited"))
	items := q.snapshot()
	require.Equal(t, first.ID, items[0].ID)
	require.Equal(t, "edited", items[0].Content)
	require.Equal(t, "b", items[1].Content)
}

func TestMessageQueueSnapshotIsCopy(t *testing.T) {
	t.Parallel()

	q := newMessageQueue()
	q.enqueue("a")
	snap := q.snapshot()
	snap[0].Content = "mutated"
	require.Equal(t, "a", q.snapshot()[0].Content)

	q.clear()
	require.Equal(t, 0, q.len())
}
