package turn

import (
	"time"

	"github.com/google/uuid"
)

// messageQueue is a plain FIFO of user submissions parked behind the active
// turn. No deduplication, no reordering. Entries stay editable in place while
// parked, addressed by index.
type messageQueue struct {
	items []QueuedMessage
}

func newMessageQueue() *messageQueue {
	return &messageQueue{}
}

func (q *messageQueue) enqueue(content string) QueuedMessage {
	msg := QueuedMessage{
		ID:         uuid.NewString(),
		Content:    content,
		EnqueuedAt: time.Now(),
	}
	q.items = append(q.items, msg)
	return msg
}

func (q *messageQueue) dequeue() (QueuedMessage, bool) {
	if len(q.items) == 0 {
		return QueuedMessage{}, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

// update edits a parked message in place. Out-of-range indexes are ignored.
func (q *messageQueue) update(index int, content string) bool {
	if index < 0 || index >= len(q.items) {
		return false
	}
	q.items[index].Content = content
	return true
}

func (q *messageQueue) clear() {
	q.items = nil
}

func (q *messageQueue) len() int {
	return len(q.items)
}

func (q *messageQueue) snapshot() []QueuedMessage {
	return append([]QueuedMessage(nil), q.items...)
}
