package framechat

// queue is a FIFO of pending items. It is not safe for concurrent use:
// a Conn only touches its queue from the dispatch loop.
type queue[T any] struct {
	items []T
	head  int
}

func (q *queue[T]) push(v T) {
	q.items = append(q.items, v)
}

func (q *queue[T]) len() int {
	return len(q.items) - q.head
}

// front returns the oldest item. The queue must not be empty.
func (q *queue[T]) front() T {
	return q.items[q.head]
}

func (q *queue[T]) pop() {
	var zero T
	q.items[q.head] = zero
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head > 32 && q.head*2 >= len(q.items):
		// compact once the consumed prefix dominates the backing array
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
}
