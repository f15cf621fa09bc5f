package framechat

import "testing"

func TestQueue_FIFO(t *testing.T) {
	var q queue[int]

	for i := 0; i < 5; i++ {
		q.push(i)
	}
	if q.len() != 5 {
		t.Fatalf("len = %d, want 5", q.len())
	}

	for i := 0; i < 5; i++ {
		if got := q.front(); got != i {
			t.Fatalf("front = %d, want %d", got, i)
		}
		q.pop()
	}
	if q.len() != 0 {
		t.Errorf("len = %d, want 0", q.len())
	}
}

func TestQueue_InterleavedPushPop(t *testing.T) {
	var q queue[int]
	pushed, next := 0, 0

	// a growing backlog keeps the backing array within twice its live size
	for i := 0; i < 1000; i++ {
		q.push(pushed)
		q.push(pushed + 1)
		pushed += 2

		if got := q.front(); got != next {
			t.Fatalf("front = %d, want %d", got, next)
		}
		q.pop()
		next++
	}

	if q.len() != 1000 {
		t.Errorf("len = %d, want 1000", q.len())
	}
	if cap(q.items) > 4096 {
		t.Errorf("backing array grew to %d", cap(q.items))
	}
}

func TestQueue_PopReleasesItems(t *testing.T) {
	var q queue[*int]
	for i := 0; i < 100; i++ {
		v := i
		q.push(&v)
	}
	for i := 0; i < 60; i++ {
		q.pop()
	}

	// popped and compacted slots hold no stale pointers
	all := q.items[:cap(q.items)]
	for i := range all {
		if (i < q.head || i >= len(q.items)) && all[i] != nil {
			t.Fatalf("slot %d still holds a popped item", i)
		}
	}
	if got := *q.front(); got != 60 {
		t.Errorf("front = %d, want 60", got)
	}
}
