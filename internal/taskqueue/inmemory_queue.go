package taskqueue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// InMemoryQueue is a Queue ordered by NotBefore (then enqueue order),
// backed by a binary heap. It is safe for concurrent use.
type InMemoryQueue struct {
	mu    sync.Mutex
	items taskHeap
	seq   uint64

	// wake is closed and replaced on every Enqueue to wake all waiting
	// consumers.
	wake chan struct{}
}

// NewInMemoryQueue creates an empty queue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{wake: make(chan struct{})}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepare(&t)

	q.mu.Lock()
	q.seq++
	heap.Push(&q.items, &queuedTask{task: t, seq: q.seq})
	close(q.wake)
	q.wake = make(chan struct{})
	q.mu.Unlock()
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	tmr := newStoppedTimer()
	defer tmr.Stop()

	for {
		q.mu.Lock()
		wait := time.Duration(-1)
		if len(q.items) > 0 {
			head := q.items[0]
			if d := time.Until(head.task.NotBefore); d > 0 {
				wait = d
			} else {
				qt := heap.Pop(&q.items).(*queuedTask)
				q.mu.Unlock()
				t := qt.task
				t.Attempts++
				return &t, nil
			}
		}
		wake := q.wake
		q.mu.Unlock()

		var timeout <-chan time.Time
		if wait >= 0 {
			tmr.Reset(wait)
			timeout = tmr.C
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		case <-timeout:
		}
		tmr.Stop()
	}
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type queuedTask struct {
	task Task
	seq  uint64
}

type taskHeap []*queuedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if !h[i].task.NotBefore.Equal(h[j].task.NotBefore) {
		return h[i].task.NotBefore.Before(h[j].task.NotBefore)
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*queuedTask)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
