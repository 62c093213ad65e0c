// Package pqueue is the pull engine's work queue: a container/heap
// priority queue where push-notified repositories outrank manifest-driven
// work, so an operator's push lands ahead of the routine sweep (spec.md
// §4.6/§5 "shared priority queue").
package pqueue

import (
	"container/heap"
	"sync"
)

// Priority levels, highest first.
const (
	PriorityManifest = 0
	PriorityPush     = 1
)

// Item is one unit of pull work: a repository path plus enough to decide
// how to pull it. Payload is opaque to the queue; the engine stores
// whatever per-repo plan it built during delta computation.
type Item struct {
	Path     string
	Priority int
	Payload  any

	index int // heap bookkeeping
}

type innerHeap []*Item

func (h innerHeap) Len() int { return len(h) }
func (h innerHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority // higher priority first
	}
	return h[i].index < h[j].index // FIFO within a priority band
}
func (h innerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *innerHeap) Push(x any) {
	item := x.(*Item)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is a thread-safe priority queue. Pop never blocks (it returns nil
// when the queue is empty); a consumer waits for new items on Signal.
type Queue struct {
	mu   sync.Mutex
	h    innerHeap
	seen map[string]bool
	sig  chan struct{}
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{seen: map[string]bool{}, sig: make(chan struct{}, 1)}
}

// Push enqueues an item unless a repo with the same path is already
// queued, in which case the higher-priority (or newer, same-priority)
// occurrence wins by replacing it in place.
func (q *Queue) Push(item *Item) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.seen[item.Path] {
		for _, existing := range q.h {
			if existing.Path == item.Path {
				if item.Priority >= existing.Priority {
					existing.Priority = item.Priority
					existing.Payload = item.Payload
					heap.Fix(&q.h, existing.index)
				}
				return
			}
		}
	}

	q.seen[item.Path] = true
	heap.Push(&q.h, item)
	q.notify()
}

// Pop removes and returns the highest-priority item, or nil if the queue
// is empty.
func (q *Queue) Pop() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.h.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.h).(*Item)
	delete(q.seen, item.Path)
	return item
}

// Len reports the number of items currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

// Signal returns a channel that receives a value whenever an item is
// pushed, letting a worker loop block on "either a new item or shutdown"
// without busy-polling.
func (q *Queue) Signal() <-chan struct{} {
	return q.sig
}

func (q *Queue) notify() {
	select {
	case q.sig <- struct{}{}:
	default:
	}
}
