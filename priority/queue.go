package priority

import (
	"container/heap"
	"sync"
	"time"

	"github.com/lzww0608/resilientfile/chunk"
	"github.com/lzww0608/resilientfile/internal/sched"
)

// levelOrder is the dequeue scan order: Critical before High before Normal.
var levelOrder = [3]chunk.Priority{chunk.PriorityCritical, chunk.PriorityHigh, chunk.PriorityNormal}

// Queue is a three-level bounded scheduler. Dequeue always prefers a more
// urgent level over a less urgent one; within a level, shards come out in
// ascending sequence-number order.
type Queue struct {
	mu       sync.Mutex
	capacity int
	levels   map[chunk.Priority]*levelHeap
	pending  int
	stats    Stats
}

// NewQueue builds a Queue bounded at capacity total outstanding shards.
func NewQueue(capacity int) *Queue {
	q := &Queue{
		capacity: capacity,
		levels:   make(map[chunk.Priority]*levelHeap, 3),
	}
	for _, p := range levelOrder {
		q.levels[p] = newLevelHeap()
	}
	return q
}

// Enqueue adds a shard to its priority's heap, failing with QueueFullError
// once total pending reaches capacity.
func (q *Queue) Enqueue(s *chunk.Shard) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending >= q.capacity {
		return &QueueFullError{Capacity: q.capacity}
	}

	h, ok := q.levels[s.Metadata.Priority]
	if !ok {
		return &InvalidPriorityError{Priority: s.Metadata.Priority}
	}
	heap.Push(h, &QueuedShard{Shard: s, EnqueuedAt: time.Now()})
	q.pending++
	return nil
}

// Dequeue scans Critical, then High, then Normal, and pops the first
// non-empty level, recording a wait-time sample.
func (q *Queue) Dequeue() (*chunk.Shard, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range levelOrder {
		h := q.levels[p]
		if h.Len() == 0 {
			continue
		}
		item := heap.Pop(h).(*QueuedShard)
		q.pending--
		q.stats.record(time.Since(item.EnqueuedAt))
		return item.Shard, nil
	}
	return nil, &QueueEmptyError{}
}

// DequeuePriority pops the next shard from one specific level only.
func (q *Queue) DequeuePriority(level chunk.Priority) (*chunk.Shard, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	h, ok := q.levels[level]
	if !ok {
		return nil, &InvalidPriorityError{Priority: level}
	}
	if h.Len() == 0 {
		return nil, &QueueEmptyError{}
	}
	item := heap.Pop(h).(*QueuedShard)
	q.pending--
	q.stats.record(time.Since(item.EnqueuedAt))
	return item.Shard, nil
}

// Peek returns the priority of the next shard to dequeue without removing
// it, never mutating queue size.
func (q *Queue) Peek() (chunk.Priority, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range levelOrder {
		if q.levels[p].Len() > 0 {
			return p, nil
		}
	}
	return 0, &QueueEmptyError{}
}

const maxRetries = 5

// backoffFor returns 100*2^retryCount milliseconds.
func backoffFor(retryCount int) time.Duration {
	return time.Duration(100<<uint(retryCount)) * time.Millisecond
}

// Requeue schedules shard for re-enqueue after an exponential backoff delay
// and returns immediately; it never blocks the caller's goroutine on the
// sleep. retryCount >= 5 fails fast with MaxRetriesExceededError instead of
// scheduling anything.
func (q *Queue) Requeue(s *chunk.Shard, retryCount int) error {
	if retryCount >= maxRetries {
		return &MaxRetriesExceededError{ShardID: s.Metadata.ShardID, Retries: retryCount}
	}

	delay := backoffFor(retryCount)
	sched.SystemTimer.Put(func() {
		_ = q.Enqueue(s) // a full queue on requeue silently drops; caller already moved on
	}, time.Now().Add(delay))
	return nil
}

// CapacityInfo reports used/available slots and utilization, a read-only
// snapshot useful to a metrics surface.
func (q *Queue) CapacityInfo() (used, available int, utilizationPercent float64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	used = q.pending
	available = q.capacity - q.pending
	if q.capacity > 0 {
		utilizationPercent = float64(q.pending) / float64(q.capacity) * 100
	}
	return used, available, utilizationPercent
}

// Stats returns a snapshot of the queue's wait-time statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// PendingCounts reports how many shards sit in each level, used as the
// input to bandwidth allocation.
func (q *Queue) PendingCounts() (critical, high, normal int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.levels[chunk.PriorityCritical].Len(), q.levels[chunk.PriorityHigh].Len(), q.levels[chunk.PriorityNormal].Len()
}
