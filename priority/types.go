// Package priority implements the three-level shard scheduler: bounded
// per-level heaps ordered by sequence number, weighted bandwidth allocation, and
// exponential-backoff requeue.
package priority

import (
	"container/heap"
	"time"

	"github.com/lzww0608/resilientfile/chunk"
)

// QueuedShard is a shard plus the bookkeeping the queue needs: when it was
// enqueued and how many times it has already been requeued.
type QueuedShard struct {
	Shard      *chunk.Shard
	EnqueuedAt time.Time
	RetryCount int
}

// levelHeap is a min-heap over one priority level, ordered by ascending
// sequence number so that, within a level, shards dequeue in order.
type levelHeap []*QueuedShard

func (h levelHeap) Len() int { return len(h) }
func (h levelHeap) Less(i, j int) bool {
	return h[i].Shard.Metadata.SequenceNumber < h[j].Shard.Metadata.SequenceNumber
}
func (h levelHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *levelHeap) Push(x any) {
	*h = append(*h, x.(*QueuedShard))
}

func (h *levelHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

func newLevelHeap() *levelHeap {
	h := &levelHeap{}
	heap.Init(h)
	return h
}
