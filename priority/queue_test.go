package priority

import (
	"testing"
	"time"

	"github.com/lzww0608/resilientfile/chunk"
)

func shardAt(priority chunk.Priority, seq uint32) *chunk.Shard {
	return &chunk.Shard{Metadata: chunk.Metadata{Priority: priority, SequenceNumber: seq}}
}

func TestDequeueOrdersByPriorityThenSequence(t *testing.T) {
	q := NewQueue(10)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	must(q.Enqueue(shardAt(chunk.PriorityNormal, 0)))
	must(q.Enqueue(shardAt(chunk.PriorityCritical, 1)))
	must(q.Enqueue(shardAt(chunk.PriorityHigh, 2)))

	wantOrder := []chunk.Priority{chunk.PriorityCritical, chunk.PriorityHigh, chunk.PriorityNormal}
	for i, want := range wantOrder {
		s, err := q.Dequeue()
		if err != nil {
			t.Fatalf("dequeue #%d: %v", i, err)
		}
		if s.Metadata.Priority != want {
			t.Fatalf("dequeue #%d: got priority %v, want %v", i, s.Metadata.Priority, want)
		}
	}

	if _, err := q.Dequeue(); err == nil {
		t.Fatal("expected QueueEmptyError on exhausted queue")
	}
}

func TestPeekDoesNotMutateSize(t *testing.T) {
	q := NewQueue(10)
	if err := q.Enqueue(shardAt(chunk.PriorityHigh, 0)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	for i := 0; i < 3; i++ {
		p, err := q.Peek()
		if err != nil {
			t.Fatalf("peek: %v", err)
		}
		if p != chunk.PriorityHigh {
			t.Fatalf("peek returned %v, want High", p)
		}
	}
	used, _, _ := q.CapacityInfo()
	if used != 1 {
		t.Fatalf("expected 1 pending after repeated peeks, got %d", used)
	}
}

func TestEnqueueQueueFull(t *testing.T) {
	q := NewQueue(3)
	for i := 0; i < 3; i++ {
		if err := q.Enqueue(shardAt(chunk.PriorityNormal, uint32(i))); err != nil {
			t.Fatalf("enqueue #%d: %v", i, err)
		}
	}
	err := q.Enqueue(shardAt(chunk.PriorityNormal, 3))
	if err == nil {
		t.Fatal("expected QueueFullError on 4th enqueue")
	}
	full, ok := err.(*QueueFullError)
	if !ok {
		t.Fatalf("expected *QueueFullError, got %T", err)
	}
	if full.Capacity != 3 {
		t.Fatalf("expected capacity 3 in error, got %d", full.Capacity)
	}
}

func TestDequeuePriorityTargetsOneLevel(t *testing.T) {
	q := NewQueue(10)
	if err := q.Enqueue(shardAt(chunk.PriorityCritical, 0)); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(shardAt(chunk.PriorityNormal, 1)); err != nil {
		t.Fatal(err)
	}
	s, err := q.DequeuePriority(chunk.PriorityNormal)
	if err != nil {
		t.Fatalf("DequeuePriority: %v", err)
	}
	if s.Metadata.Priority != chunk.PriorityNormal {
		t.Fatalf("expected normal shard, got %v", s.Metadata.Priority)
	}
	if _, err := q.DequeuePriority(chunk.PriorityNormal); err == nil {
		t.Fatal("expected QueueEmptyError for drained level")
	}
}

func TestRequeueFailsAtMaxRetries(t *testing.T) {
	q := NewQueue(10)
	s := shardAt(chunk.PriorityCritical, 0)
	err := q.Requeue(s, 5)
	if err == nil {
		t.Fatal("expected MaxRetriesExceededError")
	}
	if _, ok := err.(*MaxRetriesExceededError); !ok {
		t.Fatalf("expected *MaxRetriesExceededError, got %T", err)
	}
}

func TestRequeueSchedulesReEnqueue(t *testing.T) {
	q := NewQueue(10)
	s := shardAt(chunk.PriorityCritical, 7)
	if err := q.Requeue(s, 0); err != nil {
		t.Fatalf("Requeue: %v", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if used, _, _ := q.CapacityInfo(); used == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("requeued shard never reappeared in the queue")
}

func TestBackoffForDoubling(t *testing.T) {
	for retry := 0; retry < 5; retry++ {
		got := backoffFor(retry)
		want := time.Duration(100<<uint(retry)) * time.Millisecond
		if got != want {
			t.Errorf("backoffFor(%d) = %v, want %v", retry, got, want)
		}
	}
}

func TestCapacityInfo(t *testing.T) {
	q := NewQueue(4)
	for i := 0; i < 2; i++ {
		if err := q.Enqueue(shardAt(chunk.PriorityNormal, uint32(i))); err != nil {
			t.Fatal(err)
		}
	}
	used, available, util := q.CapacityInfo()
	if used != 2 || available != 2 || util != 50.0 {
		t.Fatalf("unexpected capacity info: used=%d available=%d util=%v", used, available, util)
	}
}
