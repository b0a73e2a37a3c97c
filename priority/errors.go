package priority

import (
	"fmt"

	"github.com/lzww0608/resilientfile/chunk"
)

// QueueFullError is returned by Enqueue when the queue is already at
// capacity.
type QueueFullError struct {
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("queue full: capacity %d", e.Capacity)
}

// QueueEmptyError is returned by Dequeue/Peek when no shard is pending.
type QueueEmptyError struct{}

func (e *QueueEmptyError) Error() string { return "queue empty" }

// MaxRetriesExceededError is returned by Requeue once a shard's retry count
// reaches the retry budget.
type MaxRetriesExceededError struct {
	ShardID uint64
	Retries int
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("shard %d exceeded max retries (%d)", e.ShardID, e.Retries)
}

// InvalidPriorityError is returned when a caller names a priority level the
// queue does not recognize.
type InvalidPriorityError struct {
	Priority chunk.Priority
}

func (e *InvalidPriorityError) Error() string {
	return fmt.Sprintf("invalid priority: %v", e.Priority)
}
