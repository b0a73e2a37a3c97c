package chunk

import "sync/atomic"

var shardIDCounter uint64

// nextShardID hands out a process-lifetime-unique shard id. Atomic
// increment is sufficient: the invariant only requires uniqueness within
// one running process, not durability across restarts.
func nextShardID() uint64 {
	return atomic.AddUint64(&shardIDCounter, 1)
}
