// Package chunk implements the block codec: splitting a file into
// data shards, erasure-encoding them into data+parity shards, and
// reconstructing the original bytes from any sufficient subset.
package chunk

import "fmt"

// Priority totally orders a transfer's urgency. Critical is strictly
// preferred over High, which is strictly preferred over Normal.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Metadata describes one shard. It travels alongside the shard's bytes on
// the wire and in the session store.
type Metadata struct {
	ShardID        uint64
	FileID         string
	SequenceNumber uint32
	Total          uint32
	DataCount      uint32
	Length         uint32
	Checksum       [32]byte
	IsParity       bool
	Priority       Priority
	FileSize       uint64
	FileChecksum   [32]byte
}

// Shard is an immutable (metadata, bytes) pair produced by Split and
// consumed by Reconstruct.
type Shard struct {
	Metadata Metadata
	Data     []byte
}

// Manifest is the session-scoped descriptor needed to drive reconstruction.
type Manifest struct {
	FileID       string
	Filename     string
	FileSize     uint64
	ShardSize    int
	TotalShards  uint32
	DataShards   uint32
	ParityShards uint32
	Priority     Priority
	FileChecksum [32]byte

	// ReceiverAddr, when set, is persisted across resume so a network
	// transfer does not need the caller to re-supply the destination.
	ReceiverAddr string
}
