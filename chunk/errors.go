package chunk

import "fmt"

// InsufficientShardsError is returned by Reconstruct when fewer than the
// manifest's data-shard count survived.
type InsufficientShardsError struct {
	Needed    int
	Available int
}

func (e *InsufficientShardsError) Error() string {
	return fmt.Sprintf("insufficient shards: needed %d, available %d", e.Needed, e.Available)
}

// ChecksumMismatchError is returned when a reconstructed file's BLAKE3 does
// not match the manifest's file_checksum.
type ChecksumMismatchError struct {
	FileID string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for file %q", e.FileID)
}

// ErasureCodingError wraps a failure from the underlying Reed-Solomon codec.
type ErasureCodingError struct {
	Reason string
}

func (e *ErasureCodingError) Error() string {
	return fmt.Sprintf("erasure coding: %s", e.Reason)
}

// InvalidShardSizeError is returned by New when the data or parity shard
// count is not positive.
type InvalidShardSizeError struct {
	Reason string
}

func (e *InvalidShardSizeError) Error() string {
	return fmt.Sprintf("invalid shard size: %s", e.Reason)
}
