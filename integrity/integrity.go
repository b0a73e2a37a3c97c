// Package integrity provides BLAKE3-256 hashing and verification for
// shards and whole files, plus manifest/metadata sanity checks. The block
// codec calls VerifyShard on each shard before it trusts it.
package integrity

import (
	"bufio"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

const streamBufSize = 8192

// Hash returns the BLAKE3-256 digest of data.
func Hash(data []byte) [32]byte {
	h := blake3.New()
	h.Write(data) //nolint:errcheck // hash.Hash.Write never errors
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashFile streams a file through BLAKE3 in 8 KiB chunks rather than
// reading it fully into memory.
func HashFile(path string) ([32]byte, error) {
	var zero [32]byte

	f, err := os.Open(path)
	if err != nil {
		return zero, errors.WithStack(err)
	}
	defer f.Close()

	h := blake3.New()
	r := bufio.NewReaderSize(f, streamBufSize)
	buf := make([]byte, streamBufSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n]) //nolint:errcheck
		}
		if rerr != nil {
			break
		}
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// StreamHasher accumulates BLAKE3 over bytes written across multiple
// calls, used by the block codec while it streams a reconstructed file to
// disk so the whole file need not be buffered twice.
type StreamHasher struct {
	h *blake3.Hasher
}

// NewStreamHasher returns a ready-to-use streaming BLAKE3 hasher.
func NewStreamHasher() *StreamHasher {
	return &StreamHasher{h: blake3.New()}
}

func (s *StreamHasher) Write(p []byte) {
	s.h.Write(p) //nolint:errcheck // hash.Hash.Write never errors
}

// Sum returns the digest of everything written so far without resetting
// the hasher.
func (s *StreamHasher) Sum() [32]byte {
	var out [32]byte
	copy(out[:], s.h.Sum(nil))
	return out
}

// VerifyShard recomputes data's BLAKE3 and compares it to checksum. It
// takes plain values rather than a chunk.Shard so this package stays free
// of a dependency on chunk, which itself depends on integrity for hashing.
func VerifyShard(data []byte, checksum [32]byte) error {
	calculated := Hash(data)
	if calculated != checksum {
		return &ChecksumMismatchError{Expected: checksum, Actual: calculated}
	}
	return nil
}

// ShardDigest is the minimal per-shard information VerifyBatch needs to
// verify one shard and report which one failed. Callers that hold a
// chunk.Shard build one of these from its ShardID, SequenceNumber, Data,
// and Metadata.Checksum fields.
type ShardDigest struct {
	ShardID        uint64
	SequenceNumber uint32
	Data           []byte
	Checksum       [32]byte
}

// FailedShard records why one shard in a batch failed verification.
type FailedShard struct {
	Index          int
	ShardID        uint64
	SequenceNumber uint32
	Reason         string
}

// BatchSummary is the result of verifying a whole batch of shards.
type BatchSummary struct {
	Total       int
	Passed      int
	Failed      int
	SuccessRate float64
	FailedShard []FailedShard
}

func (s *BatchSummary) AllPassed() bool   { return s.Failed == 0 }
func (s *BatchSummary) HasFailures() bool { return s.Failed > 0 }

// VerifyBatch verifies every shard in parallel, with a degree of
// parallelism equal to GOMAXPROCS, mirroring the original's
// num_cpus-bounded fan-out.
func VerifyBatch(shards []ShardDigest) (*BatchSummary, error) {
	if len(shards) == 0 {
		return &BatchSummary{}, nil
	}

	results := make([]error, len(shards))
	var g errgroup.Group
	g.SetLimit(numCPU())

	for i, s := range shards {
		i, s := i, s
		g.Go(func() error {
			results[i] = VerifyShard(s.Data, s.Checksum)
			return nil
		})
	}
	_ = g.Wait() // VerifyShard never returns an error from g.Go itself

	summary := &BatchSummary{Total: len(shards)}
	for i, err := range results {
		if err == nil {
			summary.Passed++
			continue
		}
		summary.Failed++
		summary.FailedShard = append(summary.FailedShard, FailedShard{
			Index:          i,
			ShardID:        shards[i].ShardID,
			SequenceNumber: shards[i].SequenceNumber,
			Reason:         err.Error(),
		})
	}
	summary.SuccessRate = float64(summary.Passed) / float64(summary.Total) * 100
	return summary, nil
}

// MetadataDigest is the subset of shard metadata VerifyMetadata
// sanity-checks, decoupled from chunk.Metadata for the same reason
// ShardDigest is decoupled from chunk.Shard.
type MetadataDigest struct {
	ShardID        uint64
	SequenceNumber uint32
	Total          uint32
	Length         uint32
}

// VerifyMetadata enforces sequence < total and length > 0.
func VerifyMetadata(m MetadataDigest) error {
	if m.SequenceNumber >= m.Total {
		return &VerificationFailedError{
			ShardID: m.ShardID,
			Reason:  fmt.Sprintf("sequence number %d >= total %d", m.SequenceNumber, m.Total),
		}
	}
	if m.Length == 0 {
		return &VerificationFailedError{ShardID: m.ShardID, Reason: "length is zero"}
	}
	return nil
}

// ManifestDigest is the subset of manifest fields VerifyManifest
// sanity-checks, decoupled from chunk.Manifest for the same reason
// ShardDigest is decoupled from chunk.Shard.
type ManifestDigest struct {
	TotalShards  uint32
	DataShards   uint32
	ParityShards uint32
	ShardSize    int
	FileSize     uint64
}

// VerifyManifest enforces total = D+P and file_size <= D*shard_size + shard_size.
func VerifyManifest(m ManifestDigest) error {
	if m.TotalShards != m.DataShards+m.ParityShards {
		return &VerificationFailedError{Reason: fmt.Sprintf(
			"total shards %d != data %d + parity %d", m.TotalShards, m.DataShards, m.ParityShards)}
	}
	expected := uint64(m.DataShards) * uint64(m.ShardSize)
	if m.FileSize > expected+uint64(m.ShardSize) {
		return &VerificationFailedError{Reason: fmt.Sprintf(
			"file size %d inconsistent with %d shards of size %d", m.FileSize, m.DataShards, m.ShardSize)}
	}
	return nil
}
