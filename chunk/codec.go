package chunk

import (
	"os"
	"sort"

	"github.com/klauspost/reedsolomon"
	"github.com/pkg/errors"

	"github.com/lzww0608/resilientfile/integrity"
)

// Codec splits files into data shards and erasure-encodes them into
// data+parity shards over GF(2^8), and reverses the process on decode.
type Codec struct {
	shardSize    int
	dataShards   int
	parityShards int

	// smallFileThresholdNum/Den express the "K < D/2" adaptive-sizing
	// threshold as a fraction; defaults to 1/2 per the design note but is
	// tunable.
	smallFileThresholdNum int
	smallFileThresholdDen int
}

// Option configures a Codec at construction.
type Option func(*Codec)

// WithSmallFileThreshold overrides the K < D*num/den adaptive-sizing rule.
func WithSmallFileThreshold(num, den int) Option {
	return func(c *Codec) {
		c.smallFileThresholdNum = num
		c.smallFileThresholdDen = den
	}
}

// New builds a Codec for the given shard size and (data, parity) shard
// counts, used as the default for files large enough not to trigger
// adaptive sizing.
func New(shardSize, dataShards, parityShards int, opts ...Option) (*Codec, error) {
	if dataShards <= 0 || parityShards <= 0 {
		return nil, &InvalidShardSizeError{Reason: "data and parity shard counts must be > 0"}
	}
	c := &Codec{
		shardSize:             shardSize,
		dataShards:            dataShards,
		parityShards:          parityShards,
		smallFileThresholdNum: 1,
		smallFileThresholdDen: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// OptimalShardSize implements the deterministic loss/RTT -> shard size
// table: loss>10% or rtt>200ms -> 64KiB; loss>5% or rtt>100ms -> 256KiB;
// otherwise 1MiB.
func OptimalShardSize(rttMS int, lossRate float64) int {
	switch {
	case rttMS > 200 || lossRate > 0.10:
		return 64 * 1024
	case rttMS > 100 || lossRate > 0.05:
		return 256 * 1024
	default:
		return 1024 * 1024
	}
}

// Split reads filePath fully, computes its file-level checksum, breaks it
// into data shards of c.shardSize bytes (the last may be shorter), and
// erasure-encodes the result into the manifest's chosen (D, P). A file that
// would need more than D blocks at c.shardSize is instead split into at most
// D blocks of ceil(size/D) bytes, and the manifest's ShardSize reports that
// larger size.
//
// Adaptive sizing: when the actual data-shard count K falls below
// D * threshold, the codec narrows to (K, ceil(K*P/D)) with a floor of one
// parity shard, so a small file is not padded out with empty shards.
func (c *Codec) Split(filePath, fileID string, priority Priority) (*Manifest, []*Shard, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}

	fileChecksum := integrity.Hash(data)
	fileSize := uint64(len(data))

	dataBlocks := splitBytes(data, c.shardSize)
	k := len(dataBlocks)
	if k == 0 {
		dataBlocks = [][]byte{{}}
		k = 1
	}
	if k > c.dataShards {
		// More blocks than data shards: widen each block so the whole file
		// fits in the configured D shards instead of dropping the tail.
		dataBlocks = splitBytes(data, (len(data)+c.dataShards-1)/c.dataShards)
		k = len(dataBlocks)
	}

	origD, origP := c.dataShards, c.parityShards
	d, p := origD, origP
	if k < origD*c.smallFileThresholdNum/c.smallFileThresholdDen {
		p = (k*origP + origD - 1) / origD // ceil(K*P/D) against the configured D
		if p < 1 {
			p = 1
		}
		d = k
	}

	enc, err := reedsolomon.New(d, p)
	if err != nil {
		return nil, nil, &ErasureCodingError{Reason: err.Error()}
	}

	shardSize := 0
	for _, b := range dataBlocks {
		if len(b) > shardSize {
			shardSize = len(b)
		}
	}

	shards := make([][]byte, d+p)
	for i := 0; i < d; i++ {
		shard := make([]byte, shardSize)
		if i < len(dataBlocks) {
			copy(shard, dataBlocks[i])
		}
		shards[i] = shard
	}
	for i := d; i < d+p; i++ {
		shards[i] = make([]byte, shardSize)
	}

	if err := enc.Encode(shards); err != nil {
		return nil, nil, &ErasureCodingError{Reason: err.Error()}
	}

	out := make([]*Shard, d+p)
	for i, sb := range shards {
		out[i] = &Shard{
			Metadata: Metadata{
				ShardID:        nextShardID(),
				FileID:         fileID,
				SequenceNumber: uint32(i),
				Total:          uint32(d + p),
				DataCount:      uint32(d),
				Length:         uint32(len(sb)),
				Checksum:       integrity.Hash(sb),
				IsParity:       i >= d,
				Priority:       priority,
				FileSize:       fileSize,
				FileChecksum:   fileChecksum,
			},
			Data: sb,
		}
	}

	manifest := &Manifest{
		FileID:       fileID,
		Filename:     baseName(filePath),
		FileSize:     fileSize,
		ShardSize:    shardSize,
		TotalShards:  uint32(d + p),
		DataShards:   uint32(d),
		ParityShards: uint32(p),
		Priority:     priority,
		FileChecksum: fileChecksum,
	}

	return manifest, out, nil
}

// Reconstruct rebuilds the original file from any >= D survivors and writes
// it to outPath. The manifest supplies (D, P): the sender may have used
// adaptive sizing, so the codec never assumes its own configured counts.
func Reconstruct(manifest *Manifest, survivors []*Shard, outPath string) error {
	d := int(manifest.DataShards)
	p := int(manifest.ParityShards)

	if len(survivors) < d {
		return &InsufficientShardsError{Needed: d, Available: len(survivors)}
	}

	sort.Slice(survivors, func(i, j int) bool {
		return survivors[i].Metadata.SequenceNumber < survivors[j].Metadata.SequenceNumber
	})

	shardSlots := make([][]byte, d+p)
	for _, s := range survivors {
		seq := int(s.Metadata.SequenceNumber)
		if seq >= len(shardSlots) {
			continue
		}
		if err := integrity.VerifyShard(s.Data, s.Metadata.Checksum); err != nil {
			continue // drop a shard that fails its own integrity check
		}
		shardSlots[seq] = s.Data
	}

	present := 0
	for _, s := range shardSlots {
		if s != nil {
			present++
		}
	}
	if present < d {
		return &InsufficientShardsError{Needed: d, Available: present}
	}

	enc, err := reedsolomon.New(d, p)
	if err != nil {
		return &ErasureCodingError{Reason: err.Error()}
	}
	if err := enc.Reconstruct(shardSlots); err != nil {
		return &ErasureCodingError{Reason: err.Error()}
	}

	f, err := os.Create(outPath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	var written uint64
	hasher := integrity.NewStreamHasher()
	for i := 0; i < d && written < manifest.FileSize; i++ {
		remaining := manifest.FileSize - written
		block := shardSlots[i]
		toWrite := uint64(len(block))
		if toWrite > remaining {
			toWrite = remaining
		}
		if toWrite == 0 {
			continue
		}
		if _, err := f.Write(block[:toWrite]); err != nil {
			return errors.WithStack(err)
		}
		hasher.Write(block[:toWrite])
		written += toWrite
	}

	zero := [32]byte{}
	if manifest.FileChecksum != zero {
		if hasher.Sum() != manifest.FileChecksum {
			return &ChecksumMismatchError{FileID: manifest.FileID}
		}
	}
	return nil
}

func splitBytes(data []byte, shardSize int) [][]byte {
	if shardSize <= 0 {
		shardSize = len(data)
		if shardSize == 0 {
			return nil
		}
	}
	var blocks [][]byte
	for offset := 0; offset < len(data); offset += shardSize {
		end := offset + shardSize
		if end > len(data) {
			end = len(data)
		}
		blocks = append(blocks, data[offset:end])
	}
	return blocks
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
