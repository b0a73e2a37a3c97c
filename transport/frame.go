package transport

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/lzww0608/resilientfile/chunk"
	"github.com/lzww0608/resilientfile/internal/xmitpool"
)

// maxMetadataSize bounds the declared metadata length so a corrupt or
// hostile frame header cannot trigger an unbounded allocation.
const maxMetadataSize = 4096

// encodeMetadata serializes a chunk.Metadata record in a fixed field order:
// integers little-endian, FileID length-prefixed, checksums raw 32 bytes.
// Both peers must agree on this layout; there is no schema versioning byte
// because this project has exactly one schema. The returned buffer is
// pooled; callers must return it with xmitpool.PutMetadata once written.
func encodeMetadata(m chunk.Metadata) []byte {
	fileID := []byte(m.FileID)
	buf := xmitpool.GetMetadata()

	var tmp8 [8]byte
	var tmp4 [4]byte

	binary.LittleEndian.PutUint64(tmp8[:], m.ShardID)
	buf = append(buf, tmp8[:]...)

	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(fileID)))
	buf = append(buf, tmp4[:]...)
	buf = append(buf, fileID...)

	binary.LittleEndian.PutUint32(tmp4[:], m.SequenceNumber)
	buf = append(buf, tmp4[:]...)
	binary.LittleEndian.PutUint32(tmp4[:], m.Total)
	buf = append(buf, tmp4[:]...)
	binary.LittleEndian.PutUint32(tmp4[:], m.DataCount)
	buf = append(buf, tmp4[:]...)
	binary.LittleEndian.PutUint32(tmp4[:], m.Length)
	buf = append(buf, tmp4[:]...)

	buf = append(buf, m.Checksum[:]...)

	if m.IsParity {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	binary.LittleEndian.PutUint32(tmp4[:], uint32(m.Priority))
	buf = append(buf, tmp4[:]...)

	binary.LittleEndian.PutUint64(tmp8[:], m.FileSize)
	buf = append(buf, tmp8[:]...)

	buf = append(buf, m.FileChecksum[:]...)

	return buf
}

// decodeMetadata reverses encodeMetadata.
func decodeMetadata(b []byte) (chunk.Metadata, error) {
	var m chunk.Metadata

	read8 := func() (uint64, error) {
		if len(b) < 8 {
			return 0, errors.New("truncated metadata: expected 8 bytes")
		}
		v := binary.LittleEndian.Uint64(b[:8])
		b = b[8:]
		return v, nil
	}
	read4 := func() (uint32, error) {
		if len(b) < 4 {
			return 0, errors.New("truncated metadata: expected 4 bytes")
		}
		v := binary.LittleEndian.Uint32(b[:4])
		b = b[4:]
		return v, nil
	}

	shardID, err := read8()
	if err != nil {
		return m, err
	}
	m.ShardID = shardID

	fileIDLen, err := read4()
	if err != nil {
		return m, err
	}
	if uint32(len(b)) < fileIDLen {
		return m, errors.New("truncated metadata: file id")
	}
	m.FileID = string(b[:fileIDLen])
	b = b[fileIDLen:]

	seq, err := read4()
	if err != nil {
		return m, err
	}
	m.SequenceNumber = seq

	total, err := read4()
	if err != nil {
		return m, err
	}
	m.Total = total

	dc, err := read4()
	if err != nil {
		return m, err
	}
	m.DataCount = dc

	length, err := read4()
	if err != nil {
		return m, err
	}
	m.Length = length

	if len(b) < 32 {
		return m, errors.New("truncated metadata: checksum")
	}
	copy(m.Checksum[:], b[:32])
	b = b[32:]

	if len(b) < 1 {
		return m, errors.New("truncated metadata: is_parity")
	}
	m.IsParity = b[0] != 0
	b = b[1:]

	priority, err := read4()
	if err != nil {
		return m, err
	}
	m.Priority = chunk.Priority(priority)

	fileSize, err := read8()
	if err != nil {
		return m, err
	}
	m.FileSize = fileSize

	if len(b) < 32 {
		return m, errors.New("truncated metadata: file checksum")
	}
	copy(m.FileChecksum[:], b[:32])

	return m, nil
}
