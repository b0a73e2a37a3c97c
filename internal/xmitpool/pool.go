// Package xmitpool holds a system-wide byte-buffer pool shared across the
// transport layer's per-shard frame encoding, mitigating high-frequency
// allocation for the metadata buffers built and parsed on every shard sent
// or received. It mirrors the udpsess session layer's own xmitBuf pool for
// MTU-sized packet reads, sized instead for one shard's wire metadata.
package xmitpool

import "sync"

// metadataCap is the capacity new pooled buffers are allocated with. It
// matches the transport layer's maxMetadataSize so a single metadata frame
// never needs to grow a pooled buffer.
const metadataCap = 4096

var metadataPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, metadataCap)
		return &buf
	},
}

// GetMetadata returns a zero-length buffer with at least metadataCap
// capacity. Callers must return it via PutMetadata once done.
func GetMetadata() []byte {
	buf := metadataPool.Get().(*[]byte)
	return (*buf)[:0]
}

// PutMetadata returns buf to the pool. Callers must not use buf after this.
func PutMetadata(buf []byte) {
	metadataPool.Put(&buf)
}
