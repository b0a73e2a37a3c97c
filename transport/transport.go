// Package transport adapts the internal smux-over-UDP session layer into
// the per-shard frame contract the coordinator drives: one stream per
// shard, length-prefixed metadata followed by payload to end of stream.
package transport

import (
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/lzww0608/resilientfile/chunk"
	"github.com/lzww0608/resilientfile/internal/udpsess"
	"github.com/lzww0608/resilientfile/internal/xmitpool"
)

// MaxPayloadBytes bounds a single shard's payload to guard against a
// runaway allocation driven by a malformed or hostile frame.
const MaxPayloadBytes = 10 * 1024 * 1024

const initialBackoff = 100 * time.Millisecond

// Stream is one outbound shard's wire, a single smux stream in production.
type Stream interface {
	io.Writer
	io.Closer
}

// Opener hands out one independent Stream per shard over a shared session.
// Send and SendWithRetry depend only on this, not on *udpsess.Conn
// directly, so a test can substitute an in-process fake.
type Opener interface {
	OpenStream() (Stream, error)
}

// Conn is the session-level handle returned by Connect; it satisfies
// Opener by adapting udpsess.Conn's concrete *udpsess.Conn return into the
// Stream interface.
type Conn struct {
	inner *udpsess.Conn
}

func (c *Conn) OpenStream() (Stream, error) {
	s, err := c.inner.OpenStream()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close tears down the session's first stream, opened implicitly by Dial.
func (c *Conn) Close() error { return c.inner.Close() }

// Connect establishes the session-level connection to addr. Shards are
// subsequently sent over independent streams opened from the returned Conn.
func Connect(addr string, cfg *udpsess.Config) (*Conn, error) {
	conn, err := udpsess.Dial(addr, cfg)
	if err != nil {
		return nil, &ConnectionFailedError{Reason: err.Error()}
	}
	return &Conn{inner: conn}, nil
}

// Listen opens a server-side listener accepting one session per remote peer.
func Listen(addr string, cfg *udpsess.Config) (*udpsess.Listener, error) {
	return udpsess.Listen(addr, cfg)
}

// Accept blocks until a peer's session has its first stream ready.
func Accept(l *udpsess.Listener) (net.Conn, error) {
	return l.Accept()
}

// Send opens a new stream on conn's session, writes one shard's frame, and
// closes the stream so the receiver sees a clean EOF after the payload.
func Send(conn Opener, shard *chunk.Shard) error {
	stream, err := conn.OpenStream()
	if err != nil {
		return &ConnectionFailedError{Reason: err.Error()}
	}
	defer stream.Close()

	return writeFrame(stream, shard)
}

func writeFrame(w io.Writer, shard *chunk.Shard) error {
	meta := encodeMetadata(shard.Metadata)
	defer xmitpool.PutMetadata(meta)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(meta)))

	if _, err := w.Write(lenBuf[:]); err != nil {
		return &SendFailedError{Reason: err.Error()}
	}
	if _, err := w.Write(meta); err != nil {
		return &SendFailedError{Reason: err.Error()}
	}
	if _, err := w.Write(shard.Data); err != nil {
		return &SendFailedError{Reason: err.Error()}
	}
	return nil
}

// Receive reads one complete shard frame from an already-accepted stream,
// running to EOF for the payload.
func Receive(stream io.Reader) (*chunk.Shard, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(stream, lenBuf[:]); err != nil {
		return nil, &ReceiveFailedError{Reason: err.Error()}
	}
	metaLen := binary.BigEndian.Uint32(lenBuf[:])
	if metaLen > maxMetadataSize {
		return nil, &FrameTooLargeError{Declared: int(metaLen), Limit: maxMetadataSize}
	}

	metaBytes := xmitpool.GetMetadata()
	if cap(metaBytes) < int(metaLen) {
		metaBytes = make([]byte, metaLen)
	} else {
		metaBytes = metaBytes[:metaLen]
	}
	if _, err := io.ReadFull(stream, metaBytes); err != nil {
		return nil, &ReceiveFailedError{Reason: err.Error()}
	}
	meta, err := decodeMetadata(metaBytes)
	xmitpool.PutMetadata(metaBytes)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	limited := io.LimitReader(stream, MaxPayloadBytes+1)
	payload, err := io.ReadAll(limited)
	if err != nil {
		return nil, &ReceiveFailedError{Reason: err.Error()}
	}
	if len(payload) > MaxPayloadBytes {
		return nil, &FrameTooLargeError{Declared: len(payload), Limit: MaxPayloadBytes}
	}

	return &chunk.Shard{Metadata: meta, Data: payload}, nil
}

// SendWithRetry attempts Send up to maxAttempts times with exponential
// backoff starting at 100ms and doubling each attempt. It returns nil on
// the first success.
func SendWithRetry(conn Opener, shard *chunk.Shard, maxAttempts int) error {
	backoff := initialBackoff
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := Send(conn, shard)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return &MaxRetriesExceededError{Attempts: maxAttempts, LastErr: lastErr}
}
