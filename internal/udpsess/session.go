package udpsess

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	// maximum packet size carried by the underlying datagram socket
	mtuLimit = 1500

	// accept backlog for the listener's pending-connection channel
	acceptBacklog = 128
)

var (
	errInvalidOperation = errors.New("invalid operation")
	errTimeout          = errors.New("timeout")
	errClosedListener   = errors.New("listener closed")
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// xmitBuf is a system-wide packet buffer pool shared among every datagramConn,
// mitigating high-frequency allocation for the MTU-sized read buffers used
// while demultiplexing inbound packets by remote address.
var xmitBuf sync.Pool

func init() {
	xmitBuf.New = func() any {
		return make([]byte, mtuLimit)
	}
}

// deadlineTimer turns a time.Time deadline into a timer channel, returning
// nil (never fires) for the zero value, matching net.Conn deadline semantics.
func deadlineTimer(t time.Time) *time.Timer {
	if t.IsZero() {
		return nil
	}
	d := time.Until(t)
	if d <= 0 {
		d = 0
	}
	return time.NewTimer(d)
}
