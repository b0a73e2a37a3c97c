package udpsess

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
)

const batchSize = 16

// batchConn is implemented by platforms whose net.PacketConn also exposes a
// syscall-level batched read/write path (golang.org/x/net/ipv4 on Linux).
type batchConn interface {
	WriteBatch(ms []ipv4.Message, flags int) (int, error)
	ReadBatch(ms []ipv4.Message, flags int) (int, error)
}

// datagramConn adapts one remote peer's slice of a shared net.PacketConn into
// a net.Conn, so that a single listening UDP socket can serve many
// independent smux sessions the way Listener's accept loop demultiplexes by
// remote address.
type datagramConn struct {
	pc     net.PacketConn
	xconn  batchConn
	remote net.Addr

	in      chan []byte
	die     chan struct{}
	dieOnce sync.Once

	mu sync.Mutex
	rd time.Time
	wd time.Time

	writeErrorOnce sync.Once
	writeError     error
}

func newDatagramConn(pc net.PacketConn, remote net.Addr) *datagramConn {
	c := &datagramConn{
		pc:     pc,
		remote: remote,
		in:     make(chan []byte, batchSize),
		die:    make(chan struct{}),
	}
	if xc, ok := pc.(batchConn); ok {
		c.xconn = xc
	}
	return c
}

// dispatch is called by the listener's read loop for every datagram that
// arrived from this peer.
func (c *datagramConn) dispatch(b []byte) {
	select {
	case c.in <- b:
	case <-c.die:
	default:
		// receiver is behind; drop rather than block the shared read loop
		atomic.AddUint64(&DefaultSnmp.InErrs, 1)
	}
}

func (c *datagramConn) Read(b []byte) (int, error) {
	c.mu.Lock()
	rd := c.rd
	c.mu.Unlock()

	timer := deadlineTimer(rd)
	if timer != nil {
		defer timer.Stop()
	}

	var timerC <-chan time.Time
	if timer != nil {
		timerC = timer.C
	}

	select {
	case pkt, ok := <-c.in:
		if !ok {
			return 0, errors.WithStack(net.ErrClosed)
		}
		n := copy(b, pkt)
		atomic.AddUint64(&DefaultSnmp.InPkts, 1)
		atomic.AddUint64(&DefaultSnmp.InBytes, uint64(n))
		return n, nil
	case <-timerC:
		return 0, timeoutError{}
	case <-c.die:
		return 0, errors.WithStack(net.ErrClosed)
	}
}

func (c *datagramConn) Write(b []byte) (int, error) {
	msg := ipv4.Message{Buffers: [][]byte{b}, Addr: c.remote}
	if err := c.tx(msg); err != nil {
		return 0, err
	}
	return len(b), nil
}

// tx picks the batched syscall path when available, falling back to a plain
// WriteTo otherwise; this mirrors how the encoder/worker pipeline elsewhere
// prefers the batched path but never depends on it being present.
func (c *datagramConn) tx(msg ipv4.Message) error {
	if c.xconn != nil {
		if _, err := c.xconn.WriteBatch([]ipv4.Message{msg}, 0); err == nil {
			atomic.AddUint64(&DefaultSnmp.OutPkts, 1)
			atomic.AddUint64(&DefaultSnmp.OutBytes, uint64(len(msg.Buffers[0])))
			return nil
		}
	}

	n, err := c.pc.WriteTo(msg.Buffers[0], msg.Addr)
	if err != nil {
		c.notifyWriteError(errors.WithStack(err))
		return err
	}
	atomic.AddUint64(&DefaultSnmp.OutPkts, 1)
	atomic.AddUint64(&DefaultSnmp.OutBytes, uint64(n))
	return nil
}

func (c *datagramConn) notifyWriteError(err error) {
	c.writeErrorOnce.Do(func() {
		c.writeError = err
	})
}

func (c *datagramConn) Close() error {
	c.dieOnce.Do(func() { close(c.die) })
	return nil
}

func (c *datagramConn) LocalAddr() net.Addr  { return c.pc.LocalAddr() }
func (c *datagramConn) RemoteAddr() net.Addr { return c.remote }

func (c *datagramConn) SetDeadline(t time.Time) error {
	c.mu.Lock()
	c.rd, c.wd = t, t
	c.mu.Unlock()
	return nil
}

func (c *datagramConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.rd = t
	c.mu.Unlock()
	return nil
}

func (c *datagramConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	c.wd = t
	c.mu.Unlock()
	return nil
}
