package udpsess

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/xtaci/smux"
)

// Listener demultiplexes one shared UDP socket into a smux session per
// remote peer, handing each caller of Accept an independent *Conn.
type Listener struct {
	pc       net.PacketConn
	config   *Config
	sessions sync.Map // remote.String() -> *datagramConn

	acceptCh chan *Conn
	die      chan struct{}
	dieOnce  sync.Once
}

func Listen(addr string, config *Config) (*Listener, error) {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	l := &Listener{
		pc:       pc,
		config:   config,
		acceptCh: make(chan *Conn, acceptBacklog),
		die:      make(chan struct{}),
	}
	go l.serve()
	return l, nil
}

// serve reads every inbound datagram off the shared socket and routes it to
// the per-remote-address datagramConn, spawning a new smux session the first
// time a remote address is seen.
func (l *Listener) serve() {
	for {
		buf := xmitBuf.Get().([]byte)
		n, remote, err := l.pc.ReadFrom(buf)
		if err != nil {
			xmitBuf.Put(buf) //nolint:staticcheck // buf still usable on error path
			return
		}

		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		xmitBuf.Put(buf)

		v, loaded := l.sessions.LoadOrStore(remote.String(), newDatagramConn(l.pc, remote))
		dc := v.(*datagramConn)
		if !loaded {
			go l.accept(dc)
		}
		dc.dispatch(pkt)
	}
}

func (l *Listener) accept(dc *datagramConn) {
	sess, err := smux.Server(dc, nil)
	if err != nil {
		return
	}
	stream, err := sess.AcceptStream()
	if err != nil {
		return
	}

	select {
	case l.acceptCh <- &Conn{stream: stream, sess: sess}:
	case <-l.die:
	}
}

func (l *Listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.acceptCh:
		return c, nil
	case <-l.die:
		return nil, errClosedListener
	}
}

func (l *Listener) Close() error {
	l.dieOnce.Do(func() { close(l.die) })
	return l.pc.Close()
}

func (l *Listener) Addr() net.Addr {
	return l.pc.LocalAddr()
}
