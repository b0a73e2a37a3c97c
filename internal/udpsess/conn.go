package udpsess

import (
	"net"
	"time"

	"github.com/xtaci/smux"
)

type Conn struct {
	// point to the underlying smux stream
	stream *smux.Stream
	// point to the parent session
	sess *smux.Session
}

// OpenStream opens another independent stream on the same underlying
// session, letting a caller ship one shard per stream without paying for a
// new socket and smux handshake each time.
func (c *Conn) OpenStream() (*Conn, error) {
	stream, err := c.sess.OpenStream()
	if err != nil {
		return nil, err
	}
	return &Conn{stream: stream, sess: c.sess}, nil
}

func (c *Conn) Read(b []byte) (int, error) {
	return c.stream.Read(b)
}

func (c *Conn) Write(b []byte) (int, error) {
	return c.stream.Write(b)
}

func (c *Conn) Close() error {
	return c.stream.Close()
}

func (c *Conn) LocalAddr() net.Addr {
	return c.sess.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.sess.RemoteAddr()
}

func (c *Conn) SetDeadline(t time.Time) error {
	return c.stream.SetDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.stream.SetReadDeadline(t)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.stream.SetWriteDeadline(t)
}
