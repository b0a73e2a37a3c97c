package udpsess

import (
	"net"

	"github.com/pkg/errors"
	"github.com/xtaci/smux"
)

// Config tunes the socket and stream-multiplexer underneath a Conn. Transport
// callers construct one per endpoint; the zero value is usable.
type Config struct {
	// SendBuffer / RecvBuffer set the OS socket buffer sizes (bytes); zero
	// leaves the OS default.
	SendBuffer int
	RecvBuffer int
}

func applyBuffers(conn net.Conn, config *Config) {
	if config == nil {
		return
	}
	uc, ok := conn.(*net.UDPConn)
	if !ok {
		return
	}
	if config.SendBuffer > 0 {
		_ = uc.SetWriteBuffer(config.SendBuffer)
	}
	if config.RecvBuffer > 0 {
		_ = uc.SetReadBuffer(config.RecvBuffer)
	}
}

// Dial opens one smux session over a freshly connected UDP socket and
// returns its sole outbound stream. Transport adapters that need one stream
// per shard call Dial once per session and then OpenStream again on the
// returned Conn's underlying session for subsequent shards.
func Dial(addr string, config *Config) (*Conn, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	applyBuffers(conn, config)

	session, err := smux.Client(conn, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	stream, err := session.OpenStream()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &Conn{stream: stream, sess: session}, nil
}
