package udpsess

import (
	"net"
	"testing"
	"time"
)

type stubPacketConn struct {
	local net.Addr
}

func (s *stubPacketConn) ReadFrom(p []byte) (int, net.Addr, error) { return 0, nil, nil }
func (s *stubPacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	return len(p), nil
}
func (s *stubPacketConn) Close() error                       { return nil }
func (s *stubPacketConn) LocalAddr() net.Addr                { return s.local }
func (s *stubPacketConn) SetDeadline(t time.Time) error      { return nil }
func (s *stubPacketConn) SetReadDeadline(t time.Time) error  { return nil }
func (s *stubPacketConn) SetWriteDeadline(t time.Time) error { return nil }

func testAddr(port int) net.Addr {
	return &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}
}

func TestDatagramConnDispatchAndRead(t *testing.T) {
	pc := &stubPacketConn{local: testAddr(9000)}
	dc := newDatagramConn(pc, testAddr(9001))

	dc.dispatch([]byte("hello"))

	buf := make([]byte, 16)
	n, err := dc.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("got %q, want %q", buf[:n], "hello")
	}
}

func TestDatagramConnReadDeadline(t *testing.T) {
	pc := &stubPacketConn{local: testAddr(9000)}
	dc := newDatagramConn(pc, testAddr(9001))

	if err := dc.SetReadDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}

	buf := make([]byte, 16)
	_, err := dc.Read(buf)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	nerr, ok := err.(net.Error)
	if !ok || !nerr.Timeout() {
		t.Fatalf("expected a timeout net.Error, got %v", err)
	}
}

func TestDatagramConnWrite(t *testing.T) {
	pc := &stubPacketConn{local: testAddr(9000)}
	dc := newDatagramConn(pc, testAddr(9001))

	n, err := dc.Write([]byte("payload"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len("payload") {
		t.Fatalf("wrote %d bytes, want %d", n, len("payload"))
	}
}

func TestDatagramConnCloseUnblocksRead(t *testing.T) {
	pc := &stubPacketConn{local: testAddr(9000)}
	dc := newDatagramConn(pc, testAddr(9001))

	done := make(chan error, 1)
	go func() {
		_, err := dc.Read(make([]byte, 8))
		done <- err
	}()

	time.Sleep(5 * time.Millisecond)
	_ = dc.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error after close")
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock after Close")
	}
}

func TestDialListenRoundTrip(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	addr := ln.Addr().String()

	acceptErr := make(chan error, 1)
	var serverConn net.Conn
	go func() {
		c, err := ln.Accept()
		serverConn = c
		acceptErr <- err
	}()

	client, err := Dial(addr, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatalf("client write: %v", err)
	}

	if err := <-acceptErr; err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer serverConn.Close()

	buf := make([]byte, 8)
	_ = serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := serverConn.Read(buf)
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("got %q, want %q", buf[:n], "ping")
	}
}
