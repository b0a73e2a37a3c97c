package transport

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/lzww0608/resilientfile/chunk"
)

func TestSendReceiveRoundTripOverLoopback(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	acceptErr := make(chan error, 1)
	go func() {
		c, err := Accept(ln)
		acceptCh <- c
		acceptErr <- err
	}()

	client, err := Connect(ln.Addr().String(), nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	shard := &chunk.Shard{
		Metadata: chunk.Metadata{FileID: "f1", SequenceNumber: 0, Total: 1, Length: 5},
		Data:     []byte("hello"),
	}
	if err := Send(client, shard); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := <-acceptErr; err != nil {
		t.Fatalf("Accept: %v", err)
	}
	serverConn := <-acceptCh
	defer serverConn.Close()
	_ = serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))

	got, err := Receive(serverConn)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got.Metadata.FileID != "f1" || string(got.Data) != "hello" {
		t.Fatalf("unexpected shard: %+v data=%q", got.Metadata, got.Data)
	}
}

// nopStream discards writes and never errors, used to test the success path
// of Send without a real socket.
type nopStream struct{ bytes.Buffer }

func (s *nopStream) Close() error { return nil }

type alwaysOpens struct{}

func (alwaysOpens) OpenStream() (Stream, error) { return &nopStream{}, nil }

func TestSendSucceedsWithFakeOpener(t *testing.T) {
	if err := Send(alwaysOpens{}, &chunk.Shard{Metadata: chunk.Metadata{FileID: "x"}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

// neverOpens simulates a session that can never produce a new stream,
// exercising SendWithRetry's exhaustion path without a live socket.
type neverOpens struct{}

var errNoStream = errors.New("no stream available")

func (neverOpens) OpenStream() (Stream, error) { return nil, errNoStream }

func TestSendWithRetryExhaustsAttempts(t *testing.T) {
	start := time.Now()
	err := SendWithRetry(neverOpens{}, &chunk.Shard{}, 2)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected MaxRetriesExceededError")
	}
	if _, ok := err.(*MaxRetriesExceededError); !ok {
		t.Fatalf("expected *MaxRetriesExceededError, got %T: %v", err, err)
	}
	// one 100ms backoff between the two attempts, not after the last one.
	if elapsed < 90*time.Millisecond {
		t.Fatalf("expected at least one backoff sleep, elapsed only %v", elapsed)
	}
}

// flakyOpener fails its first N OpenStream calls, then succeeds.
type flakyOpener struct{ failuresLeft int }

func (f *flakyOpener) OpenStream() (Stream, error) {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, errNoStream
	}
	return &nopStream{}, nil
}

func TestSendWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	opener := &flakyOpener{failuresLeft: 2}
	if err := SendWithRetry(opener, &chunk.Shard{}, 5); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
}
