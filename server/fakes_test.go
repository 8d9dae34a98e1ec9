package server_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/frobware/go-pppring/hamsg"
	"github.com/frobware/go-pppring/helper"
	"github.com/frobware/go-pppring/sockets"
	"github.com/frobware/go-pppring/status"
)

// testLogger returns a logger for tests. By default it discards all output.
// Set PPPRING_TEST_VERBOSE=1 to enable logging.
func testLogger() *slog.Logger {
	if os.Getenv("PPPRING_TEST_VERBOSE") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeHelpers spawns helpers whose links come up at once, and doubles
// as the process table.
type fakeHelpers struct {
	mu         sync.Mutex
	dir        string
	nextPID    int
	alive      map[int]bool
	terminated []int
}

func newFakeHelpers(dir string) *fakeHelpers {
	return &fakeHelpers{dir: dir, nextPID: 4000, alive: map[int]bool{}}
}

func (f *fakeHelpers) Spawn(cmd helper.Command) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPID++
	pid := f.nextPID
	f.alive[pid] = true
	return pid, status.Write(status.Path(f.dir, cmd.Device), status.Artifact{
		PeerAddr:  "10.0.0.2",
		Interface: "ppp0",
		PID:       pid,
		LocalAddr: cmd.LocalAddr,
	})
}

func (f *fakeHelpers) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func (f *fakeHelpers) Terminate(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.alive, pid)
	f.terminated = append(f.terminated, pid)
	return nil
}

func (f *fakeHelpers) running() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alive)
}

// fakeSockets keeps one send and one receive conn per device.
type fakeSockets struct {
	mu         sync.Mutex
	send       map[string]*fakeConn
	recv       map[string]*fakeConn
	receiveErr error
}

func newFakeSockets() *fakeSockets {
	return &fakeSockets{send: map[string]*fakeConn{}, recv: map[string]*fakeConn{}}
}

func (f *fakeSockets) conn(m map[string]*fakeConn, device string) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := m[device]
	if !ok {
		c = newFakeConn()
		m[device] = c
	}
	return c
}

func (f *fakeSockets) sendConn(device string) *fakeConn { return f.conn(f.send, device) }
func (f *fakeSockets) recvConn(device string) *fakeConn { return f.conn(f.recv, device) }

func (f *fakeSockets) OpenSend(_ context.Context, b sockets.Binding) (net.PacketConn, *net.UDPAddr, error) {
	c := f.sendConn(b.Device)
	c.reopen()
	peer, err := b.PeerUDPAddr()
	return c, peer, err
}

func (f *fakeSockets) OpenReceive(_ context.Context, b sockets.Binding) (net.PacketConn, error) {
	f.mu.Lock()
	err := f.receiveErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c := f.recvConn(b.Device)
	c.reopen()
	return c, nil
}

type fakeConn struct {
	mu       sync.Mutex
	closed   bool
	deadline time.Time
	sent     [][]byte
	reads    chan []byte
}

func newFakeConn() *fakeConn { return &fakeConn{reads: make(chan []byte, 16)} }

func (c *fakeConn) reopen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = false
}

func (c *fakeConn) deliver(t *testing.T, m *hamsg.Message) {
	t.Helper()
	data, err := hamsg.Encode(m)
	require.NoError(t, err)
	c.reads <- data
}

func (c *fakeConn) messages(t *testing.T) []*hamsg.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*hamsg.Message
	for _, data := range c.sent {
		m, err := hamsg.Decode(data)
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) WriteTo(p []byte, _ net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	c.sent = append(c.sent, append([]byte(nil), p...))
	return len(p), nil
}

func (c *fakeConn) ReadFrom(p []byte) (int, net.Addr, error) {
	c.mu.Lock()
	deadline, closed := c.deadline, c.closed
	c.mu.Unlock()
	if closed {
		return 0, nil, net.ErrClosed
	}
	t := time.NewTimer(time.Until(deadline))
	defer t.Stop()
	select {
	case data := <-c.reads:
		return copy(p, data), &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 694}, nil
	case <-t.C:
		return 0, nil, os.ErrDeadlineExceeded
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) LocalAddr() net.Addr { return &net.UDPAddr{} }

func (c *fakeConn) SetDeadline(t time.Time) error { return c.SetReadDeadline(t) }

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	return nil
}
