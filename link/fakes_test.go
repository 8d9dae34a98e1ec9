package link_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/frobware/go-pppring/helper"
	"github.com/frobware/go-pppring/sockets"
)

func testLogger() *slog.Logger {
	if os.Getenv("PPPRING_TEST_VERBOSE") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSpawner hands out increasing pids and marks them alive.
type fakeSpawner struct {
	mu      sync.Mutex
	procs   *fakeProcs
	nextPID int
	err     error
	calls   []helper.Command
}

func newFakeSpawner(procs *fakeProcs) *fakeSpawner {
	return &fakeSpawner{procs: procs, nextPID: 1000}
}

func (f *fakeSpawner) Spawn(cmd helper.Command) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	if f.err != nil {
		return 0, f.err
	}
	f.nextPID++
	f.procs.start(f.nextPID)
	return f.nextPID, nil
}

func (f *fakeSpawner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeProcs is a process table where Terminate kills immediately.
type fakeProcs struct {
	mu         sync.Mutex
	alive      map[int]bool
	terminated []int
}

func newFakeProcs() *fakeProcs {
	return &fakeProcs{alive: map[int]bool{}}
}

func (f *fakeProcs) start(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive[pid] = true
}

func (f *fakeProcs) kill(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.alive, pid)
}

func (f *fakeProcs) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func (f *fakeProcs) Terminate(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, pid)
	delete(f.alive, pid)
	return nil
}

func (f *fakeProcs) terminations() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.terminated...)
}

// fakeSockets returns fakeConns and remembers every binding.
type fakeSockets struct {
	mu       sync.Mutex
	sendErr  error
	recvErr  error
	sends    []sockets.Binding
	receives []sockets.Binding

	// onReceive runs after a receive socket is handed out.
	onReceive func()
}

func (f *fakeSockets) OpenSend(_ context.Context, b sockets.Binding) (net.PacketConn, *net.UDPAddr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, nil, f.sendErr
	}
	f.sends = append(f.sends, b)
	peer, err := b.PeerUDPAddr()
	if err != nil {
		return nil, nil, err
	}
	return &fakeConn{}, peer, nil
}

func (f *fakeSockets) OpenReceive(_ context.Context, b sockets.Binding) (net.PacketConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recvErr != nil {
		return nil, f.recvErr
	}
	f.receives = append(f.receives, b)
	if f.onReceive != nil {
		f.onReceive()
	}
	return &fakeConn{}, nil
}

type fakeConn struct {
	mu     sync.Mutex
	closed int
}

func (c *fakeConn) ReadFrom([]byte) (int, net.Addr, error) { return 0, nil, io.EOF }

func (c *fakeConn) WriteTo(p []byte, _ net.Addr) (int, error) { return len(p), nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	if c.closed > 1 {
		return errors.New("double close")
	}
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) LocalAddr() net.Addr { return &net.UDPAddr{} }
func (c *fakeConn) SetDeadline(time.Time) error { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
