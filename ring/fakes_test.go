package ring_test

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

	"github.com/frobware/go-pppring"
	"github.com/frobware/go-pppring/hamsg"
	"github.com/frobware/go-pppring/helper"
	"github.com/frobware/go-pppring/link"
	"github.com/frobware/go-pppring/ring"
	"github.com/frobware/go-pppring/sockets"
	"github.com/frobware/go-pppring/status"
)

func testLogger() *slog.Logger {
	if os.Getenv("PPPRING_TEST_VERBOSE") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// instantHelper spawns helpers whose link is up immediately: the status
// artifact is written as part of the spawn.
type instantHelper struct {
	mu      sync.Mutex
	dir     string
	procs   *fakeProcs
	nextPID int
	down    bool
	spawned int
}

func (h *instantHelper) Spawn(cmd helper.Command) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.spawned++
	h.nextPID++
	pid := h.nextPID
	h.procs.start(pid)
	if h.down {
		return pid, nil
	}
	err := status.Write(status.Path(h.dir, cmd.Device), status.Artifact{
		PeerAddr:  "10.0.0.2",
		Interface: "ppp0",
		PID:       pid,
		LocalAddr: cmd.LocalAddr,
	})
	return pid, err
}

func (h *instantHelper) spawns() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.spawned
}

type fakeProcs struct {
	mu         sync.Mutex
	alive      map[int]bool
	terminated []int
}

func newFakeProcs() *fakeProcs { return &fakeProcs{alive: map[int]bool{}} }

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

// fakeSockets hands every device the same pair of scripted conns for
// the life of the test, reopening them after a close.
type fakeSockets struct {
	mu    sync.Mutex
	send  *scriptConn
	recv  *scriptConn
	sends int
}

func newFakeSockets() *fakeSockets {
	return &fakeSockets{send: newScriptConn(), recv: newScriptConn()}
}

func (f *fakeSockets) OpenSend(_ context.Context, b sockets.Binding) (net.PacketConn, *net.UDPAddr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	f.send.reopen()
	peer, err := b.PeerUDPAddr()
	return f.send, peer, err
}

func (f *fakeSockets) OpenReceive(context.Context, sockets.Binding) (net.PacketConn, error) {
	f.recv.reopen()
	return f.recv, nil
}

type readResult struct {
	data []byte
	err  error
}

// scriptConn records writes, fails them on demand and serves reads
// from a queue.
type scriptConn struct {
	mu       sync.Mutex
	writeErr error
	attempts int
	sent     [][]byte
	closed   bool
	deadline time.Time
	reads    chan readResult
}

func newScriptConn() *scriptConn {
	return &scriptConn{reads: make(chan readResult, 64)}
}

func (c *scriptConn) reopen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = false
}

func (c *scriptConn) failWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *scriptConn) writeAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *scriptConn) messages(t *testing.T) []*hamsg.Message {
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

func (c *scriptConn) WriteTo(p []byte, _ net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.closed {
		return 0, net.ErrClosed
	}
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.sent = append(c.sent, append([]byte(nil), p...))
	return len(p), nil
}

func (c *scriptConn) ReadFrom(p []byte) (int, net.Addr, error) {
	c.mu.Lock()
	deadline := c.deadline
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, nil, net.ErrClosed
	}

	t := time.NewTimer(time.Until(deadline))
	defer t.Stop()
	select {
	case r := <-c.reads:
		if r.err != nil {
			return 0, nil, r.err
		}
		n := copy(p, r.data)
		return n, &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 694}, nil
	case <-t.C:
		return 0, nil, os.ErrDeadlineExceeded
	}
}

func (c *scriptConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *scriptConn) LocalAddr() net.Addr { return &net.UDPAddr{} }

func (c *scriptConn) SetDeadline(t time.Time) error { return c.SetReadDeadline(t) }

func (c *scriptConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	return nil
}

func (c *scriptConn) SetWriteDeadline(time.Time) error { return nil }

// member is one endpoint with its fakes.
type member struct {
	ep     *ring.Endpoint
	sup    *link.Supervisor
	helper *instantHelper
	procs  *fakeProcs
	socks  *fakeSockets
}

func newMember(t *testing.T, device string) *member {
	t.Helper()
	dir := t.TempDir()
	m := &member{procs: newFakeProcs(), socks: newFakeSockets()}
	m.helper = &instantHelper{dir: dir, procs: m.procs, nextPID: 100}
	m.sup = link.New(link.Options{
		Spec:       pppring.LinkSpec{Device: device, LocalAddr: "10.0.0.1", Port: pppring.DefaultUDPPort},
		StatusDir:  dir,
		ManualTick: true,
		Logger:     testLogger(),
	}, m.helper, m.procs, m.socks)
	m.ep = ring.NewEndpoint(m.sup, ring.EndpointOptions{
		OpenRetry:    5 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
		Logger:       testLogger(),
	})
	return m
}

// up brings the member's link to UP with a receive socket open.
func (m *member) up(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.sup.OpenWrite(ctx))
	_, err := m.sup.OpenRead(ctx)
	require.NoError(t, err)
}
