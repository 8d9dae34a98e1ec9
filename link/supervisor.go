// Package link supervises one PPP link: the helper process that brings
// it up, the sockets opened on it, and the watchdog that tears it down
// when it goes quiet.
//
// States move DOWN -> STARTING -> UP and back to DOWN on any failure.
// Nothing restarts a link eagerly. A write attempt on a DOWN link spawns
// a helper; later write attempts poll for the helper's status artifact
// and open the send socket once it appears.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/frobware/go-pppring"
	"github.com/frobware/go-pppring/helper"
	"github.com/frobware/go-pppring/sockets"
	"github.com/frobware/go-pppring/status"
)

// Spawner starts helper processes.
type Spawner interface {
	Spawn(cmd helper.Command) (int, error)
}

// ProcessTable probes and signals helper processes.
type ProcessTable interface {
	Alive(pid int) bool
	Terminate(pid int) error
}

// SocketFactory opens the link's datagram sockets.
type SocketFactory interface {
	OpenSend(ctx context.Context, b sockets.Binding) (net.PacketConn, *net.UDPAddr, error)
	OpenReceive(ctx context.Context, b sockets.Binding) (net.PacketConn, error)
}

const (
	DefaultWatchdogBudget   = 30 * time.Second
	DefaultWatchdogInterval = 2 * time.Second
	DefaultSettleDelay      = time.Second
	DefaultSettleAttempts   = 3
)

// Options configures a Supervisor.
type Options struct {
	Spec      pppring.LinkSpec
	StatusDir string

	// Helper is the command template. Device and LocalAddr are filled
	// in from Spec.
	Helper helper.Command

	WatchdogBudget   time.Duration
	WatchdogInterval time.Duration
	// ManualTick leaves the watchdog unticked; the owner calls Tick.
	ManualTick bool

	// SettleDelay is both the age an artifact must reach before its
	// mtime is trusted and the pause between checks.
	SettleDelay    time.Duration
	SettleAttempts int

	// Restarting makes the first OpenWrite adopt a helper named by an
	// existing artifact instead of killing it.
	Restarting bool

	Logger   *slog.Logger
	Observer Observer
}

func (o *Options) setDefaults() {
	if o.WatchdogBudget <= 0 {
		o.WatchdogBudget = DefaultWatchdogBudget
	}
	if o.WatchdogInterval <= 0 {
		o.WatchdogInterval = DefaultWatchdogInterval
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.SettleAttempts <= 0 {
		o.SettleAttempts = DefaultSettleAttempts
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Supervisor owns the state of one link. All methods are safe for
// concurrent use; the blocking receive happens outside it, on the conn
// returned by OpenRead.
type Supervisor struct {
	opts     Options
	path     string
	logger   *slog.Logger
	spawner  Spawner
	procs    ProcessTable
	sockets  SocketFactory
	observer Observer

	mu sync.Mutex

	state   pppring.LinkState
	started bool
	pid     int
	// adoptChecked is set once the first OpenWrite has run.
	adoptChecked bool

	wconn net.PacketConn
	peer  *net.UDPAddr
	rconn net.PacketConn

	// watchdog
	armed     bool
	gen       uint64
	remaining time.Duration
	mtime     time.Time

	pending []Transition
}

// New returns a Supervisor for opts.Spec in the DOWN state.
func New(opts Options, spawner Spawner, procs ProcessTable, socks SocketFactory) *Supervisor {
	opts.setDefaults()
	return &Supervisor{
		opts:     opts,
		path:     status.Path(opts.StatusDir, opts.Spec.Device),
		logger:   opts.Logger.With("component", "supervisor", "device", opts.Spec.Device),
		spawner:  spawner,
		procs:    procs,
		sockets:  socks,
		observer: opts.Observer,
		state:    pppring.LinkDown,
	}
}

// Spec returns the link this supervisor manages.
func (s *Supervisor) Spec() pppring.LinkSpec { return s.opts.Spec }

// ArtifactPath returns where the helper's status artifact lives.
func (s *Supervisor) ArtifactPath() string { return s.path }

// State returns the current state.
func (s *Supervisor) State() pppring.LinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PID returns the helper pid, zero if none is known.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// WriteTarget returns the send socket and peer address, or nil when the
// send side is closed.
func (s *Supervisor) WriteTarget() (net.PacketConn, *net.UDPAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wconn, s.peer
}

// ReadConn returns the receive socket, or nil when it is closed.
func (s *Supervisor) ReadConn() net.PacketConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rconn
}

// IsReadSocket reports whether conn is still the current receive
// socket. Errors from a socket that has since been replaced must not be
// held against the new one.
func (s *Supervisor) IsReadSocket(conn net.PacketConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn != nil && s.rconn == conn
}

func (s *Supervisor) command() helper.Command {
	cmd := s.opts.Helper
	cmd.Device = s.opts.Spec.Device
	cmd.LocalAddr = s.opts.Spec.LocalAddr
	return cmd
}

func (s *Supervisor) binding(a status.Artifact) sockets.Binding {
	return sockets.Binding{
		Device:    s.opts.Spec.Device,
		Interface: a.Interface,
		PeerAddr:  a.PeerAddr,
		Port:      s.opts.Spec.Port,
	}
}

// OpenWrite moves the link towards UP. On a DOWN link it clears out any
// stale helper, spawns a new one and moves to STARTING. It returns nil
// once the send socket is open, pppring.ErrLinkNotUp while the helper
// has not written its artifact, and the spawn error if the helper could
// not be started.
func (s *Supervisor) OpenWrite(ctx context.Context) error {
	s.mu.Lock()
	defer s.unlockAndNotify()

	if !s.adoptChecked {
		s.adoptChecked = true
		if s.opts.Restarting {
			s.adoptLocked()
		}
	}

	if s.wconn != nil {
		s.logger.Debug("reopening send socket, restarting helper")
		_ = s.wconn.Close()
		s.wconn, s.peer = nil, nil
		s.started = false
		if s.pid > 1 {
			_ = s.procs.Terminate(s.pid)
		}
		s.setStateLocked(pppring.LinkDown, "send socket reopened")
	}

	if s.started && s.pid > 1 && !s.procs.Alive(s.pid) {
		s.logger.Info("helper died while starting", "pid", s.pid)
		s.started = false
		s.setStateLocked(pppring.LinkDown, "helper died while starting")
	}

	if !s.started {
		s.reapStaleLocked()
		pid, err := s.spawner.Spawn(s.command())
		if err != nil {
			helperSpawnsTotal.WithLabelValues(s.opts.Spec.Device, "error").Inc()
			s.logger.Error("cannot start helper", "error", err)
			return fmt.Errorf("start helper for %s: %w", s.opts.Spec.Device, err)
		}
		helperSpawnsTotal.WithLabelValues(s.opts.Spec.Device, "ok").Inc()
		s.pid = pid
		s.started = true
		s.logger.Info("helper started", "pid", pid)
		s.setStateLocked(pppring.LinkStarting, "helper started")
	}

	a, err := status.Read(s.path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", pppring.ErrLinkNotUp, s.opts.Spec.Device, err)
	}
	if a.PID > 1 {
		s.pid = a.PID
	}

	conn, peer, err := s.sockets.OpenSend(ctx, s.binding(a))
	if err != nil {
		return err
	}
	s.wconn, s.peer = conn, peer
	s.setStateLocked(pppring.LinkUp, "status artifact present")
	s.logger.Info("link up", "interface", a.Interface, "peer", a.PeerAddr, "pid", s.pid)
	return nil
}

// adoptLocked takes over a helper left running by a previous daemon.
func (s *Supervisor) adoptLocked() {
	a, err := status.Read(s.path)
	if err != nil && !errors.Is(err, status.ErrIncomplete) {
		s.logger.Info("restart: no existing helper")
		return
	}
	if a.PID > 1 {
		s.pid = a.PID
	}
	s.started = true
	s.logger.Info("using existing helper", "pid", s.pid)
	s.setStateLocked(pppring.LinkStarting, "adopted existing helper")
}

// reapStaleLocked kills whatever helper an existing artifact names and
// removes the artifact, so the next artifact seen is from our helper.
func (s *Supervisor) reapStaleLocked() {
	a, err := status.Read(s.path)
	if err != nil && !errors.Is(err, status.ErrIncomplete) {
		return
	}
	if a.PID > 1 {
		if s.procs.Alive(a.PID) {
			s.logger.Info("killing stale helper", "pid", a.PID)
		}
		if err := s.procs.Terminate(a.PID); err != nil {
			s.logger.Warn("cannot terminate stale helper", "pid", a.PID, "error", err)
		}
	} else {
		s.logger.Error("cannot kill unknown helper process", "artifact", s.path)
	}
	if err := status.Remove(s.path); err != nil {
		s.logger.Warn("cannot remove status artifact", "path", s.path, "error", err)
	}
}

// CheckHelper probes the helper. If it has gone the link is closed and
// reopened for writing; the reopen result is returned.
func (s *Supervisor) CheckHelper(ctx context.Context) error {
	s.mu.Lock()
	pid := s.pid
	dead := pid > 0 && !s.procs.Alive(pid)
	s.mu.Unlock()

	if !dead {
		return nil
	}
	s.logger.Debug("helper process is gone", "pid", pid)
	_ = s.Close("helper exited")
	return s.OpenWrite(ctx)
}

// OpenRead opens the receive socket on an UP link and arms the
// watchdog. Any previous receive socket is closed first. A socket that
// cannot be opened takes the whole link down.
func (s *Supervisor) OpenRead(ctx context.Context) (net.PacketConn, error) {
	s.mu.Lock()
	if s.rconn != nil {
		_ = s.rconn.Close()
		s.rconn = nil
		s.disarmLocked()
	}
	if s.state != pppring.LinkUp {
		s.unlockAndNotify()
		return nil, fmt.Errorf("%w: %s is %s", pppring.ErrLinkNotUp, s.opts.Spec.Device, s.state)
	}
	a, err := status.Read(s.path)
	if err != nil {
		s.unlockAndNotify()
		return nil, fmt.Errorf("%w: %s: %v", pppring.ErrLinkNotUp, s.opts.Spec.Device, err)
	}
	conn, err := s.sockets.OpenReceive(ctx, s.binding(a))
	if err != nil {
		s.logger.Error("cannot open receive socket", "interface", a.Interface, "error", err)
		_ = s.closeLocked("receive socket failed")
		s.unlockAndNotify()
		return nil, err
	}
	s.rconn = conn
	s.unlockAndNotify()

	mtime, err := s.settle(ctx)
	if err != nil {
		s.mu.Lock()
		if s.rconn == conn {
			if errors.Is(err, pppring.ErrLinkNotUp) {
				_ = s.closeLocked("status artifact changed")
			} else {
				_ = conn.Close()
				s.rconn = nil
			}
		}
		s.unlockAndNotify()
		return nil, err
	}

	s.mu.Lock()
	defer s.unlockAndNotify()
	if s.rconn != conn {
		return nil, fmt.Errorf("%w: %s closed while opening", pppring.ErrLinkNotUp, s.opts.Spec.Device)
	}
	s.mtime = mtime
	s.armLocked()
	return conn, nil
}

// settle waits for the artifact to stop changing and returns its mtime.
// An artifact that vanishes meanwhile means the helper went with it.
func (s *Supervisor) settle(ctx context.Context) (time.Time, error) {
	var mtime time.Time
	for i := 0; i < s.opts.SettleAttempts; i++ {
		mt, err := status.ModTime(s.path)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s: %v", pppring.ErrLinkNotUp, s.opts.Spec.Device, err)
		}
		mtime = mt
		if time.Since(mt) > s.opts.SettleDelay {
			break
		}
		t := time.NewTimer(s.opts.SettleDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return time.Time{}, ctx.Err()
		case <-t.C:
		}
	}
	return mtime, nil
}

// Close tears the link down: both sockets are closed, the helper is
// sent SIGTERM and its artifact removed. Closing a DOWN link does
// nothing.
func (s *Supervisor) Close(reason string) error {
	s.mu.Lock()
	defer s.unlockAndNotify()
	return s.closeLocked(reason)
}

func (s *Supervisor) closeLocked(reason string) error {
	var err error
	if s.rconn != nil {
		err = multierr.Append(err, s.rconn.Close())
		s.rconn = nil
	}
	if s.wconn != nil {
		err = multierr.Append(err, s.wconn.Close())
		s.wconn, s.peer = nil, nil
	}
	if s.pid > 1 {
		if s.procs.Alive(s.pid) {
			s.logger.Info("killing helper", "pid", s.pid, "reason", reason)
		}
		if terr := s.procs.Terminate(s.pid); terr != nil {
			s.logger.Warn("cannot terminate helper", "pid", s.pid, "error", terr)
		}
		if rerr := status.Remove(s.path); rerr != nil {
			s.logger.Warn("cannot remove status artifact", "path", s.path, "error", rerr)
		}
		s.pid = 0
	}
	s.started = false
	s.disarmLocked()
	s.setStateLocked(pppring.LinkDown, reason)
	return err
}

func (s *Supervisor) setStateLocked(to pppring.LinkState, reason string) {
	from := s.state
	if from == to {
		return
	}
	if !pppring.CanTransition(from, to) {
		s.logger.Warn("unexpected state transition", "from", from, "to", to, "reason", reason)
	}
	s.state = to
	transitionsTotal.WithLabelValues(s.opts.Spec.Device, to.String()).Inc()
	s.logger.Debug("state changed", "from", from, "to", to, "reason", reason)
	s.pending = append(s.pending, Transition{
		Device: s.opts.Spec.Device,
		From:   from,
		To:     to,
		Reason: reason,
		PID:    s.pid,
		At:     time.Now(),
	})
}

// unlockAndNotify releases the lock and then delivers queued
// transitions, so observers may call back into the supervisor.
func (s *Supervisor) unlockAndNotify() {
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	if s.observer == nil {
		return
	}
	for _, t := range pending {
		s.observer.LinkStateChanged(t)
	}
}
