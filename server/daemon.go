package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/health"

	"github.com/frobware/go-pppring"
	"github.com/frobware/go-pppring/config"
	"github.com/frobware/go-pppring/hamsg"
	"github.com/frobware/go-pppring/helper"
	"github.com/frobware/go-pppring/link"
	"github.com/frobware/go-pppring/ring"
	"github.com/frobware/go-pppring/store/sqlite"
)

// Options configures a Daemon.
type Options struct {
	Config config.Config
	Node   string
	RunID  string

	Restarting  bool
	SettleDelay time.Duration
	// ManualTick leaves every link watchdog for the caller to tick.
	ManualTick bool
	// JournalRetention prunes older transitions at start and
	// periodically while running. Zero keeps everything.
	JournalRetention time.Duration

	Logger *slog.Logger
}

// Deps are the daemon's collaborators. Production wiring lives in Run;
// tests substitute fakes.
type Deps struct {
	Spawner link.Spawner
	Procs   link.ProcessTable
	Sockets link.SocketFactory
	Waiter  ring.Waiter
	Store   *sqlite.Store
}

// Daemon owns the ring and everything that reports on it.
type Daemon struct {
	cfg    config.RingConfig
	node   string
	runID  string
	logger *slog.Logger

	ring    *ring.Ring
	auth    *hamsg.Authenticator
	health  *health.Server
	journal *journal
	peers   *PeerTable

	store     *sqlite.Store
	retention time.Duration

	seq     atomic.Uint64
	sendLog rate.Sometimes
	recvLog rate.Sometimes
}

// New records the start of a run and builds a supervised endpoint for
// every configured link. Nothing is spawned until Run or Beat.
func New(ctx context.Context, opts Options, deps Deps) (*Daemon, error) {
	if deps.Store == nil {
		return nil, errors.New("server: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	links, err := opts.Config.Links()
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, errors.New("no ring media configured")
	}

	auth, err := hamsg.NewAuthenticator(opts.Config.Auth.Key)
	if err != nil {
		return nil, err
	}
	policy, err := hamsg.NewRingPolicy(opts.Node, hamsg.DefaultSeenSize)
	if err != nil {
		return nil, err
	}

	if prev, err := deps.Store.LatestRun(ctx); err == nil {
		logger.Info("previous run", "run_id", prev.ID, "node", prev.Node, "pid", prev.PID, "started", prev.StartedAt)
	} else if !errors.Is(err, sqlite.ErrNotFound) {
		return nil, err
	}
	if err := deps.Store.RecordRun(ctx, sqlite.Run{
		ID:         opts.RunID,
		Node:       opts.Node,
		PID:        os.Getpid(),
		Restarting: opts.Restarting,
		StartedAt:  time.Now(),
	}); err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:     opts.Config.Ring,
		node:    opts.Node,
		runID:   opts.RunID,
		logger:  logger.With("component", "server"),
		auth:    auth,
		health:  health.NewServer(),
		journal: newJournal(deps.Store, opts.RunID, logger),
		peers:   NewPeerTable(opts.Node, logger),
		sendLog: rate.Sometimes{First: 3, Interval: 30 * time.Second},
		recvLog: rate.Sometimes{First: 3, Interval: 30 * time.Second},

		store:     deps.Store,
		retention: opts.JournalRetention,
	}
	if d.retention > 0 {
		d.pruneOnce(ctx)
	}

	r := &d.cfg
	observer := link.Observers{d.journal, &healthObserver{health: d.health, logger: d.logger}}
	endpoints := make([]*ring.Endpoint, 0, len(links))
	for _, spec := range links {
		d.health.SetServingStatus(HealthService(spec.Device), servingStatus(pppring.LinkDown))
		sup := link.New(link.Options{
			Spec:      spec,
			StatusDir: r.StatusDir,
			Helper: helper.Command{
				Program: r.Helper,
				Baud:    r.Baud,
				Options: r.HelperOptions,
				LogPath: r.HelperLogPath(),
			},
			WatchdogBudget:   r.WatchdogBudget,
			WatchdogInterval: r.WatchdogInterval,
			ManualTick:       opts.ManualTick,
			SettleDelay:      opts.SettleDelay,
			Restarting:       opts.Restarting,
			Logger:           logger,
			Observer:         observer,
		}, deps.Spawner, deps.Procs, deps.Sockets)
		endpoints = append(endpoints, ring.NewEndpoint(sup, ring.EndpointOptions{
			OpenRetry:    r.OpenRetry,
			PollInterval: r.WatchdogInterval,
			Waiter:       deps.Waiter,
			Logger:       logger,
		}))
	}

	if d.ring, err = ring.New(endpoints, auth, policy, logger); err != nil {
		return nil, err
	}
	return d, nil
}

// Ring returns the daemon's ring.
func (d *Daemon) Ring() *ring.Ring { return d.ring }

// Peers returns the peer table.
func (d *Daemon) Peers() *PeerTable { return d.peers }

// RunID identifies this daemon lifetime.
func (d *Daemon) RunID() string { return d.runID }

// Run drives the ring until ctx ends or a reader fails fatally. The
// health socket is served when socketPath is set, metrics when
// metricsAddr is. Every link is closed, and its helper stopped, before
// Run returns.
func (d *Daemon) Run(ctx context.Context, socketPath, metricsAddr string) error {
	d.logger.Info("starting ring", "node", d.node, "run_id", d.runID, "links", d.ring.Len())

	journalDone := make(chan struct{})
	go func() {
		defer close(journalDone)
		d.journal.run()
	}()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.ring.Len(); i++ {
		g.Go(func() error { return d.readLoop(gctx, i) })
	}
	g.Go(func() error { return d.heartbeat(gctx) })
	if d.retention > 0 {
		g.Go(func() error { return d.pruneLoop(gctx) })
	}
	if socketPath != "" {
		g.Go(func() error { return d.serveGRPC(gctx, socketPath) })
	}
	if metricsAddr != "" {
		g.Go(func() error { return d.serveMetrics(gctx, metricsAddr) })
	}

	err := g.Wait()

	if cerr := d.ring.Close("shutdown"); cerr != nil {
		d.logger.Warn("errors closing links", "error", cerr)
	}
	d.journal.close()
	<-journalDone

	if err != nil {
		d.logger.Error("ring stopped", "error", err)
		return err
	}
	d.logger.Info("ring stopped")
	return nil
}

// readLoop receives on endpoint i until ctx ends. Only errors that no
// retry can fix end the loop.
func (d *Daemon) readLoop(ctx context.Context, i int) error {
	device := d.ring.Endpoint(i).Device()
	for {
		m, err := d.ring.Receive(ctx, i)
		switch {
		case err == nil:
			d.heard(device, m)
		case ctx.Err() != nil:
			return nil
		case pppring.IsFatal(err):
			return fmt.Errorf("reader on %s: %w", device, err)
		case errors.Is(err, pppring.ErrMalformedMessage):
			d.recvLog.Do(func() {
				d.logger.Warn("dropping malformed message", "device", device, "error", err)
			})
		default:
			d.recvLog.Do(func() {
				d.logger.Warn("receive failed", "device", device, "error", err)
			})
		}
	}
}

func (d *Daemon) heard(device string, m *hamsg.Message) {
	if !d.auth.Verify(m) {
		unauthenticatedTotal.WithLabelValues(device).Inc()
		d.recvLog.Do(func() {
			d.logger.Warn("ignoring unauthenticated message", "device", device, "src", m.Value(hamsg.FieldSource))
		})
		return
	}
	d.peers.Heard(device, m, time.Now())
}

// heartbeat originates a status message every keepalive interval. The
// first goes out at once.
func (d *Daemon) heartbeat(ctx context.Context) error {
	t := time.NewTicker(d.cfg.Keepalive)
	defer t.Stop()
	for {
		d.Beat(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Beat sends one signed heartbeat on every link. A link that is not up
// is nudged toward coming up by the attempt.
func (d *Daemon) Beat(ctx context.Context) error {
	m := d.heartbeatMessage()
	heartbeatsTotal.Inc()
	if err := d.ring.Broadcast(ctx, m); err != nil {
		d.sendLog.Do(func() {
			d.logger.Warn("heartbeat send failed", "seq", m.Value(hamsg.FieldSeq), "error", err)
		})
		return err
	}
	return nil
}

func (d *Daemon) heartbeatMessage() *hamsg.Message {
	m := hamsg.New()
	m.Set(hamsg.FieldType, "status")
	m.Set(hamsg.FieldSource, d.node)
	m.Set(hamsg.FieldSeq, strconv.FormatUint(d.seq.Add(1), 10))
	m.SetTTL(d.cfg.TTL)
	m.Set(hamsg.FieldRun, d.runID)
	d.auth.Sign(m)
	return m
}
