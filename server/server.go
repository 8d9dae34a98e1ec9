// Package server runs the pppring daemon.
//
// The daemon supervises one PPP link per configured serial port and
// arranges them in a ring. It originates a signed heartbeat on every
// link each keepalive interval, forwards what it hears, journals link
// transitions to SQLite and reports per-link health over gRPC on a unix
// socket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/frobware/go-pppring"
	"github.com/frobware/go-pppring/config"
	"github.com/frobware/go-pppring/helper"
	"github.com/frobware/go-pppring/link"
	"github.com/frobware/go-pppring/lock"
	"github.com/frobware/go-pppring/sockets"
	"github.com/frobware/go-pppring/status"
	"github.com/frobware/go-pppring/store/sqlite"
)

const (
	// DefaultLockTimeout bounds the wait for each device lock.
	DefaultLockTimeout = 5 * time.Second

	// stopGrace is how long in-flight RPCs (health watches included)
	// get before the gRPC server is stopped hard.
	stopGrace = 2 * time.Second
)

// RunConfig configures the daemon.
type RunConfig struct {
	Dirs   config.RuntimeDirs
	Config config.Config
	// Restarting adopts helpers left running by a previous instance
	// instead of killing them.
	Restarting  bool
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// Run starts the daemon and blocks until ctx is cancelled or a link
// fails fatally. Every helper is stopped before Run returns.
func Run(ctx context.Context, cfg RunConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	if err := cfg.Config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	links, err := cfg.Config.Links()
	if err != nil {
		return err
	}
	node, err := cfg.Config.NodeName()
	if err != nil {
		return fmt.Errorf("failed to determine node name: %w", err)
	}

	dirs := cfg.Dirs
	if err := dirs.EnsureDirectories(); err != nil {
		return fmt.Errorf("runtime directory setup failed: %w", err)
	}
	if err := os.MkdirAll(cfg.Config.Ring.StatusDir, 0o755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	timeout := cfg.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	locks, err := acquireLocks(ctx, dirs, links, timeout)
	if err != nil {
		return err
	}
	defer func() {
		if err := releaseLocks(locks); err != nil {
			logger.Warn("failed to release device locks", "error", err)
		}
	}()

	dbPath := dirs.DBPath()
	st, err := sqlite.New(ctx, dbPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open store at %s: %w", dbPath, err)
	}
	defer st.Close()

	watcher, err := status.NewWatcher(cfg.Config.Ring.StatusDir, logger)
	if err != nil {
		return fmt.Errorf("failed to watch status directory: %w", err)
	}
	defer watcher.Close()

	d, err := New(ctx, Options{
		Config:      cfg.Config,
		Node:        node,
		RunID:       uuid.NewString(),
		Restarting:  cfg.Restarting,
		SettleDelay: link.DefaultSettleDelay,
		Logger:      logger,

		JournalRetention: cfg.Config.Server.JournalRetention,
	}, Deps{
		Spawner: helper.NewRunner(logger),
		Procs:   helper.Processes{},
		Sockets: sockets.NewFactory(logger),
		Waiter:  watcher,
		Store:   st,
	})
	if err != nil {
		return err
	}
	return d.Run(ctx, dirs.SocketPath(), cfg.Config.Server.MetricsAddress)
}

func acquireLocks(ctx context.Context, dirs config.RuntimeDirs, links []pppring.LinkSpec, timeout time.Duration) ([]*lock.DeviceLock, error) {
	var locks []*lock.DeviceLock
	for _, l := range links {
		lctx, cancel := context.WithTimeout(ctx, timeout)
		dl, err := lock.Acquire(lctx, dirs.LockPath(l.Device))
		cancel()
		if err != nil {
			releaseLocks(locks)
			return nil, fmt.Errorf("lock serial port [%s]: %w", l.Device, err)
		}
		locks = append(locks, dl)
	}
	return locks, nil
}

func releaseLocks(locks []*lock.DeviceLock) error {
	var err error
	for _, dl := range locks {
		err = multierr.Append(err, dl.Release())
	}
	return err
}

// serveGRPC serves the health service on a unix socket until ctx ends.
func (d *Daemon) serveGRPC(ctx context.Context, socketPath string) error {
	socketDir := filepath.Dir(socketPath)
	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", socketPath, err)
	}
	defer ln.Close()

	if err := os.Chmod(socketPath, 0o660); err != nil {
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(d.loggingInterceptor()),
	)
	healthpb.RegisterHealthServer(grpcServer, d.health)

	errCh := make(chan error, 1)
	go func() {
		d.logger.InfoContext(ctx, "gRPC health server listening", "socket", socketPath)
		errCh <- grpcServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("unix socket server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	d.logger.Info("shutting down gRPC server")
	d.health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(stopGrace):
		grpcServer.Stop()
	}
	return nil
}

// loggingInterceptor returns a gRPC unary interceptor that assigns a
// monotonic operation ID to each request and logs errors.
func (d *Daemon) loggingInterceptor() grpc.UnaryServerInterceptor {
	var opCounter atomic.Uint64
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		opID := opCounter.Add(1)
		resp, err := handler(ctx, req)
		if err != nil {
			d.logger.ErrorContext(ctx, "grpc error", "op_id", opID, "method", info.FullMethod, "error", err)
		} else {
			d.logger.DebugContext(ctx, "grpc request", "op_id", opID, "method", info.FullMethod)
		}
		return resp, err
	}
}

// serveMetrics serves Prometheus metrics on addr until ctx ends.
func (d *Daemon) serveMetrics(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	d.logger.Info("metrics HTTP server listening", "address", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
