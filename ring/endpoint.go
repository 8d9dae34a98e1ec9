// Package ring moves heartbeat messages over the ring's PPP links.
//
// An Endpoint is one link's writer and reader. A Ring holds every
// endpoint in configuration order; a message received on one endpoint
// is copied to all of the others.
package ring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/frobware/go-pppring"
	"github.com/frobware/go-pppring/hamsg"
	"github.com/frobware/go-pppring/link"
	"github.com/frobware/go-pppring/logging"
)

const (
	// SendAttempts bounds delivery attempts per write.
	SendAttempts = 3
	// RefusedLimit is how far the refused counter may climb before a
	// refused send closes the link. Each refused send adds two and each
	// clean send takes one away.
	RefusedLimit = 300
	// ReceiveErrorLimit is how many consecutive receive errors are
	// tolerated; one more closes the link.
	ReceiveErrorLimit = 3
)

// Waiter pauses the reader between open attempts. status.Watcher
// satisfies it and wakes early when the artifact appears.
type Waiter interface {
	Wait(ctx context.Context, path string, d time.Duration) error
}

// EndpointOptions configures an Endpoint.
type EndpointOptions struct {
	// OpenRetry is the pause between receive socket open attempts.
	OpenRetry time.Duration
	// PollInterval bounds each blocking receive so cancellation is
	// noticed.
	PollInterval time.Duration
	Waiter       Waiter
	Logger       *slog.Logger
}

// Endpoint is the writer and reader for one link.
type Endpoint struct {
	sup    *link.Supervisor
	device string
	opts   EndpointOptions
	logger *slog.Logger

	wmu     sync.Mutex
	refused int
	sendLog rate.Sometimes

	rmu      sync.Mutex
	errcount int
	buf      []byte
	recvLog  rate.Sometimes
}

// NewEndpoint returns an Endpoint driving sup.
func NewEndpoint(sup *link.Supervisor, opts EndpointOptions) *Endpoint {
	if opts.OpenRetry <= 0 {
		opts.OpenRetry = time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = link.DefaultWatchdogInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	device := sup.Spec().Device
	return &Endpoint{
		sup:     sup,
		device:  device,
		opts:    opts,
		logger:  opts.Logger.With("component", "ring", "device", device),
		buf:     make([]byte, hamsg.MaxSize),
		sendLog: rate.Sometimes{First: 3, Interval: 10 * time.Second},
		recvLog: rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
}

// Supervisor returns the link supervisor behind e.
func (e *Endpoint) Supervisor() *link.Supervisor { return e.sup }

// Device returns the serial device of e's link.
func (e *Endpoint) Device() string { return e.device }

// Write sends m to the peer. A link that is not up yet swallows the
// message and reports success; the next heartbeat tries again. Write
// fails only when m cannot be encoded or delivery failed badly enough
// that the link was closed.
func (e *Endpoint) Write(ctx context.Context, m *hamsg.Message) error {
	data, err := hamsg.Encode(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	e.wmu.Lock()
	defer e.wmu.Unlock()

	if conn, _ := e.sup.WriteTarget(); conn == nil {
		e.openWrite(ctx)
	}
	if err := e.sup.CheckHelper(ctx); err != nil && !errors.Is(err, pppring.ErrLinkNotUp) {
		e.logger.Debug("helper restart failed", "error", err)
	}

	conn, peer := e.sup.WriteTarget()
	if conn == nil {
		sendSkippedTotal.WithLabelValues(e.device).Inc()
		return nil
	}

	for attempt := 0; attempt < SendAttempts; attempt++ {
		if _, err = conn.WriteTo(data, peer); err == nil {
			break
		}
		e.sendLog.Do(func() {
			e.logger.Warn("error sending packet", "peer", peer, "error", err)
		})
		// The PPP transport reports refused on packets it delivered, so
		// retrying a refused send only doubles the traffic.
		if isRefused(err) {
			break
		}
	}

	if err == nil {
		e.refused--
		sentTotal.WithLabelValues(e.device).Inc()
		return nil
	}

	if isRefused(err) {
		refusedTotal.WithLabelValues(e.device).Inc()
		if e.refused < 0 {
			e.refused = 0
		}
		e.refused += 2
		if e.refused <= RefusedLimit {
			return nil
		}
	}

	e.logger.Warn("too many errors sending, closing link", "peer", peer, "error", err)
	sendFailuresTotal.WithLabelValues(e.device).Inc()
	e.refused = 0
	_ = e.sup.Close("send failures")
	return fmt.Errorf("send to %s on %s: %w", peer, e.device, err)
}

func (e *Endpoint) openWrite(ctx context.Context) {
	err := e.sup.OpenWrite(ctx)
	switch {
	case err == nil:
	case errors.Is(err, pppring.ErrLinkNotUp):
		e.logger.Debug("link not up yet")
	default:
		e.logger.Warn("cannot open link for writing", "error", err)
	}
}

// Receive returns the next message that arrives on e. It opens the
// receive socket first if needed, retrying every OpenRetry until the
// link is up. A datagram that does not decode is returned as an error
// wrapping pppring.ErrMalformedMessage; the endpoint stays usable.
// Receive returns early only for ctx ending or a fatal socket error.
func (e *Endpoint) Receive(ctx context.Context) (*hamsg.Message, error) {
	e.rmu.Lock()
	defer e.rmu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conn := e.sup.ReadConn()
		if conn == nil {
			var err error
			if conn, err = e.sup.OpenRead(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				if pppring.IsFatal(err) {
					return nil, err
				}
				if !errors.Is(err, pppring.ErrLinkNotUp) {
					e.logger.Debug("cannot open receive socket", "error", err)
				}
				if err := e.wait(ctx); err != nil {
					return nil, err
				}
				continue
			}
			e.errcount = 0
		}

		_ = conn.SetReadDeadline(time.Now().Add(e.opts.PollInterval))
		n, from, err := conn.ReadFrom(e.buf)
		if err != nil {
			e.receiveError(conn, err)
			continue
		}

		e.sup.Heard()
		e.errcount = 0
		receivedTotal.WithLabelValues(e.device).Inc()

		m, err := hamsg.Decode(e.buf[:n])
		if err != nil {
			malformedTotal.WithLabelValues(e.device).Inc()
			return nil, fmt.Errorf("packet from %v on %s: %w", from, e.device, err)
		}
		e.logger.Log(ctx, logging.LevelTrace.ToSlog(), "got packet", "bytes", n, "from", from)
		return m, nil
	}
}

// receiveError counts an error against the current socket. Deadlines
// are the poll tick, and errors from a socket already replaced or
// closed by someone else say nothing about the link.
func (e *Endpoint) receiveError(conn net.PacketConn, err error) {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return
	}
	if !e.sup.IsReadSocket(conn) {
		return
	}
	receiveErrorsTotal.WithLabelValues(e.device).Inc()
	if errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.EBADF) {
		e.errcount = ReceiveErrorLimit + 1
	} else {
		e.errcount++
		e.recvLog.Do(func() {
			e.logger.Warn("error receiving from socket", "error", err)
		})
	}
	if e.errcount > ReceiveErrorLimit {
		e.logger.Info("too many receive errors, closing link", "error", err)
		e.errcount = 0
		_ = e.sup.Close("receive errors")
	}
}

func (e *Endpoint) wait(ctx context.Context) error {
	if e.opts.Waiter != nil {
		return e.opts.Waiter.Wait(ctx, e.sup.ArtifactPath(), e.opts.OpenRetry)
	}
	t := time.NewTimer(e.opts.OpenRetry)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
