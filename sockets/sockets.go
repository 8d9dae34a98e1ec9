// Package sockets opens the UDP endpoints that carry heartbeat traffic
// across a PPP link.
//
// Send and receive sockets have independent lifecycles. Both get
// best-effort hardening so that packets go straight down the PPP
// interface: no gateway, a hop limit of one, and where the platform
// allows it the socket is tied to the interface itself.
package sockets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/frobware/go-pppring"
)

// Binding is what a socket needs to know about an up link.
type Binding struct {
	// Device is the serial device, used for logging and errors.
	Device string
	// Interface is the PPP interface named by the status artifact.
	// Empty skips interface binding.
	Interface string
	PeerAddr  string
	Port      int
}

// PeerUDPAddr resolves the peer to an IPv4 UDP address.
func (b Binding) PeerUDPAddr() (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(b.PeerAddr, strconv.Itoa(b.Port)))
	if err != nil {
		return nil, fmt.Errorf("resolve peer %s: %w", b.PeerAddr, err)
	}
	return addr, nil
}

// Factory opens send and receive sockets.
type Factory struct {
	logger *slog.Logger
	lookup func(name string) (InterfaceInfo, error)
}

// NewFactory returns a Factory logging under the "sockets" component.
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		logger: logger.With("component", "sockets"),
		lookup: LookupInterface,
	}
}

// OpenSend opens an unbound datagram socket for sending to b's peer and
// returns it with the resolved destination. Hardening failures are
// logged and otherwise ignored.
func (f *Factory) OpenSend(ctx context.Context, b Binding) (net.PacketConn, *net.UDPAddr, error) {
	peer, err := b.PeerUDPAddr()
	if err != nil {
		return nil, nil, err
	}
	f.describe(b)

	lc := net.ListenConfig{
		Control: func(_, _ string, rc syscall.RawConn) error {
			return rc.Control(func(fd uintptr) {
				f.harden(int(fd), b, "w")
				if b.Interface == "" {
					return
				}
				if err := bindToDevice(int(fd), b.Interface); err != nil {
					f.logger.Warn("cannot bind send socket to interface",
						"device", b.Device, "interface", b.Interface, "error", err)
				}
			})
		},
	}
	conn, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return nil, nil, fmt.Errorf("open send socket for %s: %w", b.Device, err)
	}
	return conn, peer, nil
}

// OpenReceive binds a datagram socket to b.Port on all addresses. When
// the platform can tie sockets to an interface that binding is
// mandatory. Without it, "address in use" means another reader owns the
// port and an *pppring.ErrSecondListener is returned.
func (f *Factory) OpenReceive(ctx context.Context, b Binding) (net.PacketConn, error) {
	f.describe(b)

	lc := net.ListenConfig{
		Control: func(_, _ string, rc syscall.RawConn) error {
			var bindErr error
			err := rc.Control(func(fd uintptr) {
				if b.Interface == "" || !bindToDeviceSupported {
					return
				}
				if err := bindToDevice(int(fd), b.Interface); err != nil {
					bindErr = fmt.Errorf("bind receive socket to %s: %w", b.Interface, err)
					return
				}
				f.logger.Debug("receive socket bound to interface", "device", b.Device, "interface", b.Interface)
			})
			if err != nil {
				return err
			}
			return bindErr
		},
	}
	conn, err := lc.ListenPacket(ctx, "udp4", ":"+strconv.Itoa(b.Port))
	if err != nil {
		return nil, bindError(err, b, bindToDeviceSupported)
	}
	f.logger.Info("socket open on interface", "device", b.Device, "interface", b.Interface, "port", b.Port)
	return conn, nil
}

func bindError(err error, b Binding, canBindDevice bool) error {
	if !canBindDevice && errors.Is(err, unix.EADDRINUSE) {
		return &pppring.ErrSecondListener{Port: b.Port, Device: b.Device}
	}
	return fmt.Errorf("open receive socket for %s: %w", b.Device, err)
}

func (f *Factory) harden(fd int, b Binding, dir string) {
	if err := setDontRoute(fd); err != nil {
		f.logger.Warn("cannot set SO_DONTROUTE", "device", b.Device, "socket", dir, "error", err)
	}
	if err := setTTL(fd, 1); err != nil {
		f.logger.Warn("cannot set IP_TTL", "device", b.Device, "socket", dir, "error", err)
	}
}

// describe logs what the kernel knows about the interface. It never
// fails the open: the socket calls report a missing interface themselves.
func (f *Factory) describe(b Binding) {
	if b.Interface == "" || f.lookup == nil {
		return
	}
	info, err := f.lookup(b.Interface)
	if err != nil {
		f.logger.Debug("interface lookup failed", "interface", b.Interface, "error", err)
		return
	}
	f.logger.Debug("interface", "name", info.Name, "index", info.Index, "mtu", info.MTU, "up", info.Up)
}
