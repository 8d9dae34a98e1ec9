package pppring

import (
	"errors"
	"fmt"
)

// ErrLinkNotUp is returned when an operation needs the PPP link but the
// helper has not yet written its status artifact. It is transient: the
// next write attempt or reader retry polls again.
var ErrLinkNotUp = errors.New("ppp link not up")

// ErrMalformedMessage is returned by the reader when a datagram cannot
// be decoded into a heartbeat message.
var ErrMalformedMessage = errors.New("malformed message")

// ErrInvalidAddress is returned when a configured link address is not a
// private (RFC 1918) IPv4 address.
type ErrInvalidAddress struct {
	Addr   string
	Reason string
}

func (e *ErrInvalidAddress) Error() string {
	return fmt.Sprintf("IP address [%s] %s", e.Addr, e.Reason)
}

// ErrInvalidDevice is returned when a configured port is not an
// absolute path to an existing character device.
type ErrInvalidDevice struct {
	Path   string
	Reason string
	Err    error
}

func (e *ErrInvalidDevice) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("serial port [%s] %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("serial port [%s] %s", e.Path, e.Reason)
}

func (e *ErrInvalidDevice) Unwrap() error { return e.Err }

// ErrSecondListener is returned when the receive socket cannot be bound
// because another process already listens on the port and the socket
// could not be tied to its interface. Two readers on one port is a
// misconfiguration, so callers treat it as fatal.
type ErrSecondListener struct {
	Port   int
	Device string
}

func (e *ErrSecondListener) Error() string {
	return fmt.Sprintf("someone already listening on port %d [%s]", e.Port, e.Device)
}

// IsFatal reports whether err must stop the daemon rather than be
// healed by restarting the link.
func IsFatal(err error) bool {
	var second *ErrSecondListener
	return errors.As(err, &second)
}
