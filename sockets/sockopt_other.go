//go:build unix && !linux

package sockets

import (
	"errors"

	"golang.org/x/sys/unix"
)

const bindToDeviceSupported = false

func setDontRoute(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_DONTROUTE, 1)
}

func setTTL(fd, ttl int) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TTL, ttl)
}

func bindToDevice(int, string) error {
	return errors.ErrUnsupported
}
