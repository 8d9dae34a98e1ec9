package sockets

import "golang.org/x/sys/unix"

const bindToDeviceSupported = true

func setDontRoute(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_DONTROUTE, 1)
}

func setTTL(fd, ttl int) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TTL, ttl)
}

func bindToDevice(fd int, ifname string) error {
	return unix.BindToDevice(fd, ifname)
}
