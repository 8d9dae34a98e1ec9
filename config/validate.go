package config

import (
	"net/netip"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/frobware/go-pppring"
)

// privateNets are the RFC 1918 ranges. Routing to a ring address is
// always a mistake, so only these are accepted.
var privateNets = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

// ValidateLocalAddr accepts s only if it is a dotted-quad IPv4 address
// inside one of the private ranges.
func ValidateLocalAddr(s string) error {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return &pppring.ErrInvalidAddress{Addr: s, Reason: "not valid in config file"}
	}
	for _, n := range privateNets {
		if n.Contains(addr) {
			return nil
		}
	}
	return &pppring.ErrInvalidAddress{Addr: s, Reason: "not a local (RFC 1918) address in config file"}
}

// ValidateSerialDevice accepts path only if it is absolute and names an
// existing character device.
func ValidateSerialDevice(path string) error {
	if !strings.HasPrefix(path, "/") {
		return &pppring.ErrInvalidDevice{Path: path, Reason: "not full pathname in config file"}
	}
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return &pppring.ErrInvalidDevice{Path: path, Reason: "nonexistent in config file", Err: err}
	}
	if st.Mode&unix.S_IFMT != unix.S_IFCHR {
		return &pppring.ErrInvalidDevice{Path: path, Reason: "not a char device in config file"}
	}
	return nil
}
