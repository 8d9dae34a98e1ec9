package pppring

import "fmt"

// DefaultUDPPort is the port heartbeat traffic uses on every link.
const DefaultUDPPort = 694

// LinkSpec identifies one configured member of the ring: the serial
// device PPP runs on and the local address the helper is told to use.
type LinkSpec struct {
	Device    string
	LocalAddr string
	Port      int
}

func (s LinkSpec) String() string {
	return fmt.Sprintf("%s(%s:%d)", s.Device, s.LocalAddr, s.Port)
}
