package sockets

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// LookupInterface asks the kernel about name over netlink.
func LookupInterface(name string) (InterfaceInfo, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return InterfaceInfo{}, fmt.Errorf("link %s: %w", name, err)
	}
	attrs := link.Attrs()
	return InterfaceInfo{
		Name:  attrs.Name,
		Index: attrs.Index,
		MTU:   attrs.MTU,
		Up:    attrs.Flags&net.FlagUp != 0,
	}, nil
}
