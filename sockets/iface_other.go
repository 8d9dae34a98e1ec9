//go:build !linux

package sockets

import (
	"fmt"
	"net"
)

// LookupInterface reads interface state from the net package.
func LookupInterface(name string) (InterfaceInfo, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return InterfaceInfo{}, fmt.Errorf("link %s: %w", name, err)
	}
	return InterfaceInfo{
		Name:  ifi.Name,
		Index: ifi.Index,
		MTU:   ifi.MTU,
		Up:    ifi.Flags&net.FlagUp != 0,
	}, nil
}
