package sockets

// InterfaceInfo is the subset of interface state logged when a socket
// is opened on it.
type InterfaceInfo struct {
	Name  string
	Index int
	MTU   int
	Up    bool
}
