// Package pppring holds the shared types of the PPP/UDP heartbeat ring.
//
// A ring is a set of serial links, each carrying UDP over a PPP session
// that is brought up by an external helper (pppd). Heartbeat messages
// received on one link are forwarded to every other link, so a cluster
// wired as a bidirectional serial ring keeps hearing from nodes that are
// more than one hop away.
//
// The packages under this module split the work as follows:
//
//	config   - configuration, media line grammar, link identity validation
//	status   - the status artifact written by the helper's ip-up hook
//	helper   - spawning, probing and terminating the helper process
//	sockets  - hardened point-to-point datagram sockets
//	link     - per-link supervisor state machine and silence watchdog
//	hamsg    - heartbeat message record, codec, authentication, ring policy
//	ring     - writer path, reader path and ring forwarding
//	store    - SQLite journal of link transitions
//	lock     - per-device exclusive locks
//	server   - daemon wiring, health reporting and metrics
package pppring
