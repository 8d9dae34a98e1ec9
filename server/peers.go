package server

import (
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/frobware/go-pppring/hamsg"
)

// Peer is what this node last heard from another ring member.
type Peer struct {
	Node  string
	RunID string
	// Device is the link the latest message arrived on.
	Device    string
	Seq       uint64
	LastHeard time.Time
}

// PeerTable tracks the other nodes heard on the ring.
type PeerTable struct {
	self   string
	logger *slog.Logger

	mu    sync.Mutex
	peers map[string]Peer
}

// NewPeerTable returns an empty table that ignores messages from self.
func NewPeerTable(self string, logger *slog.Logger) *PeerTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeerTable{
		self:   self,
		logger: logger.With("component", "peers"),
		peers:  map[string]Peer{},
	}
}

// Heard records m, received on device at the given time. It reports
// false for messages that name no source or come from this node.
func (p *PeerTable) Heard(device string, m *hamsg.Message, at time.Time) bool {
	src := m.Value(hamsg.FieldSource)
	if src == "" || src == p.self {
		return false
	}
	seq, _ := strconv.ParseUint(m.Value(hamsg.FieldSeq), 10, 64)
	run := m.Value(hamsg.FieldRun)

	p.mu.Lock()
	prev, known := p.peers[src]
	p.peers[src] = Peer{Node: src, RunID: run, Device: device, Seq: seq, LastHeard: at}
	p.mu.Unlock()

	switch {
	case !known:
		p.logger.Info("new peer", "node", src, "device", device, "run_id", run)
	case run != "" && prev.RunID != "" && run != prev.RunID:
		p.logger.Info("peer restarted", "node", src, "device", device, "run_id", run, "previous_run_id", prev.RunID)
	}
	peerLastHeard.WithLabelValues(src).Set(float64(at.Unix()))
	return true
}

// Get returns the entry for node.
func (p *PeerTable) Get(node string) (Peer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	peer, ok := p.peers[node]
	return peer, ok
}

// List returns every known peer ordered by node name.
func (p *PeerTable) List() []Peer {
	p.mu.Lock()
	out := make([]Peer, 0, len(p.peers))
	for _, peer := range p.peers {
		out = append(out, peer)
	}
	p.mu.Unlock()
	slices.SortFunc(out, func(a, b Peer) int { return strings.Compare(a.Node, b.Node) })
	return out
}

