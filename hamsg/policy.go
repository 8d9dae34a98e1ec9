package hamsg

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSeenSize is how many (source, sequence) pairs a RingPolicy
// remembers.
const DefaultSeenSize = 1024

// RingPolicy decides whether a received message continues around the
// ring. On a bidirectional ring every message arrives twice, once from
// each side, so a message is forwarded only the first time it is seen.
type RingPolicy struct {
	self string
	seen *lru.Cache[string, struct{}]
}

// NewRingPolicy returns a policy for the node named self.
func NewRingPolicy(self string, size int) (*RingPolicy, error) {
	if size <= 0 {
		size = DefaultSeenSize
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create seen cache: %w", err)
	}
	return &RingPolicy{self: self, seen: seen}, nil
}

// ShouldForward reports whether m should be copied to the other ring
// members: not our own, hops left, and not already forwarded. Messages
// without a sequence number are never suppressed as duplicates.
func (p *RingPolicy) ShouldForward(m *Message) bool {
	if m.Value(FieldSource) == p.self {
		return false
	}
	if ttl, ok := m.TTL(); ok && ttl < 1 {
		return false
	}
	seq, ok := m.Get(FieldSeq)
	if !ok {
		return true
	}
	key := m.Value(FieldSource) + "/" + m.Value(FieldRun) + "/" + seq
	seen, _ := p.seen.ContainsOrAdd(key, struct{}{})
	return !seen
}
