package ring

import (
	"context"
	"errors"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/frobware/go-pppring/hamsg"
)

// Authenticator signs and checks messages.
type Authenticator interface {
	Sign(m *hamsg.Message)
	Verify(m *hamsg.Message) bool
}

// Policy decides whether a received message continues around the ring.
type Policy interface {
	ShouldForward(m *hamsg.Message) bool
}

// Ring is the ordered set of endpoints. Order is fixed at construction;
// Next(i) wraps around.
type Ring struct {
	endpoints []*Endpoint
	auth      Authenticator
	policy    Policy
	logger    *slog.Logger
}

// New returns a Ring over endpoints in the given order.
func New(endpoints []*Endpoint, auth Authenticator, policy Policy, logger *slog.Logger) (*Ring, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("ring has no endpoints")
	}
	if auth == nil || policy == nil {
		return nil, errors.New("ring needs an authenticator and a policy")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ring{
		endpoints: endpoints,
		auth:      auth,
		policy:    policy,
		logger:    logger.With("component", "ring"),
	}, nil
}

// Len returns the number of endpoints.
func (r *Ring) Len() int { return len(r.endpoints) }

// Endpoint returns the i'th endpoint.
func (r *Ring) Endpoint(i int) *Endpoint { return r.endpoints[i] }

// Endpoints returns the endpoints in ring order.
func (r *Ring) Endpoints() []*Endpoint {
	return append([]*Endpoint(nil), r.endpoints...)
}

// Next returns the index after i.
func (r *Ring) Next(i int) int { return (i + 1) % len(r.endpoints) }

// Receive waits for a message on endpoint i, forwards it to the rest of
// the ring and returns it unchanged.
func (r *Ring) Receive(ctx context.Context, i int) (*hamsg.Message, error) {
	m, err := r.endpoints[i].Receive(ctx)
	if err != nil {
		return nil, err
	}
	r.Forward(ctx, i, m)
	return m, nil
}

// Forward copies m, which arrived on endpoint from, to every other
// endpoint, starting with the one after it. m must authenticate and the
// policy must agree. The hop count is decremented once for the whole
// pass and the copy re-signed; m itself is not modified. A message with
// no hop count is not forwarded. Forward returns the number of copies
// written.
func (r *Ring) Forward(ctx context.Context, from int, m *hamsg.Message) int {
	if len(r.endpoints) < 2 {
		return 0
	}
	if !r.auth.Verify(m) || !r.policy.ShouldForward(m) {
		return 0
	}
	ttl, ok := m.TTL()
	if !ok {
		return 0
	}

	fwd := m.Clone()
	fwd.SetTTL(ttl - 1)
	r.auth.Sign(fwd)

	n := 0
	for j := r.Next(from); j != from; j = r.Next(j) {
		ep := r.endpoints[j]
		if err := ep.Write(ctx, fwd); err != nil {
			r.logger.Warn("forward failed", "from", r.endpoints[from].Device(), "to", ep.Device(), "error", err)
			continue
		}
		forwardedTotal.WithLabelValues(ep.Device()).Inc()
		n++
	}
	return n
}

// Broadcast writes m on every endpoint.
func (r *Ring) Broadcast(ctx context.Context, m *hamsg.Message) error {
	var err error
	for _, ep := range r.endpoints {
		err = multierr.Append(err, ep.Write(ctx, m))
	}
	return err
}

// Close takes every link down.
func (r *Ring) Close(reason string) error {
	var err error
	for _, ep := range r.endpoints {
		err = multierr.Append(err, ep.Supervisor().Close(reason))
	}
	return err
}
