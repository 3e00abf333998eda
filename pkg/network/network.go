// Package network holds the Network registry: the transports a node sends
// through, the slabs currently alive in this process and the addresses at
// which remote slabs were last seen.
package network

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dnorman/unbase/pkg/observability"
	"github.com/dnorman/unbase/pkg/transport"
	"github.com/dnorman/unbase/pkg/transport/blackhole"
)

// LocalSlab is the view the Network keeps of a registered slab. The
// Network never owns the slab; it only routes packets to it by id.
type LocalSlab interface {
	ID() transport.SlabID
	Deliver(pkt transport.Packet) error
}

type Option func(*Network)

// WithNodeID names the network in logs and metrics.
func WithNodeID(id string) Option { return func(n *Network) { n.id = id } }

// WithSlabIDBase sets the first id returned by GenerateSlabID. Zero is
// reserved and treated as 1.
func WithSlabIDBase(base transport.SlabID) Option {
	return func(n *Network) { n.SetNextSlabID(base) }
}

func WithLogger(l *zap.Logger) Option { return func(n *Network) { n.log = l } }

// WithSendTimeout bounds presence replies sent from delivery goroutines.
func WithSendTimeout(d time.Duration) Option { return func(n *Network) { n.sendTimeout = d } }

type Network struct {
	id          string
	newSystem   bool
	log         *zap.Logger
	sendTimeout time.Duration
	nextSlabID  atomic.Uint32

	mu         sync.RWMutex
	transports []transport.Transport
	slabs      map[transport.SlabID]LocalSlab
	presence   map[transport.SlabID][]transport.Address
	closed     bool

	replies sync.WaitGroup
}

// CreateNewSystem returns a network that starts a fresh system. It has no
// transports and no slabs.
func CreateNewSystem(opts ...Option) *Network { return newNetwork(true, opts) }

// New returns a network that expects to join an existing system through
// seeds.
func New(opts ...Option) *Network { return newNetwork(false, opts) }

func newNetwork(newSystem bool, opts []Option) *Network {
	n := &Network{
		newSystem:   newSystem,
		sendTimeout: 2 * time.Second,
		slabs:       make(map[transport.SlabID]LocalSlab),
		presence:    make(map[transport.SlabID][]transport.Address),
	}
	n.nextSlabID.Store(1)
	for _, o := range opts {
		o(n)
	}
	if n.id == "" {
		n.id = "node-" + uuid.NewString()[:8]
	}
	if n.log == nil {
		n.log = zap.L()
	}
	n.log = n.log.With(zap.String("node", n.id))
	n.log.Debug("network created", zap.Bool("new_system", newSystem))
	return n
}

func (n *Network) ID() string          { return n.id }
func (n *Network) IsNewSystem() bool   { return n.newSystem }
func (n *Network) Logger() *zap.Logger { return n.log }

// Closed reports whether Close was called.
func (n *Network) Closed() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.closed
}

// GenerateSlabID hands out the next slab id. The counter wraps past the
// largest id and never yields 0, the any-slab id.
func (n *Network) GenerateSlabID() transport.SlabID {
	for {
		if id := n.nextSlabID.Add(1) - 1; id != 0 {
			return transport.SlabID(id)
		}
	}
}

// SetNextSlabID moves the id counter, so networks sharing a process or a
// simulation can hand out disjoint ids.
func (n *Network) SetNextSlabID(id transport.SlabID) {
	if id == 0 {
		id = 1
	}
	n.nextSlabID.Store(uint32(id))
}

// AddTransport registers t. Transports that implement transport.Binder are
// bound to the network first; a failed bind leaves t unregistered.
// Duplicates are allowed.
func (n *Network) AddTransport(t transport.Transport) error {
	if t == nil {
		return fmt.Errorf("%w: nil transport", ErrConfiguration)
	}
	if n.Closed() {
		return fmt.Errorf("%w: add transport to closed network", ErrLifecycle)
	}
	b, binds := t.(transport.Binder)
	if binds {
		if err := b.Bind(n); err != nil {
			return fmt.Errorf("%w: bind %s transport: %w", ErrConfiguration, t.Kind(), err)
		}
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		if binds {
			b.Unbind(n)
		}
		return fmt.Errorf("%w: add transport to closed network", ErrLifecycle)
	}
	n.transports = append(n.transports, t)
	n.mu.Unlock()
	n.log.Debug("transport added", zap.Stringer("kind", t.Kind()), zap.Bool("local", transport.IsLocal(t)))
	return nil
}

// AddBlackholeTransport is AddTransport for the blackhole sink.
func (n *Network) AddBlackholeTransport(b *blackhole.Transport) error {
	if b == nil {
		return fmt.Errorf("%w: nil blackhole transport", ErrConfiguration)
	}
	return n.AddTransport(b)
}

// Transports returns a snapshot of the registered transports.
func (n *Network) Transports() []transport.Transport {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Clone(n.transports)
}

// RegisterSlab adds s to the live slab registry.
func (n *Network) RegisterSlab(s LocalSlab) error {
	if s == nil {
		return fmt.Errorf("%w: nil slab", ErrConfiguration)
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return fmt.Errorf("%w: register slab %d on closed network", ErrLifecycle, s.ID())
	}
	if _, dup := n.slabs[s.ID()]; dup {
		n.mu.Unlock()
		return fmt.Errorf("%w: slab %d already registered", ErrConfiguration, s.ID())
	}
	n.slabs[s.ID()] = s
	count := len(n.slabs)
	observability.SetLocalSlabs(n.id, count)
	n.mu.Unlock()

	n.log.Debug("slab registered", zap.Uint32("slab", uint32(s.ID())), zap.Int("local_slabs", count))
	return nil
}

// DeregisterSlab removes id from the registry. Unknown ids are ignored.
func (n *Network) DeregisterSlab(id transport.SlabID) {
	n.mu.Lock()
	_, ok := n.slabs[id]
	if !ok {
		n.mu.Unlock()
		return
	}
	delete(n.slabs, id)
	count := len(n.slabs)
	observability.SetLocalSlabs(n.id, count)
	n.mu.Unlock()

	n.log.Debug("slab deregistered", zap.Uint32("slab", uint32(id)), zap.Int("local_slabs", count))
}

// LocalSlabCount reports the number of registered slabs.
func (n *Network) LocalSlabCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.slabs)
}

func (n *Network) LocalSlab(id transport.SlabID) (LocalSlab, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s, ok := n.slabs[id]
	return s, ok
}

// LocalSlabIDs returns the registered ids in ascending order.
func (n *Network) LocalSlabIDs() []transport.SlabID {
	n.mu.RLock()
	ids := make([]transport.SlabID, 0, len(n.slabs))
	for id := range n.slabs {
		ids = append(ids, id)
	}
	n.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Close unbinds every transport and stops accepting slabs. Registered
// slabs are not destroyed; they stay countable until they deregister.
func (n *Network) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	ts := n.transports
	n.transports = nil
	n.mu.Unlock()

	for _, t := range ts {
		if b, ok := t.(transport.Binder); ok {
			b.Unbind(n)
		}
	}
	n.replies.Wait()
	n.log.Debug("network closed", zap.Int("transports", len(ts)))
	return nil
}

// routeErr is returned when nothing accepted a packet.
func routeErr(to transport.SlabID) error {
	return transport.Wrap(transport.KindUnknown, "send", fmt.Sprintf("slab:%d", to), transport.ErrNoRoute)
}
