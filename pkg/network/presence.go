package network

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/dnorman/unbase/pkg/observability"
	"github.com/dnorman/unbase/pkg/protocol"
	"github.com/dnorman/unbase/pkg/transport"
)

// maxPresence bounds the addresses remembered per remote slab.
const maxPresence = 4

// RecordPresence remembers that slab id is reachable at addr. The newest
// address is tried first. Local slabs and blackhole addresses are ignored.
func (n *Network) RecordPresence(id transport.SlabID, addr transport.Address) {
	if id == 0 || addr.IsZero() || addr.Kind == transport.KindBlackhole {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, local := n.slabs[id]; local {
		return
	}
	cur := n.presence[id]
	if len(cur) > 0 && cur[0] == addr {
		return
	}
	next := make([]transport.Address, 0, len(cur)+1)
	next = append(next, addr)
	for _, a := range cur {
		if a != addr && len(next) < maxPresence {
			next = append(next, a)
		}
	}
	n.presence[id] = next
}

// Presence lists the addresses slab id was seen at, newest first.
func (n *Network) Presence(id transport.SlabID) []transport.Address {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Clone(n.presence[id])
}

func (n *Network) ForgetPresence(id transport.SlabID) {
	n.mu.Lock()
	delete(n.presence, id)
	n.mu.Unlock()
}

// RemoteSlabIDs lists the remote slabs with a known address, ascending.
func (n *Network) RemoteSlabIDs() []transport.SlabID {
	n.mu.RLock()
	ids := make([]transport.SlabID, 0, len(n.presence))
	for id := range n.presence {
		ids = append(ids, id)
	}
	n.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

func (n *Network) knownAddresses() []transport.Address {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []transport.Address
	for _, addrs := range n.presence {
		out = append(out, addrs...)
	}
	return out
}

// Deliver implements transport.Sink. Every inbound packet teaches the
// network where its sender lives; hello and presence packets list more
// slabs at the same address, and a hello is answered with our presence.
func (n *Network) Deliver(pkt transport.Packet) error {
	if n.Closed() {
		return fmt.Errorf("%w: deliver on closed network", ErrLifecycle)
	}
	observability.RecordDeliver(n.id, pkt.Type.String())
	n.RecordPresence(pkt.From, pkt.ReturnAddr)

	switch pkt.Type {
	case transport.PacketHello, transport.PacketPresence:
		ids, err := protocol.DecodeSlabIDs(pkt.Payload)
		if err != nil {
			return fmt.Errorf("network: %s payload: %w", pkt.Type, err)
		}
		for _, id := range ids {
			n.RecordPresence(id, pkt.ReturnAddr)
		}
		if pkt.Type == transport.PacketHello && !pkt.ReturnAddr.IsZero() {
			n.replyPresence(pkt.ReturnAddr)
		}
		return nil
	default:
		return n.deliverMemo(pkt)
	}
}

func (n *Network) deliverMemo(pkt transport.Packet) error {
	n.mu.RLock()
	s, ok := n.slabs[pkt.To]
	if pkt.To == 0 {
		s, ok = n.lowestSlabLocked()
	}
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrSlabNotFound, pkt.To)
	}
	return s.Deliver(pkt)
}

// lowestSlabLocked picks the local slab with the lowest id, which takes
// memos addressed to any slab. n.mu must be held.
func (n *Network) lowestSlabLocked() (LocalSlab, bool) {
	var (
		best LocalSlab
		low  transport.SlabID
	)
	for id, s := range n.slabs {
		if best == nil || id < low {
			best, low = s, id
		}
	}
	return best, best != nil
}

// replyPresence answers a hello off the delivering goroutine, so a
// transport never sends from inside its own receive path.
func (n *Network) replyPresence(to transport.Address) {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return
	}
	n.replies.Add(1)
	n.mu.RUnlock()
	go func() {
		defer n.replies.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.sendTimeout)
		defer cancel()
		if err := n.SendTo(ctx, to, n.presencePacket(transport.PacketPresence)); err != nil {
			n.log.Debug("presence reply failed", zap.Stringer("to", to), zap.Error(err))
		}
	}()
}
