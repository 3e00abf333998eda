package network

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/dnorman/unbase/pkg/observability"
	"github.com/dnorman/unbase/pkg/protocol"
	"github.com/dnorman/unbase/pkg/transport"
)

// Send routes pkt to pkt.To:
//  1. a slab registered here gets it directly; To 0 goes to the lowest
//     local slab id;
//  2. otherwise the newest address the slab was seen at that some transport
//     can reach picks the route, and the first transport of that kind sends;
//  3. a slab with no known address goes to the first catch-all transport
//     (blackhole).
//
// Only one route is tried. Its error is returned as-is. ErrNoRoute is
// returned when no route exists.
func (n *Network) Send(ctx context.Context, pkt transport.Packet) error {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return fmt.Errorf("%w: send on closed network", ErrLifecycle)
	}
	local, isLocal := n.slabs[pkt.To]
	if pkt.To == 0 {
		local, isLocal = n.lowestSlabLocked()
	}
	addrs := slices.Clone(n.presence[pkt.To])
	ts := slices.Clone(n.transports)
	n.mu.RUnlock()

	if isLocal {
		err := local.Deliver(pkt)
		observability.RecordSend(n.id, transport.KindLocal.String(), err)
		return err
	}

	for _, addr := range addrs {
		for _, t := range ts {
			if t.Kind() == addr.Kind {
				return n.sendVia(ctx, t, addr, pkt)
			}
		}
	}
	if len(addrs) == 0 {
		for _, t := range ts {
			if c, ok := t.(transport.Catchall); ok && c.AcceptsAll() {
				return n.sendVia(ctx, t, transport.Address{Kind: t.Kind()}, pkt)
			}
		}
	}
	return routeErr(pkt.To)
}

// SendTo sends pkt to an explicit address through the first transport of
// its kind.
func (n *Network) SendTo(ctx context.Context, addr transport.Address, pkt transport.Packet) error {
	if n.Closed() {
		return fmt.Errorf("%w: send on closed network", ErrLifecycle)
	}
	for _, t := range n.Transports() {
		if t.Kind() == addr.Kind {
			return n.sendVia(ctx, t, addr, pkt)
		}
	}
	return transport.Wrap(addr.Kind, "send", addr.Addr, transport.ErrNoRoute)
}

func (n *Network) sendVia(ctx context.Context, t transport.Transport, addr transport.Address, pkt transport.Packet) error {
	if ra, ok := t.(transport.ReturnAddresser); ok {
		pkt.ReturnAddr = ra.ReturnAddress()
	}
	err := t.Send(ctx, addr, pkt)
	observability.RecordSend(n.id, t.Kind().String(), err)
	if err != nil {
		n.log.Debug("send failed", zap.Stringer("to", addr), zap.Uint32("slab", uint32(pkt.To)), zap.Error(err))
	}
	return err
}

func (n *Network) presencePacket(typ transport.PacketType) transport.Packet {
	return transport.Packet{
		Type:    typ,
		Payload: protocol.EncodeSlabIDs(n.LocalSlabIDs()),
	}
}

// Seed greets the node at addr with the ids of the local slabs. Its
// presence reply teaches this network where the remote slabs live.
func (n *Network) Seed(ctx context.Context, addr transport.Address) error {
	n.log.Debug("seeding", zap.Stringer("addr", addr))
	return n.SendTo(ctx, addr, n.presencePacket(transport.PacketHello))
}

// Broadcast announces the local slabs once to every address that a remote
// slab was seen at.
func (n *Network) Broadcast(ctx context.Context) error {
	seen := make(map[transport.Address]struct{})
	var errs []error
	for _, addr := range n.knownAddresses() {
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		if err := n.SendTo(ctx, addr, n.presencePacket(transport.PacketPresence)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
