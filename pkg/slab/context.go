package slab

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dnorman/unbase/pkg/network"
	"github.com/dnorman/unbase/pkg/observability"
	"github.com/dnorman/unbase/pkg/protocol"
	"github.com/dnorman/unbase/pkg/protocol/codec"
	"github.com/dnorman/unbase/pkg/transport"
)

// Context is a unit of work on a slab. It sends memos through the slab's
// network and receives the memos delivered to the slab while it is open.
type Context struct {
	id    string
	slab  *Slab
	inbox chan transport.Packet
	done  chan struct{}

	closed atomic.Bool
}

func newContext(s *Slab, buf int) *Context {
	return &Context{
		id:    uuid.NewString(),
		slab:  s,
		inbox: make(chan transport.Packet, buf),
		done:  make(chan struct{}),
	}
}

func (c *Context) ID() string { return c.id }

// Slab returns the id of the owning slab.
func (c *Context) Slab() transport.SlabID { return c.slab.id }

func (c *Context) Closed() bool { return c.closed.Load() }

func (c *Context) misuse(op string) error {
	return fmt.Errorf("%w: %s on closed context %s", network.ErrLifecycle, op, c.id)
}

// Send sends payload as a memo to slab to.
func (c *Context) Send(ctx context.Context, to transport.SlabID, payload []byte) error {
	if c.Closed() {
		return c.misuse("send")
	}
	return c.slab.net.Send(ctx, transport.Packet{
		Type:        transport.PacketMemo,
		From:        c.slab.id,
		To:          to,
		ContentType: protocol.ContentUnknown,
		Payload:     payload,
	})
}

// SendValue encodes v with the codec registered for contentType and sends it.
func (c *Context) SendValue(ctx context.Context, to transport.SlabID, contentType string, v any) error {
	if c.Closed() {
		return c.misuse("send")
	}
	b, err := codec.Default.Marshal(contentType, v)
	if err != nil {
		return err
	}
	return c.slab.net.Send(ctx, transport.Packet{
		Type:        transport.PacketMemo,
		From:        c.slab.id,
		To:          to,
		ContentType: contentType,
		Payload:     b,
	})
}

// Recv waits for the next memo delivered to this context.
func (c *Context) Recv(ctx context.Context) (transport.Packet, error) {
	if c.Closed() {
		return transport.Packet{}, c.misuse("recv")
	}
	select {
	case pkt := <-c.inbox:
		return pkt, nil
	case <-c.done:
		return transport.Packet{}, c.misuse("recv")
	case <-ctx.Done():
		return transport.Packet{}, ctx.Err()
	}
}

// RecvValue receives the next memo and decodes it into v by its content type.
func (c *Context) RecvValue(ctx context.Context, v any) (transport.Packet, error) {
	pkt, err := c.Recv(ctx)
	if err != nil {
		return pkt, err
	}
	return pkt, codec.Default.Unmarshal(pkt.ContentType, pkt.Payload, v)
}

func (c *Context) offer(pkt transport.Packet) bool {
	if c.Closed() {
		return true
	}
	select {
	case c.inbox <- pkt:
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close releases the context. It never affects the slab's registration.
func (c *Context) Close() error {
	if c.release() {
		c.slab.removeContext(c.id)
	}
	return nil
}

// release marks the context closed; true on the first call only.
func (c *Context) release() bool {
	if !c.closed.CompareAndSwap(false, true) {
		return false
	}
	close(c.done)
	observability.AddContexts(c.slab.net.ID(), -1)
	return true
}
