// Package mem is an in-process transport. Networks living in the same
// process reach each other through a shared Hub; each network binds its own
// named endpoint.
package mem

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/dnorman/unbase/pkg/transport"
)

// DefaultHub is shared by endpoints built from config.
var DefaultHub = NewHub()

// Hub routes packets between named endpoints.
type Hub struct {
	mu        sync.RWMutex
	endpoints map[string]*Transport
}

func NewHub() *Hub { return &Hub{endpoints: make(map[string]*Transport)} }

func (h *Hub) lookup(name string) *Transport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.endpoints[name]
}

// Names lists bound endpoints.
func (h *Hub) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.endpoints))
	for n := range h.endpoints {
		out = append(out, n)
	}
	return out
}

// Transport is one named endpoint on a Hub. Inbound packets are queued and
// handed to the bound sink by a single delivery goroutine, so a sender never
// runs receiver code on its own stack.
type Transport struct {
	hub  *Hub
	name string

	mu   sync.Mutex
	sink transport.Sink
	q    chan transport.Packet
	done chan struct{}
	wg   sync.WaitGroup
}

// New creates an endpoint called name on hub (DefaultHub when nil).
func New(hub *Hub, name string) *Transport {
	if hub == nil {
		hub = DefaultHub
	}
	return &Transport{hub: hub, name: name}
}

func (t *Transport) Kind() transport.Kind { return transport.KindMem }
func (t *Transport) IsLocal() bool        { return true }

func (t *Transport) ReturnAddress() transport.Address {
	return transport.Address{Kind: transport.KindMem, Addr: t.name}
}

// Bind attaches the endpoint to s and publishes it on the hub.
func (t *Transport) Bind(s transport.Sink) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sink != nil {
		return errors.New("mem: endpoint already bound")
	}
	t.hub.mu.Lock()
	if _, ok := t.hub.endpoints[t.name]; ok {
		t.hub.mu.Unlock()
		return errors.New("mem: endpoint name in use: " + t.name)
	}
	t.hub.endpoints[t.name] = t
	t.hub.mu.Unlock()

	t.sink = s
	t.q = make(chan transport.Packet, 256)
	t.done = make(chan struct{})
	t.wg.Add(1)
	go t.deliverLoop(s, t.q, t.done)
	return nil
}

// Unbind removes the endpoint from the hub and stops delivery. Queued
// packets are dropped.
func (t *Transport) Unbind(s transport.Sink) {
	t.mu.Lock()
	if t.sink == nil || t.sink != s {
		t.mu.Unlock()
		return
	}
	t.hub.mu.Lock()
	delete(t.hub.endpoints, t.name)
	t.hub.mu.Unlock()
	close(t.done)
	t.sink = nil
	t.mu.Unlock()
	t.wg.Wait()
}

// Send enqueues pkt for the endpoint named by to.Addr.
func (t *Transport) Send(ctx context.Context, to transport.Address, pkt transport.Packet) error {
	dst := t.hub.lookup(to.Addr)
	if dst == nil {
		return transport.Wrap(transport.KindMem, "send", to.Addr, transport.ErrUnknownAddress)
	}
	return dst.enqueue(ctx, pkt)
}

func (t *Transport) enqueue(ctx context.Context, pkt transport.Packet) error {
	t.mu.Lock()
	q, done := t.q, t.done
	bound := t.sink != nil
	t.mu.Unlock()
	if !bound {
		return transport.Wrap(transport.KindMem, "send", t.name, transport.ErrClosed)
	}
	pkt.Payload = append([]byte(nil), pkt.Payload...)
	select {
	case q <- pkt:
		return nil
	case <-done:
		return transport.Wrap(transport.KindMem, "send", t.name, transport.ErrClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) deliverLoop(s transport.Sink, q <-chan transport.Packet, done <-chan struct{}) {
	defer t.wg.Done()
	for {
		select {
		case <-done:
			return
		case pkt := <-q:
			if err := s.Deliver(pkt); err != nil {
				zap.L().Debug("mem deliver failed", zap.String("endpoint", t.name), zap.Uint32("to", uint32(pkt.To)), zap.Error(err))
			}
		}
	}
}
