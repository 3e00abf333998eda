// Package blackhole provides a transport that accepts every packet and
// delivers none of them. It lets a network operate without a live network
// path, which is what tests and bootstrap scenarios need.
package blackhole

import (
	"context"
	"sync/atomic"

	"github.com/dnorman/unbase/pkg/transport"
)

// Transport discards everything sent through it.
type Transport struct {
	calls atomic.Uint64
}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindBlackhole }

// Send always succeeds. The packet is dropped without queuing or delivery.
func (t *Transport) Send(_ context.Context, _ transport.Address, _ transport.Packet) error {
	t.calls.Add(1)
	return nil
}

func (t *Transport) IsLocal() bool    { return true }
func (t *Transport) AcceptsAll() bool { return true }

func (t *Transport) ReturnAddress() transport.Address {
	return transport.Address{Kind: transport.KindBlackhole}
}

// Calls reports how many packets were swallowed.
func (t *Transport) Calls() uint64 { return t.calls.Load() }
