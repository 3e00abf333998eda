package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnorman/unbase/pkg/transport"
)

type recordingSink struct {
	mu   sync.Mutex
	pkts []transport.Packet
}

func (r *recordingSink) Deliver(p transport.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pkts = append(r.pkts, p)
	return nil
}

func (r *recordingSink) payloads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.pkts))
	for _, p := range r.pkts {
		out = append(out, string(p.Payload))
	}
	return out
}

func setup(t *testing.T) (*Simulator, *Transport, *Transport, *recordingSink) {
	t.Helper()
	s := NewSimulator()
	a := New(s, "a", Point{})
	b := New(s, "b", Point{X: 3, Y: 4})
	sb := &recordingSink{}
	require.NoError(t, a.Bind(&recordingSink{}))
	require.NoError(t, b.Bind(sb))
	return s, a, b, sb
}

func TestDeliveryWaitsForDistance(t *testing.T) {
	s, a, b, sb := setup(t)
	ctx := context.Background()

	require.NoError(t, a.Send(ctx, b.ReturnAddress(), transport.Packet{Payload: []byte("far")}))
	assert.Equal(t, 1, s.Pending())

	// distance 5, plus one tick
	assert.Equal(t, 0, s.AdvanceClock(5))
	assert.Empty(t, sb.payloads())
	assert.Equal(t, 1, s.AdvanceClock(1))
	assert.Equal(t, []string{"far"}, sb.payloads())
	assert.Equal(t, uint64(6), s.Clock())
	assert.Zero(t, s.Pending())
}

func TestDeliveryOrderFollowsArrival(t *testing.T) {
	s := NewSimulator()
	near := New(s, "near", Point{X: 1})
	far := New(s, "far", Point{X: 10})
	dst := New(s, "dst", Point{})
	sink := &recordingSink{}
	require.NoError(t, near.Bind(&recordingSink{}))
	require.NoError(t, far.Bind(&recordingSink{}))
	require.NoError(t, dst.Bind(sink))

	ctx := context.Background()
	require.NoError(t, far.Send(ctx, dst.ReturnAddress(), transport.Packet{Payload: []byte("slow")}))
	require.NoError(t, near.Send(ctx, dst.ReturnAddress(), transport.Packet{Payload: []byte("quick")}))
	s.AdvanceClock(20)
	assert.Equal(t, []string{"quick", "slow"}, sink.payloads())
}

func TestUnknownEndpoint(t *testing.T) {
	_, a, _, _ := setup(t)
	err := a.Send(context.Background(), transport.Address{Kind: transport.KindSim, Addr: "zz"}, transport.Packet{})
	assert.True(t, errors.Is(err, transport.ErrUnknownAddress))
}

func TestLostWhenEndpointLeaves(t *testing.T) {
	s, a, b, sb := setup(t)
	require.NoError(t, a.Send(context.Background(), b.ReturnAddress(), transport.Packet{Payload: []byte("x")}))
	b.Unbind(sb)
	assert.Equal(t, 0, s.AdvanceClock(100))
	assert.Empty(t, sb.payloads())
}

func TestMetronomeAndWaitIdle(t *testing.T) {
	s, a, b, sb := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go s.Metronome(ctx, time.Millisecond)

	require.NoError(t, a.Send(ctx, b.ReturnAddress(), transport.Packet{Payload: []byte("tick")}))
	require.NoError(t, s.WaitIdle(ctx))
	assert.Equal(t, []string{"tick"}, sb.payloads())
}

func TestPauseStopsMetronome(t *testing.T) {
	s, _, _, _ := setup(t)
	s.Pause()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	s.Metronome(ctx, time.Millisecond)
	assert.Zero(t, s.Clock())
	s.Resume()
}
