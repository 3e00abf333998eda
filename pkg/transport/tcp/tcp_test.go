package tcp

import (
	"context"
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

func (r *recordingSink) snapshot() []transport.Packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transport.Packet(nil), r.pkts...)
}

func TestLoopbackRoundTrip(t *testing.T) {
	a, b := New("127.0.0.1:0"), New("127.0.0.1:0")
	sa, sb := &recordingSink{}, &recordingSink{}
	require.NoError(t, a.Bind(sa))
	defer a.Unbind(sa)
	require.NoError(t, b.Bind(sb))
	defer b.Unbind(sb)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pkt := transport.Packet{From: 1, To: 2, ReturnAddr: a.ReturnAddress(), Payload: []byte("ping")}
	require.NoError(t, a.Send(ctx, b.ReturnAddress(), pkt))
	require.Eventually(t, func() bool { return len(sb.snapshot()) == 1 }, 3*time.Second, 10*time.Millisecond)

	got := sb.snapshot()[0]
	assert.Equal(t, transport.SlabID(2), got.To)
	assert.Equal(t, "ping", string(got.Payload))
	assert.Equal(t, a.ReturnAddress(), got.ReturnAddr)

	// the inbound conn is now canonical for a's address, so b replies on it
	require.Eventually(t, func() bool { return len(b.Peers()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{a.Addr()}, b.Peers())

	reply := transport.Packet{From: 2, To: 1, Payload: []byte("pong")}
	require.NoError(t, b.Send(ctx, a.ReturnAddress(), reply))
	require.Eventually(t, func() bool { return len(sa.snapshot()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "pong", string(sa.snapshot()[0].Payload))
}

func TestSendUnbound(t *testing.T) {
	tr := New("")
	err := tr.Send(context.Background(), transport.Address{Kind: transport.KindTCP, Addr: "127.0.0.1:1"}, transport.Packet{})
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestDialFailureIsReported(t *testing.T) {
	tr := New("")
	s := &recordingSink{}
	require.NoError(t, tr.Bind(s))
	defer tr.Unbind(s)

	// reserve a port and release it so nothing listens there
	probe := New("127.0.0.1:0")
	require.NoError(t, probe.Bind(s))
	addr := probe.Addr()
	probe.Unbind(s)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := tr.Send(ctx, transport.Address{Kind: transport.KindTCP, Addr: addr}, transport.Packet{To: 1})
	var terr *transport.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "dial", terr.Op)
}

func TestBindTwiceFails(t *testing.T) {
	tr := New("127.0.0.1:0")
	s := &recordingSink{}
	require.NoError(t, tr.Bind(s))
	defer tr.Unbind(s)
	assert.Error(t, tr.Bind(s))
}
