package quic

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

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pkts)
}

func TestLoopbackRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("quic loopback in -short")
	}
	srv, err := New("127.0.0.1:0")
	require.NoError(t, err)
	cli, err := New("")
	require.NoError(t, err)

	ss, cs := &recordingSink{}, &recordingSink{}
	require.NoError(t, srv.Bind(ss))
	defer srv.Unbind(ss)
	require.NoError(t, cli.Bind(cs))
	defer cli.Unbind(cs)

	assert.Equal(t, transport.KindQUIC, srv.ReturnAddress().Kind)
	assert.True(t, cli.ReturnAddress().IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		require.NoError(t, cli.Send(ctx, srv.ReturnAddress(), transport.Packet{To: 7, Payload: []byte{byte(i)}}))
	}
	require.Eventually(t, func() bool { return ss.count() == 3 }, 5*time.Second, 20*time.Millisecond)
	assert.Len(t, cli.Peers(), 1)
}
