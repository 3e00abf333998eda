package blackhole

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnorman/unbase/pkg/transport"
)

var (
	_ transport.Transport       = (*Transport)(nil)
	_ transport.Local           = (*Transport)(nil)
	_ transport.Catchall        = (*Transport)(nil)
	_ transport.ReturnAddresser = (*Transport)(nil)
)

func TestSendAlwaysSucceeds(t *testing.T) {
	bh := New()
	ctx := context.Background()

	packets := []transport.Packet{
		{},
		{Type: transport.PacketMemo, From: 1, To: 2, Payload: []byte("hello")},
		{Type: transport.PacketHello, Payload: make([]byte, 1<<20)},
	}
	addrs := []transport.Address{
		{},
		{Kind: transport.KindUDP, Addr: "10.0.0.1:1"},
		{Kind: transport.KindBlackhole},
	}
	for _, p := range packets {
		for _, a := range addrs {
			require.NoError(t, bh.Send(ctx, a, p))
		}
	}
	assert.Equal(t, uint64(len(packets)*len(addrs)), bh.Calls())
}

func TestSendIgnoresCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, New().Send(ctx, transport.Address{}, transport.Packet{}))
}

func TestCapabilities(t *testing.T) {
	bh := New()
	assert.Equal(t, transport.KindBlackhole, bh.Kind())
	assert.True(t, transport.IsLocal(bh))
	assert.True(t, bh.AcceptsAll())
	assert.Equal(t, "blackhole:", bh.ReturnAddress().String())
}
