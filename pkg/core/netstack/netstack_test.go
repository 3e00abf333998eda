package netstack

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnorman/unbase/pkg/config"
	"github.com/dnorman/unbase/pkg/network"
	"github.com/dnorman/unbase/pkg/transport"
	"github.com/dnorman/unbase/pkg/transport/blackhole"
)

type nopSlab transport.SlabID

func (s nopSlab) ID() transport.SlabID            { return transport.SlabID(s) }
func (nopSlab) Deliver(transport.Packet) error { return nil }

func TestNewByKind(t *testing.T) {
	tr, err := NewByKind("blackhole", "")
	require.NoError(t, err)
	assert.IsType(t, &blackhole.Transport{}, tr)

	for _, k := range []string{"udp", "tcp", "mem"} {
		tr, err := NewByKind(k, "127.0.0.1:0")
		require.NoError(t, err, k)
		assert.Equal(t, transport.ParseKind(k), tr.Kind())
	}

	_, err = NewByKind("mem", "")
	assert.Error(t, err)

	_, err = NewByKind("carrier-pigeon", "")
	var unknown ErrUnknownKind
	assert.ErrorAs(t, err, &unknown)
}

func TestOptionsFromConfig(t *testing.T) {
	o := OptionsFromConfig(config.Default().Net)
	assert.Equal(t, 500*time.Millisecond, o.BackoffInitial)
	assert.Equal(t, 30*time.Second, o.BackoffMax)
	assert.Equal(t, 2*time.Second, o.SendTimeout)
}

func TestStartFromConfigSeedsOverUDP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := network.CreateNewSystem(network.WithNodeID("a"), network.WithSlabIDBase(1))
	defer a.Close()
	require.NoError(t, a.RegisterSlab(nopSlab(1)))
	ma, err := StartFromConfig(ctx, []config.TransportConfig{
		{Kind: "udp", Listen: []string{"127.0.0.1:0"}},
		{Kind: "blackhole"},
		{Kind: "carrier-pigeon"},
	}, a, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), ma.Transports())

	var seed string
	for _, tr := range a.Transports() {
		if ra, ok := tr.(transport.ReturnAddresser); ok && tr.Kind() == transport.KindUDP {
			seed = ra.ReturnAddress().Addr
		}
	}
	require.NotEmpty(t, seed)

	b := network.New(network.WithNodeID("b"), network.WithSlabIDBase(100))
	defer b.Close()
	require.NoError(t, b.RegisterSlab(nopSlab(100)))
	mb, err := StartFromConfig(ctx, []config.TransportConfig{
		{Kind: "udp", Listen: []string{"127.0.0.1:0"}, Seeds: []string{seed}},
	}, b, Options{BackoffInitial: 20 * time.Millisecond, Attempts: 50})
	require.NoError(t, err)

	mb.Wait()
	assert.Zero(t, mb.ActiveSeeds())
	assert.Equal(t, []transport.Address{{Kind: transport.KindUDP, Addr: seed}}, b.Presence(1))
	require.Eventually(t, func() bool { return len(a.Presence(100)) == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestSeedLoopGivesUp(t *testing.T) {
	n := network.CreateNewSystem()
	defer n.Close()
	start := time.Now()
	seedLoop(context.Background(), n, transport.Address{Kind: transport.KindTCP, Addr: "127.0.0.1:1"},
		Options{BackoffInitial: time.Millisecond, BackoffMax: 2 * time.Millisecond, Attempts: 3})
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWithJitter(t *testing.T) {
	assert.Equal(t, time.Second, withJitter(time.Second, 0))
	for i := 0; i < 20; i++ {
		d := withJitter(time.Second, 10*time.Millisecond)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, time.Second+10*time.Millisecond)
	}
}
