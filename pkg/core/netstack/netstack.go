// Package netstack builds transports from config, adds them to a network
// and greets configured seed addresses.
package netstack

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dnorman/unbase/pkg/config"
	"github.com/dnorman/unbase/pkg/network"
	"github.com/dnorman/unbase/pkg/transport"
	"github.com/dnorman/unbase/pkg/transport/blackhole"
	"github.com/dnorman/unbase/pkg/transport/mem"
	tquic "github.com/dnorman/unbase/pkg/transport/quic"
	ttcp "github.com/dnorman/unbase/pkg/transport/tcp"
	"github.com/dnorman/unbase/pkg/transport/udp"
)

// Options tunes seeding.
type Options struct {
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffJitter  time.Duration
	// Attempts bounds hellos per seed; 0 keeps greeting until ctx ends.
	Attempts int
	// SendTimeout bounds a single hello.
	SendTimeout time.Duration
}

// OptionsFromConfig maps the net section onto Options.
func OptionsFromConfig(c config.NetConfig) Options {
	return Options{
		BackoffInitial: time.Duration(c.SeedBackoffInitialMS) * time.Millisecond,
		BackoffMax:     time.Duration(c.SeedBackoffMaxMS) * time.Millisecond,
		BackoffJitter:  time.Duration(c.SeedBackoffJitterMS) * time.Millisecond,
		Attempts:       c.SeedAttempts,
		SendTimeout:    time.Duration(c.SendTimeoutMS) * time.Millisecond,
	}
}

// Manager tracks what StartFromConfig started.
type Manager struct {
	activeSeeds atomic.Int64
	transports  atomic.Int64
	wg          sync.WaitGroup
}

func (m *Manager) ActiveSeeds() int64 { return m.activeSeeds.Load() }
func (m *Manager) Transports() int64  { return m.transports.Load() }

// Wait blocks until every seed loop has returned.
func (m *Manager) Wait() { m.wg.Wait() }

// StartFromConfig builds one transport per listen address (one unbound
// transport when none is given), adds it to net and starts a seed loop per
// seed address. Transports that cannot be built or bound are logged and
// skipped. Seed loops stop when ctx is canceled.
func StartFromConfig(ctx context.Context, cfg []config.TransportConfig, net *network.Network, opts Options) (*Manager, error) {
	m := &Manager{}
	for _, tc := range cfg {
		kind := transport.ParseKind(tc.Kind)
		listen := tc.Listen
		if len(listen) == 0 {
			listen = []string{""}
		}
		for _, addr := range listen {
			tr, err := NewByKind(tc.Kind, addr)
			if err != nil {
				zap.L().Warn("transport kind not available", zap.String("kind", tc.Kind), zap.Error(err))
				continue
			}
			if err := net.AddTransport(tr); err != nil {
				zap.L().Error("transport not added", zap.String("kind", tc.Kind), zap.String("addr", addr), zap.Error(err))
				continue
			}
			m.transports.Add(1)
			fields := []zap.Field{zap.Stringer("kind", kind)}
			if ra, ok := tr.(transport.ReturnAddresser); ok {
				fields = append(fields, zap.Stringer("addr", ra.ReturnAddress()))
			}
			zap.L().Info("transport ready", fields...)
		}
		for _, seed := range tc.Seeds {
			addr := transport.Address{Kind: kind, Addr: seed}
			m.activeSeeds.Add(1)
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				defer m.activeSeeds.Add(-1)
				seedLoop(ctx, net, addr, opts)
			}()
		}
	}
	return m, nil
}

// NewByKind constructs a transport by kind name. listen is the bind
// address, or the endpoint name for mem.
func NewByKind(kind, listen string) (transport.Transport, error) {
	switch transport.ParseKind(kind) {
	case transport.KindBlackhole:
		return blackhole.New(), nil
	case transport.KindMem:
		if listen == "" {
			return nil, errors.New("mem transport needs an endpoint name in listen")
		}
		return mem.New(nil, listen), nil
	case transport.KindUDP:
		return udp.New(listen), nil
	case transport.KindTCP:
		return ttcp.New(listen), nil
	case transport.KindQUIC:
		t, err := tquic.New(listen)
		if err != nil {
			return nil, err
		}
		return t, nil
	case transport.KindWinPipe:
		return newWinPipeTransport(listen)
	default:
		return nil, ErrUnknownKind(kind)
	}
}

// ErrUnknownKind reports a kind that cannot be built from config.
type ErrUnknownKind string

func (e ErrUnknownKind) Error() string { return "unknown transport kind: " + string(e) }
