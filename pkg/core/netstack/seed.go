package netstack

import (
	"context"
	"math/rand/v2"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/dnorman/unbase/pkg/network"
	"github.com/dnorman/unbase/pkg/transport"
)

// seedLoop greets addr until a slab living there is known, backing off
// between attempts.
func seedLoop(ctx context.Context, net *network.Network, addr transport.Address, opts Options) {
	backoff := opts.BackoffInitial
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	maxBackoff := opts.BackoffMax
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	for attempt := 1; opts.Attempts <= 0 || attempt <= opts.Attempts; attempt++ {
		sctx, cancel := context.WithTimeout(ctx, timeout)
		err := net.Seed(sctx, addr)
		cancel()
		if err != nil {
			zap.L().Warn("seed failed", zap.Stringer("addr", addr), zap.Int("attempt", attempt), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(withJitter(backoff, opts.BackoffJitter)):
		}
		if err == nil && knownAt(net, addr) {
			zap.L().Info("seeded", zap.Stringer("addr", addr), zap.Int("attempt", attempt))
			return
		}
		if backoff < maxBackoff {
			backoff = min(backoff*2, maxBackoff)
		}
	}
	zap.L().Warn("seed gave up", zap.Stringer("addr", addr), zap.Int("attempts", opts.Attempts))
}

// knownAt reports whether some remote slab was last seen at addr.
func knownAt(net *network.Network, addr transport.Address) bool {
	for _, id := range net.RemoteSlabIDs() {
		if slices.Contains(net.Presence(id), addr) {
			return true
		}
	}
	return false
}

func withJitter(d, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return d
	}
	return d + rand.N(jitter)
}
