// Command unbase-bootstrap assembles a throwaway system: a new network with
// a blackhole transport, one slab and one context, printing the local slab
// count as it goes.
package main

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/dnorman/unbase/pkg/config"
	"github.com/dnorman/unbase/pkg/network"
	"github.com/dnorman/unbase/pkg/observability"
	"github.com/dnorman/unbase/pkg/slab"
	"github.com/dnorman/unbase/pkg/transport/blackhole"
)

func main() {
	logCfg := config.Default().Log
	logCfg.Level = "warn"
	if lg, err := observability.SetupLogger(logCfg); err == nil {
		defer func() { _ = lg.Sync() }()
	}

	if err := bootstrap(os.Stdout); err != nil {
		zap.L().Error("bootstrap failed", zap.Error(err))
		os.Exit(1)
	}
}

func bootstrap(w io.Writer) error {
	net := network.CreateNewSystem()
	defer func() { _ = net.Close() }()

	if err := net.AddBlackholeTransport(blackhole.New()); err != nil {
		return err
	}
	fmt.Fprintf(w, "local slabs: %d\n", net.LocalSlabCount())

	err := slab.With(net, func(s *slab.Slab) error {
		fmt.Fprintf(w, "local slabs: %d\n", net.LocalSlabCount())
		return s.WithContext(func(c *slab.Context) error {
			fmt.Fprintf(w, "context %s on slab %d\n", c.ID(), c.Slab())
			return nil
		})
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "local slabs: %d\n", net.LocalSlabCount())
	return nil
}
