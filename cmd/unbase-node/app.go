package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dnorman/unbase/pkg/config"
	netstack "github.com/dnorman/unbase/pkg/core/netstack"
	"github.com/dnorman/unbase/pkg/identity"
	"github.com/dnorman/unbase/pkg/network"
	"github.com/dnorman/unbase/pkg/observability"
	"github.com/dnorman/unbase/pkg/slab"
	"github.com/dnorman/unbase/pkg/transport"
)

func loadConfig(opts Options) (*config.Config, error) {
	if opts.ConfigPath == "" {
		return config.Load("")
	}
	return config.Watch(opts.ConfigPath, func(c *config.Config, e fsnotify.Event) {
		if err := observability.SetLevel(c.Log.Level); err != nil {
			zap.L().Warn("config reload: log level", zap.Error(err))
			return
		}
		zap.L().Info("config reloaded", zap.String("file", e.Name), zap.String("log_level", c.Log.Level))
	})
}

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	cfg, err := loadConfig(opts)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}
	if opts.PrintConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			_, _ = os.Stderr.WriteString("failed to encode config: " + err.Error() + "\n")
			return 1
		}
		_, _ = os.Stdout.Write(out)
		return 0
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	zap.L().Info("unbase-node started", zap.String("app", cfg.AppName))
	zap.L().Debug("effective configuration", zap.Any("config", cfg))

	if cfg.NodeID == "" {
		_, derived, err := identity.LoadOrGenEd25519(cfg.Identity)
		if err != nil {
			_, _ = os.Stderr.WriteString("failed to init identity: " + err.Error() + "\n")
			return 1
		}
		cfg.NodeID = derived
		zap.L().Info("derived node_id from identity", zap.String("node_id", cfg.NodeID))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	netOpts := []network.Option{
		network.WithNodeID(cfg.NodeID),
		network.WithSlabIDBase(transport.SlabID(cfg.SlabIDBase)),
		network.WithSendTimeout(time.Duration(cfg.Net.SendTimeoutMS) * time.Millisecond),
	}
	var net *network.Network
	if cfg.CreateNewSystem {
		net = network.CreateNewSystem(netOpts...)
	} else {
		net = network.New(netOpts...)
	}
	defer func() { _ = net.Close() }()

	if cfg.Metrics.Enable {
		srv := startMetrics(cfg.Metrics.Listen)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	// slabs first, so the first hellos already announce them
	slabs := make([]*slab.Slab, 0, cfg.Slabs)
	for i := 0; i < cfg.Slabs; i++ {
		s, err := slab.New(net)
		if err != nil {
			zap.L().Error("failed to create slab", zap.Error(err))
			return 1
		}
		defer func() { _ = s.Close() }()
		slabs = append(slabs, s)
	}

	mgr, err := netstack.StartFromConfig(ctx, cfg.Transports, net, netstack.OptionsFromConfig(cfg.Net))
	if err != nil {
		zap.L().Error("failed to start transports", zap.Error(err))
		return 1
	}

	zap.L().Info("node is running; press Ctrl+C to exit",
		zap.String("node_id", net.ID()),
		zap.Int("local_slabs", net.LocalSlabCount()),
		zap.Int64("transports", mgr.Transports()))

	tk := time.NewTicker(30 * time.Second)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("shutting down", zap.Int64("active_seeds", mgr.ActiveSeeds()))
			return 0
		case <-tk.C:
			var memos, memoBytes uint64
			for _, s := range slabs {
				st := s.StoreStats()
				memos += st.Keys
				memoBytes += st.Bytes
			}
			zap.L().Info("status",
				zap.Int("local_slabs", net.LocalSlabCount()),
				zap.Int("remote_slabs", len(net.RemoteSlabIDs())),
				zap.Uint64("stored_memos", memos),
				zap.Uint64("stored_memo_bytes", memoBytes),
				zap.Int64("active_seeds", mgr.ActiveSeeds()))
		}
	}
}

func startMetrics(addr string) *http.Server {
	observability.RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("metrics server stopped", zap.Error(err))
		}
	}()
	zap.L().Info("metrics listening", zap.String("addr", addr))
	return srv
}
