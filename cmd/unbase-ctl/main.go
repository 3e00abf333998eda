// Command unbase-ctl greets a running node, prints the slabs it announces
// and optionally sends one memo to a slab there.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	netstack "github.com/dnorman/unbase/pkg/core/netstack"
	"github.com/dnorman/unbase/pkg/network"
	"github.com/dnorman/unbase/pkg/protocol"
	"github.com/dnorman/unbase/pkg/transport"
)

func main() {
	kind := flag.String("kind", "udp", "transport kind: udp|tcp|quic|winpipe")
	addr := flag.String("addr", "127.0.0.1:51000", "node address to greet")
	listen := flag.String("listen", "127.0.0.1:0", "local bind address")
	timeout := flag.Duration("timeout", 5*time.Second, "how long to wait for the presence reply")
	to := flag.Uint("to", 0, "slab id to send a memo to (0 = do not send)")
	payload := flag.String("payload", "", "memo payload (JSON)")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	tr, err := netstack.NewByKind(*kind, *listen)
	if err != nil {
		fatalf("new transport: %v", err)
	}
	net := network.New(network.WithNodeID("unbase-ctl"))
	defer net.Close()
	if err := net.AddTransport(tr); err != nil {
		fatalf("add transport: %v", err)
	}

	target := transport.Address{Kind: transport.ParseKind(*kind), Addr: *addr}
	if err := net.Seed(ctx, target); err != nil {
		fatalf("hello: %v", err)
	}
	slabs := waitPresence(ctx, net)

	out := map[string]any{"addr": target.String(), "slabs": slabs}
	if *to != 0 {
		pkt := transport.Packet{
			Type:        transport.PacketMemo,
			To:          transport.SlabID(*to),
			ContentType: protocol.ContentJSON,
			Payload:     []byte(*payload),
		}
		if err := net.Send(ctx, pkt); err != nil {
			fatalf("send memo: %v", err)
		}
		out["sent_to"] = *to
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

// waitPresence polls until some remote slab is known or ctx ends.
func waitPresence(ctx context.Context, net *network.Network) []transport.SlabID {
	tk := time.NewTicker(20 * time.Millisecond)
	defer tk.Stop()
	for {
		if ids := net.RemoteSlabIDs(); len(ids) > 0 {
			return ids
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tk.C:
		}
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "unbase-ctl: "+format+"\n", args...)
	os.Exit(1)
}
