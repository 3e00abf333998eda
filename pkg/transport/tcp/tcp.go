// Package tcp carries packets over TCP connections using the stream engine.
package tcp

import (
	"context"
	"io"
	"net"

	"github.com/dnorman/unbase/pkg/transport"
	"github.com/dnorman/unbase/pkg/transport/stream"
)

// Transport is a TCP transport. Listen may be empty for outbound-only use.
type Transport struct {
	*stream.Transport
}

func New(listen string) *Transport {
	return &Transport{Transport: stream.New(transport.KindTCP, listen, listenTCP, dialTCP)}
}

func listenTCP(addr string) (stream.Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return stream.NetListener(l), nil
}

func dialTCP(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	d := &net.Dialer{}
	return d.DialContext(ctx, "tcp", addr)
}
