//go:build windows

// Package winpipe carries packets over Windows named pipes.
package winpipe

import (
	"context"
	"io"

	"github.com/Microsoft/go-winio"

	"github.com/dnorman/unbase/pkg/transport"
	"github.com/dnorman/unbase/pkg/transport/stream"
)

// Transport is a named pipe transport, e.g. listen on \\.\pipe\unbase-node1.
type Transport struct {
	*stream.Transport
}

func New(pipeName string) *Transport {
	return &Transport{Transport: stream.New(transport.KindWinPipe, pipeName, listenPipe, dialPipe)}
}

func listenPipe(name string) (stream.Listener, error) {
	l, err := winio.ListenPipe(name, nil)
	if err != nil {
		return nil, err
	}
	return stream.NetListener(l), nil
}

func dialPipe(ctx context.Context, name string) (io.ReadWriteCloser, error) {
	return winio.DialPipeContext(ctx, name)
}
