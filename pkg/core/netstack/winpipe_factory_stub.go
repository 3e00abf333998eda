//go:build !windows

package netstack

import "github.com/dnorman/unbase/pkg/transport"

func newWinPipeTransport(name string) (transport.Transport, error) {
	return nil, transport.Wrap(transport.KindWinPipe, "new", name, transport.ErrUnsupported)
}
