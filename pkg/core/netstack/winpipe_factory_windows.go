//go:build windows

package netstack

import (
	"github.com/dnorman/unbase/pkg/transport"
	"github.com/dnorman/unbase/pkg/transport/winpipe"
)

func newWinPipeTransport(name string) (transport.Transport, error) { return winpipe.New(name), nil }
