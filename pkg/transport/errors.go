package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRoute is returned when no registered transport accepted a packet.
	ErrNoRoute = errors.New("no route to slab")
	// ErrUnknownAddress is returned when the destination is not reachable on the transport.
	ErrUnknownAddress = errors.New("unknown address")
	// ErrClosed is returned by transports that were unbound or closed.
	ErrClosed = errors.New("transport closed")
	// ErrTooLarge is returned when a packet exceeds the transport frame limit.
	ErrTooLarge = errors.New("packet too large")
	// ErrUnsupported is returned for a kind that is not available on this platform.
	ErrUnsupported = errors.New("transport not supported")
)

// Error describes a failed transport operation.
type Error struct {
	Kind Kind
	Op   string
	Addr string
	Err  error
}

func (e *Error) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Kind, e.Op, e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap wraps err into an *Error for the given kind/op/address.
func Wrap(kind Kind, op, addr string, err error) error {
	return &Error{Kind: kind, Op: op, Addr: addr, Err: err}
}
