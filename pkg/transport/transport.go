package transport

import (
	"context"
	"fmt"
	"strings"
)

// Kind identifies transport/link type for routing decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindLocal
	KindBlackhole
	KindMem
	KindSim
	KindUDP
	KindTCP
	KindQUIC
	KindWinPipe
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindBlackhole:
		return "blackhole"
	case KindMem:
		return "mem"
	case KindSim:
		return "sim"
	case KindUDP:
		return "udp"
	case KindTCP:
		return "tcp"
	case KindQUIC:
		return "quic"
	case KindWinPipe:
		return "winpipe"
	default:
		return "unknown"
	}
}

// ParseKind maps a kind name (and the aliases accepted in config) to a Kind.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return KindLocal
	case "blackhole", "null":
		return KindBlackhole
	case "mem", "inproc":
		return KindMem
	case "sim", "simulator":
		return KindSim
	case "udp":
		return KindUDP
	case "tcp":
		return KindTCP
	case "quic":
		return KindQUIC
	case "winpipe", "pipe":
		return KindWinPipe
	default:
		return KindUnknown
	}
}

// SlabID identifies a slab within a system. Zero is reserved for "any slab".
type SlabID uint32

// Address is a transport-dependent endpoint.
type Address struct {
	Kind Kind
	Addr string
}

func (a Address) IsZero() bool { return a.Kind == KindUnknown && a.Addr == "" }

// String renders the address as kind:addr, e.g. udp:127.0.0.1:12001.
func (a Address) String() string { return a.Kind.String() + ":" + a.Addr }

// ParseAddress is the inverse of Address.String.
func ParseAddress(s string) (Address, error) {
	kind, addr, ok := strings.Cut(s, ":")
	if !ok {
		return Address{}, fmt.Errorf("transport: malformed address %q", s)
	}
	k := ParseKind(kind)
	if k == KindUnknown {
		return Address{}, fmt.Errorf("transport: unknown kind in address %q", s)
	}
	return Address{Kind: k, Addr: addr}, nil
}

// PacketType distinguishes application memos from presence traffic.
type PacketType uint8

const (
	PacketMemo PacketType = iota
	// PacketHello announces the sender's slabs and asks for a presence reply.
	PacketHello
	// PacketPresence announces the sender's slabs; no reply is expected.
	PacketPresence
)

func (t PacketType) String() string {
	switch t {
	case PacketMemo:
		return "memo"
	case PacketHello:
		return "hello"
	case PacketPresence:
		return "presence"
	default:
		return "unknown"
	}
}

// Packet is the unit moved by a Transport.
type Packet struct {
	Type PacketType
	From SlabID
	To   SlabID
	// ReturnAddr is where the sender can be reached; filled by the sending network.
	ReturnAddr  Address
	ContentType string
	Payload     []byte
}

// Transport moves packets towards addresses of its Kind.
type Transport interface {
	Kind() Kind
	// Send delivers or enqueues pkt for the endpoint at to. Errors are
	// reported to the caller and never retried by the transport.
	Send(ctx context.Context, to Address, pkt Packet) error
}

// Sink receives inbound packets. A Network is the sink of every transport
// bound to it.
type Sink interface {
	Deliver(pkt Packet) error
}

// Binder is implemented by transports that need to know the network they
// deliver into (listeners, delivery goroutines).
type Binder interface {
	Bind(s Sink) error
	Unbind(s Sink)
}

// Local is implemented by transports that never leave the process.
type Local interface {
	IsLocal() bool
}

// ReturnAddresser reports the address remote peers should use to reach the
// network this transport is bound to.
type ReturnAddresser interface {
	ReturnAddress() Address
}

// Catchall is implemented by transports that accept packets for which no
// other route exists.
type Catchall interface {
	AcceptsAll() bool
}

// IsLocal reports whether t declares itself process-local.
func IsLocal(t Transport) bool {
	l, ok := t.(Local)
	return ok && l.IsLocal()
}
