// Package transport defines the message-delivery capability used by a
// network and the value types that travel through it.
//
// Key concepts:
// - Transport: moves a Packet towards an Address of its own Kind
// - Sink: the receiving side a transport hands inbound packets to (a Network)
// - Binder, Local, ReturnAddresser, Catchall: optional capabilities a
//   transport may implement; the network discovers them by type assertion
//
// Implementations live in sub-packages: blackhole, mem, sim, udp, and the
// framed stream transports tcp, quic and winpipe.
package transport
