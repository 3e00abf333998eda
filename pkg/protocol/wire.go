// Package protocol defines the on-wire encoding of transport packets.
//
// A packet is encoded as a protobuf message without a schema file, using
// the low-level protowire helpers:
//
//	1: type         varint
//	2: from         varint
//	3: to           varint
//	4: return kind  varint
//	5: return addr  bytes
//	6: content type bytes
//	7: payload      bytes
//
// Unknown fields are skipped so newer peers can add fields.
package protocol

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dnorman/unbase/pkg/transport"
)

const (
	fieldType        protowire.Number = 1
	fieldFrom        protowire.Number = 2
	fieldTo          protowire.Number = 3
	fieldReturnKind  protowire.Number = 4
	fieldReturnAddr  protowire.Number = 5
	fieldContentType protowire.Number = 6
	fieldPayload     protowire.Number = 7
)

// ErrMalformed is returned for input that is not a valid packet encoding.
var ErrMalformed = errors.New("protocol: malformed packet")

// EncodePacket returns the wire form of p.
func EncodePacket(p transport.Packet) []byte {
	b := make([]byte, 0, 32+len(p.Payload)+len(p.ContentType)+len(p.ReturnAddr.Addr))
	b = appendVarint(b, fieldType, uint64(p.Type))
	b = appendVarint(b, fieldFrom, uint64(p.From))
	b = appendVarint(b, fieldTo, uint64(p.To))
	if !p.ReturnAddr.IsZero() {
		b = appendVarint(b, fieldReturnKind, uint64(p.ReturnAddr.Kind))
		b = appendBytes(b, fieldReturnAddr, []byte(p.ReturnAddr.Addr))
	}
	if p.ContentType != "" {
		b = appendBytes(b, fieldContentType, []byte(p.ContentType))
	}
	if len(p.Payload) > 0 {
		b = appendBytes(b, fieldPayload, p.Payload)
	}
	return b
}

// DecodePacket parses the wire form produced by EncodePacket.
func DecodePacket(b []byte) (transport.Packet, error) {
	var (
		p   transport.Packet
		err error
	)
	if len(b) > MaxPacketSize {
		return p, fmt.Errorf("%w: %d bytes", ErrMalformed, len(b))
	}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case typ == protowire.VarintType && num <= fieldReturnKind:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return p, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldType:
				if v > math.MaxUint8 {
					return p, fmt.Errorf("%w: packet type %d out of range", ErrMalformed, v)
				}
				p.Type = transport.PacketType(v)
			case fieldFrom:
				if p.From, err = slabID(v); err != nil {
					return p, err
				}
			case fieldTo:
				if p.To, err = slabID(v); err != nil {
					return p, err
				}
			case fieldReturnKind:
				p.ReturnAddr.Kind = transport.Kind(v)
			}
		case typ == protowire.BytesType && num >= fieldReturnAddr && num <= fieldPayload:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return p, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldReturnAddr:
				p.ReturnAddr.Addr = string(v)
			case fieldContentType:
				p.ContentType = string(v)
			case fieldPayload:
				p.Payload = append([]byte(nil), v...)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return p, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return p, nil
}

// EncodeSlabIDs packs slab ids as a repeated varint field, used as the
// payload of hello and presence packets.
func EncodeSlabIDs(ids []transport.SlabID) []byte {
	var packed []byte
	for _, id := range ids {
		packed = protowire.AppendVarint(packed, uint64(id))
	}
	return appendBytes(nil, 1, packed)
}

// DecodeSlabIDs is the inverse of EncodeSlabIDs.
func DecodeSlabIDs(b []byte) ([]transport.SlabID, error) {
	var out []transport.SlabID
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		if num != 1 || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		for len(packed) > 0 {
			v, n := protowire.ConsumeVarint(packed)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			packed = packed[n:]
			id, err := slabID(v)
			if err != nil {
				return nil, err
			}
			out = append(out, id)
		}
	}
	return out, nil
}

func slabID(v uint64) (transport.SlabID, error) {
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: slab id %d out of range", ErrMalformed, v)
	}
	return transport.SlabID(v), nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}
