package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dnorman/unbase/pkg/transport"
)

func TestPacketRoundTrip(t *testing.T) {
	in := transport.Packet{
		Type:        transport.PacketMemo,
		From:        7,
		To:          200,
		ReturnAddr:  transport.Address{Kind: transport.KindUDP, Addr: "127.0.0.1:12001"},
		ContentType: ContentCBOR,
		Payload:     []byte{0xa1, 0x61, 0x6b, 0x01},
	}
	out, err := DecodePacket(EncodePacket(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeEmptyIsZeroPacket(t *testing.T) {
	p, err := DecodePacket(nil)
	require.NoError(t, err)
	assert.Equal(t, transport.Packet{}, p)
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	b := EncodePacket(transport.Packet{From: 3, To: 4})
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future"))
	b = protowire.AppendTag(b, 100, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 42)

	p, err := DecodePacket(b)
	require.NoError(t, err)
	assert.Equal(t, transport.SlabID(3), p.From)
	assert.Equal(t, transport.SlabID(4), p.To)
}

func TestDecodeTruncated(t *testing.T) {
	b := EncodePacket(transport.Packet{Payload: []byte("hello world")})
	_, err := DecodePacket(b[:len(b)-3])
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestSlabIDs(t *testing.T) {
	ids := []transport.SlabID{1, 2, 300, 1 << 30}
	got, err := DecodeSlabIDs(EncodeSlabIDs(ids))
	require.NoError(t, err)
	assert.Equal(t, ids, got)

	got, err = DecodeSlabIDs(EncodeSlabIDs(nil))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeRejectsOversizedIDs(t *testing.T) {
	b := appendVarint(nil, fieldTo, 1<<32+5)
	_, err := DecodePacket(b)
	assert.ErrorIs(t, err, ErrMalformed)

	b = appendVarint(nil, fieldFrom, 1<<40)
	_, err = DecodePacket(b)
	assert.ErrorIs(t, err, ErrMalformed)

	b = appendVarint(nil, fieldType, 256)
	_, err = DecodePacket(b)
	assert.ErrorIs(t, err, ErrMalformed)

	b = appendVarint(nil, fieldTo, 1<<32-1)
	p, err := DecodePacket(b)
	require.NoError(t, err)
	assert.Equal(t, transport.SlabID(1<<32-1), p.To)

	packed := protowire.AppendVarint(protowire.AppendVarint(nil, 7), 1<<33)
	_, err = DecodeSlabIDs(appendBytes(nil, 1, packed))
	assert.ErrorIs(t, err, ErrMalformed)
}
