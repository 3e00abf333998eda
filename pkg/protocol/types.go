package protocol

// Content types understood by the codec registry.
const (
	ContentUnknown = "application/octet-stream"
	ContentCBOR    = "application/cbor"
	ContentJSON    = "application/json"
	ContentProto   = "application/x-protobuf"
)

// MaxPacketSize bounds a decoded packet. Stream transports enforce the same
// limit on frames.
const MaxPacketSize = 1 << 24
