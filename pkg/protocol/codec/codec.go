package codec

import "fmt"

// Codec defines a simple interface for marshaling typed payloads.
// Implementations should be deterministic and safe for cross-node exchange.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps content types to codecs.
type Registry struct{ byType map[string]Codec }

// NewRegistry constructs a registry preloaded with the built-in codecs:
// JSON, Protobuf and CBOR.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Codec)}
	r.Register(JSON())
	r.Register(Proto())
	if c, err := CBOR(); err == nil {
		r.Register(c)
	}
	return r
}

// Default is the registry used by contexts that are not given one.
var Default = NewRegistry()

// Register adds a codec, replacing any codec with the same content type.
func (r *Registry) Register(c Codec) { r.byType[c.ContentType()] = c }

// Get returns a codec by content type, or nil.
func (r *Registry) Get(contentType string) Codec { return r.byType[contentType] }

// Marshal encodes v with the codec registered for contentType.
func (r *Registry) Marshal(contentType string, v any) ([]byte, error) {
	c := r.Get(contentType)
	if c == nil {
		return nil, fmt.Errorf("codec: no codec for %q", contentType)
	}
	return c.Marshal(v)
}

// Unmarshal decodes data into v with the codec registered for contentType.
func (r *Registry) Unmarshal(contentType string, data []byte, v any) error {
	c := r.Get(contentType)
	if c == nil {
		return fmt.Errorf("codec: no codec for %q", contentType)
	}
	return c.Unmarshal(data, v)
}
