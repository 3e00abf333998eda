package codec

import (
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

func TestJSONCodec(t *testing.T) {
	c := JSON()
	in := map[string]any{"beast": "Tiger", "legs": 4}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["legs"].(float64) != 4 || out["beast"].(string) != "Tiger" {
		t.Fatalf("roundtrip mismatch: %#v", out)
	}
}

func TestCBORCodecIsDeterministic(t *testing.T) {
	c, err := CBOR()
	if err != nil {
		t.Fatalf("new cbor: %v", err)
	}
	a, err := c.Marshal(map[string]int{"z": 1, "a": 2, "m": 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, _ := c.Marshal(map[string]int{"m": 3, "z": 1, "a": 2})
	if string(a) != string(b) {
		t.Fatalf("encoding depends on map order")
	}
	var out map[string]int
	if err := c.Unmarshal(a, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["a"] != 2 || out["z"] != 1 {
		t.Fatalf("roundtrip mismatch: %#v", out)
	}
}

func TestProtoCodec(t *testing.T) {
	c := Proto()
	s, err := structpb.NewStruct(map[string]any{"sound": "Rawwr"})
	if err != nil {
		t.Fatalf("struct: %v", err)
	}
	b, err := c.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out structpb.Struct
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Fields["sound"].GetStringValue() != "Rawwr" {
		t.Fatalf("roundtrip mismatch")
	}
	if _, err := c.Marshal("not a message"); err == nil {
		t.Fatalf("expected error for non-proto value")
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	for _, ct := range []string{"application/json", "application/cbor", "application/x-protobuf"} {
		if r.Get(ct) == nil {
			t.Fatalf("missing codec %s", ct)
		}
	}
	if _, err := r.Marshal("text/morse", 1); err == nil {
		t.Fatalf("expected error for unknown content type")
	}
	b, err := r.Marshal("application/cbor", []string{"x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out []string
	if err := r.Unmarshal("application/cbor", b, &out); err != nil || len(out) != 1 || out[0] != "x" {
		t.Fatalf("unmarshal: %v %#v", err, out)
	}
}
