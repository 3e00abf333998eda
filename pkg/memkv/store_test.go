package memkv

import (
	"bytes"
	"reflect"
	"strconv"
	"sync"
	"testing"
)

func TestSetGetCopyAndNoCopy(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	if created := s.Set("k1", []byte("abc")); !created {
		t.Fatalf("expected created=true on first Set")
	}
	v, ok := s.Get("k1")
	if !ok || string(v) != "abc" {
		t.Fatalf("Get mismatch: ok=%v v=%q", ok, v)
	}
	// mutating the copy must not leak into the store
	v[0] = 'X'
	if v2, _ := s.Get("k1"); string(v2) != "abc" {
		t.Fatalf("Get after modify copy mismatch: %q", v2)
	}

	vnc1, ok := s.getNoCopy("k1")
	if !ok || string(vnc1) != "abc" {
		t.Fatalf("getNoCopy mismatch: ok=%v v=%q", ok, vnc1)
	}
	vnc2, _ := s.getNoCopy("k1")
	if reflect.ValueOf(&vnc1[0]).Pointer() != reflect.ValueOf(&vnc2[0]).Pointer() {
		t.Fatalf("expected same backing array for getNoCopy reads")
	}
	if created := s.Set("k1", []byte("abcd")); created {
		t.Fatalf("expected created=false on replace")
	}
}

func TestSetCopiesInput(t *testing.T) {
	s := New(Options{})
	in := []byte("memo")
	s.Set("m", in)
	in[0] = 'X'
	if v, _ := s.Get("m"); string(v) != "memo" {
		t.Fatalf("store aliased caller slice: %q", v)
	}
}

func TestDeleteAndMetrics(t *testing.T) {
	s := New(Options{})
	s.Set("a", []byte("12345"))
	s.Set("b", []byte("1"))
	if !s.Delete("a") || s.Delete("a") {
		t.Fatalf("Delete should succeed once")
	}
	st := s.Metrics()
	if st.Keys != 1 || st.Bytes != 1 || st.Dels != 1 {
		t.Fatalf("metrics mismatch: %+v", st)
	}
	if s.Len() != 1 {
		t.Fatalf("Len=%d", s.Len())
	}
}

func TestKeysPrefixSorted(t *testing.T) {
	s := New(Options{Shards: 4})
	for _, k := range []string{"memo:3", "memo:1", "peer:1", "memo:2"} {
		s.Set(k, nil)
	}
	got := s.Keys("memo:")
	want := []string{"memo:1", "memo:2", "memo:3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys = %v, want %v", got, want)
	}
}

func TestClosedStoreRejects(t *testing.T) {
	s := New(Options{})
	s.Set("k", []byte("v"))
	s.Close()
	s.Close()
	if s.Set("k2", []byte("v")) || s.Exists("k") || s.Len() != 0 {
		t.Fatalf("closed store must reject operations")
	}
}

func TestConcurrentSet(t *testing.T) {
	s := New(Options{Shards: 8})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.Set(strconv.Itoa(g)+":"+strconv.Itoa(i), bytes.Repeat([]byte{'x'}, 3))
			}
		}(g)
	}
	wg.Wait()
	if s.Len() != 1600 || s.Metrics().Bytes != 4800 {
		t.Fatalf("Len=%d Bytes=%d", s.Len(), s.Metrics().Bytes)
	}
}
