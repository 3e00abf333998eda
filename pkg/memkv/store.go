package memkv

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

type Options struct {
	Shards   int    // number of shards (default 256)
	MaxBytes uint64 // hard cap on the sum of value sizes (0 = unlimited)
}

func (o Options) withDefaults() Options {
	if o.Shards <= 0 {
		o.Shards = 256
	}
	return o
}

type Store struct {
	opts   Options
	shards []shard
	closed atomic.Bool

	mKeys   atomic.Uint64
	mBytes  atomic.Uint64
	mSets   atomic.Uint64
	mGets   atomic.Uint64
	mHits   atomic.Uint64
	mMisses atomic.Uint64
	mDels   atomic.Uint64
}

type shard struct {
	mu sync.RWMutex
	m  map[string][]byte
}

// Stats is a point-in-time snapshot of store counters.
type Stats struct {
	Keys   uint64
	Bytes  uint64
	Sets   uint64
	Gets   uint64
	Hits   uint64
	Misses uint64
	Dels   uint64
}

func New(opts Options) *Store {
	opts = opts.withDefaults()
	s := &Store{opts: opts, shards: make([]shard, opts.Shards)}
	for i := range s.shards {
		s.shards[i].m = make(map[string][]byte)
	}
	return s
}

// Close drops all data. Later operations report failure.
func (s *Store) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		sh.m = make(map[string][]byte)
		sh.mu.Unlock()
	}
	s.mKeys.Store(0)
	s.mBytes.Store(0)
}

func (s *Store) shardFor(key string) *shard {
	// FNV-1a 64
	var h uint64 = 1469598103934665603
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211
	}
	return &s.shards[h%uint64(len(s.shards))]
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// reserve accounts delta bytes against MaxBytes; false when the cap would be exceeded.
func (s *Store) reserve(delta int64) bool {
	for {
		cur := s.mBytes.Load()
		next := int64(cur) + delta
		if next < 0 {
			next = 0
		}
		if delta > 0 && s.opts.MaxBytes > 0 && uint64(next) > s.opts.MaxBytes {
			return false
		}
		if s.mBytes.CompareAndSwap(cur, uint64(next)) {
			return true
		}
	}
}

// Set stores a copy of val. It returns true when the key was created and
// false when it replaced an existing value or was rejected by MaxBytes or a
// closed store.
func (s *Store) Set(key string, val []byte) bool {
	if s.closed.Load() {
		return false
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	old, exists := sh.m[key]
	if !s.reserve(int64(len(val)) - int64(len(old))) {
		return false
	}
	sh.m[key] = clone(val)
	s.mSets.Add(1)
	if !exists {
		s.mKeys.Add(1)
	}
	return !exists
}

// Get returns a copy of the value stored at key.
func (s *Store) Get(key string) ([]byte, bool) {
	v, ok := s.getNoCopy(key)
	if !ok {
		return nil, false
	}
	return clone(v), true
}

// getNoCopy returns the stored slice itself.
func (s *Store) getNoCopy(key string) ([]byte, bool) {
	s.mGets.Add(1)
	if s.closed.Load() {
		s.mMisses.Add(1)
		return nil, false
	}
	sh := s.shardFor(key)
	sh.mu.RLock()
	v, ok := sh.m[key]
	sh.mu.RUnlock()
	if !ok {
		s.mMisses.Add(1)
		return nil, false
	}
	s.mHits.Add(1)
	return v, true
}

// Exists reports whether key is stored.
func (s *Store) Exists(key string) bool {
	_, ok := s.getNoCopy(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(key string) bool {
	if s.closed.Load() {
		return false
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	old, ok := sh.m[key]
	if !ok {
		return false
	}
	delete(sh.m, key)
	s.reserve(-int64(len(old)))
	s.mKeys.Add(^uint64(0))
	s.mDels.Add(1)
	return true
}

// Len reports the number of stored keys.
func (s *Store) Len() int { return int(s.mKeys.Load()) }

// Keys returns the sorted keys that start with prefix.
func (s *Store) Keys(prefix string) []string {
	var out []string
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for k := range sh.m {
			if strings.HasPrefix(k, prefix) {
				out = append(out, k)
			}
		}
		sh.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

// Metrics snapshots the store counters.
func (s *Store) Metrics() Stats {
	return Stats{
		Keys:   s.mKeys.Load(),
		Bytes:  s.mBytes.Load(),
		Sets:   s.mSets.Load(),
		Gets:   s.mGets.Load(),
		Hits:   s.mHits.Load(),
		Misses: s.mMisses.Load(),
		Dels:   s.mDels.Load(),
	}
}
