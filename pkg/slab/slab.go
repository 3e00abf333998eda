// Package slab implements slabs, the process-local nodes of a network, and
// the contexts opened on them.
//
// A Slab registers itself with its Network on creation and deregisters
// before anything else on Close. Contexts are owned by their slab: closing
// the slab closes every context still open. Use With and WithContext to
// tie those lifetimes to a function call.
package slab

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dnorman/unbase/pkg/memkv"
	"github.com/dnorman/unbase/pkg/network"
	"github.com/dnorman/unbase/pkg/observability"
	"github.com/dnorman/unbase/pkg/transport"
)

type options struct {
	id        transport.SlabID
	inboxSize int
	ctxBuffer int
	storeOpts memkv.Options
}

type Option func(*options)

// WithID uses id instead of one generated by the network.
func WithID(id transport.SlabID) Option { return func(o *options) { o.id = id } }

// WithInboxSize sets how many undispatched packets the slab buffers.
func WithInboxSize(n int) Option { return func(o *options) { o.inboxSize = n } }

// WithContextBuffer sets how many memos each context buffers before new
// ones are dropped for it.
func WithContextBuffer(n int) Option { return func(o *options) { o.ctxBuffer = n } }

// WithStoreOptions configures the memo store.
func WithStoreOptions(so memkv.Options) Option { return func(o *options) { o.storeOpts = so } }

type Slab struct {
	id  transport.SlabID
	net *network.Network
	log *zap.Logger

	store    *memkv.Store
	inbox    chan transport.Packet
	done     chan struct{}
	wg       sync.WaitGroup
	received atomic.Uint64
	ctxBuf   int

	mu       sync.Mutex
	state    State
	contexts map[string]*Context

	closeOnce sync.Once
}

// New creates a slab on net and registers it. A nil or closed network is
// a lifecycle misuse.
func New(net *network.Network, opts ...Option) (*Slab, error) {
	if net == nil {
		return nil, fmt.Errorf("%w: slab needs a network", network.ErrLifecycle)
	}
	o := options{inboxSize: 256, ctxBuffer: 64, storeOpts: memkv.Options{Shards: 16}}
	for _, fn := range opts {
		fn(&o)
	}
	if o.id == 0 {
		o.id = net.GenerateSlabID()
	}
	s := &Slab{
		id:       o.id,
		net:      net,
		log:      net.Logger().With(zap.Uint32("slab", uint32(o.id))),
		store:    memkv.New(o.storeOpts),
		inbox:    make(chan transport.Packet, max(o.inboxSize, 1)),
		done:     make(chan struct{}),
		ctxBuf:   max(o.ctxBuffer, 1),
		contexts: make(map[string]*Context),
	}
	s.wg.Add(1)
	go s.dispatch()

	if err := net.RegisterSlab(s); err != nil {
		close(s.done)
		s.wg.Wait()
		s.store.Close()
		return nil, err
	}
	s.mu.Lock()
	s.state = StateRegistered
	s.mu.Unlock()
	s.log.Debug("slab created")
	return s, nil
}

// MustNew is New that panics on misuse.
func MustNew(net *network.Network, opts ...Option) *Slab {
	s, err := New(net, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Slab) ID() transport.SlabID      { return s.id }
func (s *Slab) Network() *network.Network { return s.net }

// Received counts packets accepted by Deliver.
func (s *Slab) Received() uint64 { return s.received.Load() }

func (s *Slab) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ContextCount reports the open contexts.
func (s *Slab) ContextCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contexts)
}

// CreateContext opens a context owned by s.
func (s *Slab) CreateContext() (*Context, error) {
	s.mu.Lock()
	if s.state == StateDestroyed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: create context on destroyed slab %d", network.ErrLifecycle, s.id)
	}
	c := newContext(s, s.ctxBuf)
	s.contexts[c.id] = c
	s.state = StateActive
	s.mu.Unlock()

	observability.AddContexts(s.net.ID(), 1)
	s.log.Debug("context created", zap.String("context", c.id))
	return c, nil
}

func (s *Slab) removeContext(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contexts == nil {
		return
	}
	delete(s.contexts, id)
	if len(s.contexts) == 0 && s.state == StateActive {
		s.state = StateRegistered
	}
}

// Deliver queues pkt for the dispatcher. It blocks while the inbox is full
// and fails once the slab is destroyed.
func (s *Slab) Deliver(pkt transport.Packet) error {
	if s.State() == StateDestroyed {
		return fmt.Errorf("%w: deliver to destroyed slab %d", network.ErrLifecycle, s.id)
	}
	select {
	case s.inbox <- pkt:
		s.received.Add(1)
		return nil
	case <-s.done:
		return fmt.Errorf("%w: deliver to destroyed slab %d", network.ErrLifecycle, s.id)
	}
}

func memoPrefix(from transport.SlabID) string {
	return "memo/" + strconv.FormatUint(uint64(from), 10) + "/"
}

func memoKey(from transport.SlabID, seq uint64) string {
	return memoPrefix(from) + strconv.FormatUint(seq, 10)
}

// Memo returns the payload of the seq-th memo (from 1) received from a slab.
func (s *Slab) Memo(from transport.SlabID, seq uint64) ([]byte, bool) {
	return s.store.Get(memoKey(from, seq))
}

// MemoCount reports the memos kept in the store.
func (s *Slab) MemoCount() int { return s.store.Len() }

// HasMemo reports whether the seq-th memo from a slab is still stored.
func (s *Slab) HasMemo(from transport.SlabID, seq uint64) bool {
	return s.store.Exists(memoKey(from, seq))
}

// MemoSeqs lists the stored sequence numbers of memos from a slab, ascending.
func (s *Slab) MemoSeqs(from transport.SlabID) []uint64 {
	prefix := memoPrefix(from)
	keys := s.store.Keys(prefix)
	seqs := make([]uint64, 0, len(keys))
	for _, k := range keys {
		if n, err := strconv.ParseUint(strings.TrimPrefix(k, prefix), 10, 64); err == nil {
			seqs = append(seqs, n)
		}
	}
	slices.Sort(seqs)
	return seqs
}

// ForgetMemos drops every stored memo from a slab and returns how many went.
// Later memos from it keep counting from where the sequence left off.
func (s *Slab) ForgetMemos(from transport.SlabID) int {
	n := 0
	for _, k := range s.store.Keys(memoPrefix(from)) {
		if s.store.Delete(k) {
			n++
		}
	}
	return n
}

// StoreStats snapshots the counters of the memo store.
func (s *Slab) StoreStats() memkv.Stats { return s.store.Metrics() }

// dispatch stores each memo and fans it out to the open contexts. A
// context whose buffer is full misses the memo.
func (s *Slab) dispatch() {
	defer s.wg.Done()
	seqs := make(map[transport.SlabID]uint64)
	for {
		select {
		case <-s.done:
			return
		case pkt := <-s.inbox:
			seqs[pkt.From]++
			if !s.store.Set(memoKey(pkt.From, seqs[pkt.From]), pkt.Payload) {
				s.log.Warn("memo not stored", zap.Uint32("from", uint32(pkt.From)), zap.Int("bytes", len(pkt.Payload)))
			}
			s.mu.Lock()
			targets := make([]*Context, 0, len(s.contexts))
			for _, c := range s.contexts {
				targets = append(targets, c)
			}
			s.mu.Unlock()
			for _, c := range targets {
				if !c.offer(pkt) {
					s.log.Debug("context buffer full, memo dropped", zap.String("context", c.id))
				}
			}
		}
	}
}

// Close deregisters the slab from its network, then closes the remaining
// contexts and stops the dispatcher. It is safe to call more than once.
func (s *Slab) Close() error {
	s.closeOnce.Do(func() {
		s.net.DeregisterSlab(s.id)

		s.mu.Lock()
		s.state = StateDestroyed
		ctxs := s.contexts
		s.contexts = nil
		s.mu.Unlock()

		for _, c := range ctxs {
			c.release()
		}
		close(s.done)
		s.wg.Wait()
		s.store.Close()
		s.log.Debug("slab destroyed", zap.Int("released_contexts", len(ctxs)))
	})
	return nil
}
