// Package sim is a discrete-time network simulator. Packets sent between
// endpoints become events that are delivered only when the simulator clock
// reaches their arrival time, which is derived from the distance between
// the endpoints' positions.
package sim

import (
	"container/heap"
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dnorman/unbase/pkg/transport"
)

// Point is an endpoint position in simulated space.
type Point struct{ X, Y, Z int64 }

func distance(a, b Point) float64 {
	dx, dy, dz := float64(a.X-b.X), float64(a.Y-b.Y), float64(a.Z-b.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

type event struct {
	due   uint64
	seq   uint64
	dest  string
	pkt   transport.Packet
	index int
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *eventQueue) Push(x any)   { e := x.(*event); e.index = len(*q); *q = append(*q, e) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// Simulator owns the clock and the pending events of every endpoint
// created on it.
type Simulator struct {
	// SpeedOfLight is the number of ticks one distance unit takes.
	SpeedOfLight uint64

	mu        sync.Mutex
	clock     uint64
	seq       uint64
	queue     eventQueue
	endpoints map[string]*Transport
	paused    bool
}

func NewSimulator() *Simulator {
	return &Simulator{SpeedOfLight: 1, endpoints: make(map[string]*Transport)}
}

func (s *Simulator) Clock() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// Pending reports the number of undelivered events.
func (s *Simulator) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Simulator) Pause()  { s.mu.Lock(); s.paused = true; s.mu.Unlock() }
func (s *Simulator) Resume() { s.mu.Lock(); s.paused = false; s.mu.Unlock() }

// AdvanceClock moves the clock forward and delivers every event that is due,
// in arrival order. It returns the number of events delivered. Events whose
// endpoint went away are dropped.
func (s *Simulator) AdvanceClock(ticks uint64) int {
	s.mu.Lock()
	s.clock += ticks
	now := s.clock
	var due []*event
	for len(s.queue) > 0 && s.queue[0].due <= now {
		due = append(due, heap.Pop(&s.queue).(*event))
	}
	s.mu.Unlock()

	delivered := 0
	for _, e := range due {
		s.mu.Lock()
		dst := s.endpoints[e.dest]
		s.mu.Unlock()
		if dst == nil {
			continue
		}
		if sink := dst.boundSink(); sink != nil {
			if err := sink.Deliver(e.pkt); err != nil {
				zap.L().Debug("sim deliver failed", zap.String("endpoint", e.dest), zap.Error(err))
				continue
			}
			delivered++
		}
	}
	return delivered
}

// Metronome advances the clock by one tick every interval until ctx is done.
// Ticks are skipped while the simulator is paused.
func (s *Simulator) Metronome(ctx context.Context, interval time.Duration) {
	tk := time.NewTicker(interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			s.mu.Lock()
			paused := s.paused
			s.mu.Unlock()
			if !paused {
				s.AdvanceClock(1)
			}
		}
	}
}

// WaitIdle blocks until no events are pending or ctx is done.
func (s *Simulator) WaitIdle(ctx context.Context) error {
	tk := time.NewTicker(5 * time.Millisecond)
	defer tk.Stop()
	for {
		if s.Pending() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.C:
		}
	}
}

// Transport is one endpoint placed at a fixed position.
type Transport struct {
	sim  *Simulator
	name string
	pos  Point

	mu   sync.Mutex
	sink transport.Sink
}

// New creates an endpoint called name at pos on sim.
func New(sim *Simulator, name string, pos Point) *Transport {
	return &Transport{sim: sim, name: name, pos: pos}
}

func (t *Transport) Kind() transport.Kind { return transport.KindSim }
func (t *Transport) IsLocal() bool        { return true }

func (t *Transport) ReturnAddress() transport.Address {
	return transport.Address{Kind: transport.KindSim, Addr: t.name}
}

func (t *Transport) boundSink() transport.Sink {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sink
}

func (t *Transport) Bind(s transport.Sink) error {
	t.sim.mu.Lock()
	defer t.sim.mu.Unlock()
	if _, ok := t.sim.endpoints[t.name]; ok {
		return errors.New("sim: endpoint name in use: " + t.name)
	}
	t.sim.endpoints[t.name] = t
	t.mu.Lock()
	t.sink = s
	t.mu.Unlock()
	return nil
}

func (t *Transport) Unbind(s transport.Sink) {
	t.sim.mu.Lock()
	defer t.sim.mu.Unlock()
	if t.sim.endpoints[t.name] == t {
		delete(t.sim.endpoints, t.name)
	}
	t.mu.Lock()
	t.sink = nil
	t.mu.Unlock()
}

// Send schedules pkt to arrive at the endpoint named by to.Addr. Nothing is
// instant: arrival is at least one tick after the current clock.
func (t *Transport) Send(_ context.Context, to transport.Address, pkt transport.Packet) error {
	s := t.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	dst := s.endpoints[to.Addr]
	if dst == nil {
		return transport.Wrap(transport.KindSim, "send", to.Addr, transport.ErrUnknownAddress)
	}
	travel := uint64(distance(t.pos, dst.pos)) * s.SpeedOfLight
	pkt.Payload = append([]byte(nil), pkt.Payload...)
	s.seq++
	heap.Push(&s.queue, &event{due: s.clock + travel + 1, seq: s.seq, dest: to.Addr, pkt: pkt})
	return nil
}
