package stream

import (
	"sort"
	"sync"
)

// pool keeps at most one canonical conn per remote address. Inbound conns
// start under a temporary key and are rebound to the sender's return
// address once its first packet arrives.
type pool struct {
	mu    sync.Mutex
	byKey map[string]*conn
	all   map[*conn]string
}

func newPool() *pool {
	return &pool{byKey: make(map[string]*conn), all: make(map[*conn]string)}
}

func (p *pool) get(key string) *conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byKey[key]
}

// add tracks c and makes it canonical for key unless another conn already
// is. It returns the canonical conn.
func (p *pool) add(key string, c *conn) *conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.all[c] = ""
	if cur := p.byKey[key]; cur != nil {
		return cur
	}
	p.byKey[key] = c
	p.all[c] = key
	return c
}

// rebind makes c canonical for key when no conn holds that key yet.
func (p *pool) rebind(c *conn, key string) bool {
	if key == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	old, tracked := p.all[c]
	if !tracked || old == key {
		return false
	}
	if cur := p.byKey[key]; cur != nil {
		return false
	}
	if old != "" {
		delete(p.byKey, old)
	}
	p.byKey[key] = c
	p.all[c] = key
	return true
}

func (p *pool) remove(c *conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key, ok := p.all[c]
	if !ok {
		return
	}
	delete(p.all, c)
	if key != "" && p.byKey[key] == c {
		delete(p.byKey, key)
	}
}

// closeAll closes every tracked conn and empties the pool.
func (p *pool) closeAll() {
	p.mu.Lock()
	conns := make([]*conn, 0, len(p.all))
	for c := range p.all {
		conns = append(conns, c)
	}
	p.byKey = make(map[string]*conn)
	p.all = make(map[*conn]string)
	p.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// keys lists the addresses that have a canonical conn.
func (p *pool) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.byKey))
	for k := range p.byKey {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
