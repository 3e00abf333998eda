// Package stream is the shared engine behind connection-oriented transports
// (tcp, quic, winpipe). Packets are encoded with the protocol wire format
// and written as length-prefixed frames. Each remote address has at most one
// canonical connection; every connection gets its own read loop.
package stream

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/dnorman/unbase/pkg/protocol"
	"github.com/dnorman/unbase/pkg/transport"
)

// Listener accepts inbound byte streams.
type Listener interface {
	Accept(ctx context.Context) (io.ReadWriteCloser, string, error)
	Addr() string
	Close() error
}

// ListenFunc opens a Listener on addr.
type ListenFunc func(addr string) (Listener, error)

// DialFunc opens a byte stream to addr.
type DialFunc func(ctx context.Context, addr string) (io.ReadWriteCloser, error)

// NetListener adapts a net.Listener.
func NetListener(l net.Listener) Listener { return netListener{l} }

type netListener struct{ l net.Listener }

func (n netListener) Accept(_ context.Context) (io.ReadWriteCloser, string, error) {
	c, err := n.l.Accept()
	if err != nil {
		return nil, "", err
	}
	return c, c.RemoteAddr().String(), nil
}

func (n netListener) Addr() string { return n.l.Addr().String() }
func (n netListener) Close() error { return n.l.Close() }

// Transport is a transport.Transport over framed byte streams.
type Transport struct {
	kind   transport.Kind
	listen string
	lf     ListenFunc
	df     DialFunc

	mu     sync.Mutex
	sink   transport.Sink
	ln     Listener
	conns  *pool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an engine for kind. An empty listen address makes the
// transport outbound-only; lf may then be nil.
func New(kind transport.Kind, listen string, lf ListenFunc, df DialFunc) *Transport {
	return &Transport{kind: kind, listen: listen, lf: lf, df: df}
}

func (t *Transport) Kind() transport.Kind { return t.kind }

// Addr reports the bound listen address, or the configured one before Bind.
func (t *Transport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln != nil {
		return t.ln.Addr()
	}
	return t.listen
}

func (t *Transport) ReturnAddress() transport.Address {
	a := t.Addr()
	if a == "" {
		return transport.Address{}
	}
	return transport.Address{Kind: t.kind, Addr: a}
}

// Peers lists remote addresses with a canonical connection. Inbound
// connections that have not announced a return address show as in:<remote>.
func (t *Transport) Peers() []string {
	t.mu.Lock()
	p := t.conns
	t.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.keys()
}

func (t *Transport) Bind(s transport.Sink) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sink != nil {
		return errors.New(t.kind.String() + ": transport already bound")
	}
	if t.listen != "" {
		ln, err := t.lf(t.listen)
		if err != nil {
			return transport.Wrap(t.kind, "listen", t.listen, err)
		}
		t.ln = ln
	}
	t.sink = s
	t.conns = newPool()
	t.ctx, t.cancel = context.WithCancel(context.Background())
	if t.ln != nil {
		t.wg.Add(1)
		go t.acceptLoop(t.ctx, t.ln, s, t.conns)
	}
	return nil
}

// Unbind stops the listener, closes every connection and waits for the
// read loops to exit.
func (t *Transport) Unbind(s transport.Sink) {
	t.mu.Lock()
	if t.sink == nil || t.sink != s {
		t.mu.Unlock()
		return
	}
	t.cancel()
	if t.ln != nil {
		_ = t.ln.Close()
		t.ln = nil
	}
	conns := t.conns
	t.sink, t.conns = nil, nil
	t.mu.Unlock()
	conns.closeAll()
	t.wg.Wait()
}

// Send writes pkt to the canonical connection for to.Addr, dialing one when
// none exists. A failed write drops the connection; the error is returned
// and not retried.
func (t *Transport) Send(ctx context.Context, to transport.Address, pkt transport.Packet) error {
	t.mu.Lock()
	sink, conns, rctx := t.sink, t.conns, t.ctx
	t.mu.Unlock()
	if sink == nil {
		return transport.Wrap(t.kind, "send", to.Addr, transport.ErrClosed)
	}
	b := protocol.EncodePacket(pkt)
	if len(b) > protocol.MaxPacketSize {
		return transport.Wrap(t.kind, "send", to.Addr, transport.ErrTooLarge)
	}
	c := conns.get(to.Addr)
	if c == nil {
		rwc, err := t.df(ctx, to.Addr)
		if err != nil {
			return transport.Wrap(t.kind, "dial", to.Addr, err)
		}
		fresh := newConn(rwc, to.Addr)
		t.mu.Lock()
		if t.conns != conns {
			t.mu.Unlock()
			_ = fresh.Close()
			return transport.Wrap(t.kind, "send", to.Addr, transport.ErrClosed)
		}
		c = conns.add(to.Addr, fresh)
		if c == fresh {
			t.wg.Add(1)
			go t.readLoop(rctx, fresh, sink, conns)
		}
		t.mu.Unlock()
		if c != fresh {
			conns.remove(fresh)
			_ = fresh.Close()
		}
	}
	if err := c.writeFrame(b); err != nil {
		conns.remove(c)
		_ = c.Close()
		return transport.Wrap(t.kind, "send", to.Addr, err)
	}
	return nil
}

func (t *Transport) acceptLoop(ctx context.Context, ln Listener, s transport.Sink, conns *pool) {
	defer t.wg.Done()
	for {
		rwc, remote, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil {
				zap.L().Debug("accept stopped", zap.Stringer("kind", t.kind), zap.Error(err))
			}
			return
		}
		c := newConn(rwc, remote)
		conns.add("in:"+remote, c)
		t.wg.Add(1)
		go t.readLoop(ctx, c, s, conns)
	}
}

func (t *Transport) readLoop(ctx context.Context, c *conn, s transport.Sink, conns *pool) {
	defer t.wg.Done()
	defer func() {
		conns.remove(c)
		_ = c.Close()
	}()
	for {
		b, err := c.readFrame()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				zap.L().Debug("read failed", zap.Stringer("kind", t.kind), zap.String("remote", c.remote), zap.Error(err))
			}
			return
		}
		pkt, err := protocol.DecodePacket(b)
		if err != nil {
			zap.L().Warn("dropping connection on malformed packet", zap.Stringer("kind", t.kind), zap.String("remote", c.remote), zap.Error(err))
			return
		}
		if pkt.ReturnAddr.Kind == t.kind {
			conns.rebind(c, pkt.ReturnAddr.Addr)
		}
		if err := s.Deliver(pkt); err != nil {
			zap.L().Debug("deliver failed", zap.Stringer("kind", t.kind), zap.Uint32("to", uint32(pkt.To)), zap.Error(err))
		}
	}
}
