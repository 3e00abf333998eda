// Package udp carries one packet per datagram.
package udp

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/dnorman/unbase/pkg/protocol"
	"github.com/dnorman/unbase/pkg/transport"
)

// MaxDatagram is the largest encoded packet that fits one UDP datagram.
const MaxDatagram = 65507

// Transport owns one UDP socket, used for both sending and receiving.
type Transport struct {
	listen string

	mu   sync.Mutex
	conn *net.UDPConn
	sink transport.Sink
	wg   sync.WaitGroup
}

// New creates a transport that binds listen ("host:port"); an empty listen
// picks an ephemeral port on all interfaces.
func New(listen string) *Transport {
	if listen == "" {
		listen = ":0"
	}
	return &Transport{listen: listen}
}

func (t *Transport) Kind() transport.Kind { return transport.KindUDP }

// Addr reports the bound socket address, or the configured one before Bind.
func (t *Transport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return t.conn.LocalAddr().String()
	}
	return t.listen
}

func (t *Transport) ReturnAddress() transport.Address {
	return transport.Address{Kind: transport.KindUDP, Addr: t.Addr()}
}

func (t *Transport) Bind(s transport.Sink) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sink != nil {
		return errors.New("udp: transport already bound")
	}
	laddr, err := net.ResolveUDPAddr("udp", t.listen)
	if err != nil {
		return transport.Wrap(transport.KindUDP, "listen", t.listen, err)
	}
	c, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return transport.Wrap(transport.KindUDP, "listen", t.listen, err)
	}
	t.conn, t.sink = c, s
	t.wg.Add(1)
	go t.readLoop(c, s)
	return nil
}

func (t *Transport) Unbind(s transport.Sink) {
	t.mu.Lock()
	if t.sink == nil || t.sink != s {
		t.mu.Unlock()
		return
	}
	c := t.conn
	t.conn, t.sink = nil, nil
	t.mu.Unlock()
	_ = c.Close()
	t.wg.Wait()
}

func (t *Transport) Send(_ context.Context, to transport.Address, pkt transport.Packet) error {
	t.mu.Lock()
	c := t.conn
	t.mu.Unlock()
	if c == nil {
		return transport.Wrap(transport.KindUDP, "send", to.Addr, transport.ErrClosed)
	}
	b := protocol.EncodePacket(pkt)
	if len(b) > MaxDatagram {
		return transport.Wrap(transport.KindUDP, "send", to.Addr, transport.ErrTooLarge)
	}
	raddr, err := net.ResolveUDPAddr("udp", to.Addr)
	if err != nil {
		return transport.Wrap(transport.KindUDP, "send", to.Addr, err)
	}
	if _, err := c.WriteToUDP(b, raddr); err != nil {
		return transport.Wrap(transport.KindUDP, "send", to.Addr, err)
	}
	return nil
}

func (t *Transport) readLoop(c *net.UDPConn, s transport.Sink) {
	defer t.wg.Done()
	buf := make([]byte, 64*1024)
	for {
		n, raddr, err := c.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				zap.L().Debug("udp read stopped", zap.Error(err))
			}
			return
		}
		pkt, err := protocol.DecodePacket(buf[:n])
		if err != nil {
			zap.L().Debug("udp dropping malformed datagram", zap.Stringer("from", raddr), zap.Error(err))
			continue
		}
		if pkt.ReturnAddr.IsZero() {
			pkt.ReturnAddr = transport.Address{Kind: transport.KindUDP, Addr: raddr.String()}
		}
		if err := s.Deliver(pkt); err != nil {
			zap.L().Debug("udp deliver failed", zap.Uint32("to", uint32(pkt.To)), zap.Error(err))
		}
	}
}
