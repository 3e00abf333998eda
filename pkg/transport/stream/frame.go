package stream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/dnorman/unbase/pkg/protocol"
)

var errFrameSize = errors.New("invalid frame size")

// conn carries length-prefixed frames (u32 LE) over a byte stream.
type conn struct {
	rwc    io.ReadWriteCloser
	remote string

	wmu sync.Mutex
	bw  *bufio.Writer
	br  *bufio.Reader

	closeOnce sync.Once
}

func newConn(rwc io.ReadWriteCloser, remote string) *conn {
	return &conn{rwc: rwc, remote: remote, bw: bufio.NewWriter(rwc), br: bufio.NewReader(rwc)}
}

func (c *conn) writeFrame(b []byte) error {
	if len(b) > protocol.MaxPacketSize {
		return errFrameSize
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	var lenbuf [4]byte
	binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
	if _, err := c.bw.Write(lenbuf[:]); err != nil {
		return err
	}
	if _, err := c.bw.Write(b); err != nil {
		return err
	}
	return c.bw.Flush()
}

// readFrame is called from a single reader goroutine per conn.
func (c *conn) readFrame() ([]byte, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(c.br, lenbuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenbuf[:])
	if n > protocol.MaxPacketSize {
		return nil, errFrameSize
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.rwc.Close() })
	return err
}
