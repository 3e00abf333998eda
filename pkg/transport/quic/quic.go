// Package quic carries packets over QUIC. Each connection uses a single
// bidirectional stream opened by the dialer.
package quic

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"io"
	"math/big"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"github.com/dnorman/unbase/pkg/transport"
	"github.com/dnorman/unbase/pkg/transport/stream"
)

const alpn = "unbase"

// Transport is a QUIC transport. Listen may be empty for outbound-only use.
type Transport struct {
	*stream.Transport
	tlsConf  *tls.Config
	quicConf *quicgo.Config
}

func New(listen string) (*Transport, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, err
	}
	t := &Transport{
		tlsConf: &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{alpn},
			MinVersion:   tls.VersionTLS13,
		},
		quicConf: &quicgo.Config{KeepAlivePeriod: 15 * time.Second},
	}
	t.Transport = stream.New(transport.KindQUIC, listen, t.listen, t.dial)
	return t, nil
}

func (t *Transport) listen(addr string) (stream.Listener, error) {
	l, err := quicgo.ListenAddr(addr, t.tlsConf, t.quicConf)
	if err != nil {
		return nil, err
	}
	return &listener{l: l}, nil
}

func (t *Transport) dial(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	// Slab identity is not bound to TLS; peers present self-signed certs.
	tlsClient := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}
	c, err := quicgo.DialAddr(ctx, addr, tlsClient, t.quicConf)
	if err != nil {
		return nil, err
	}
	s, err := c.OpenStreamSync(ctx)
	if err != nil {
		_ = c.CloseWithError(0, "")
		return nil, err
	}
	return &streamConn{ReadWriter: s, closeFn: func() error {
		_ = s.Close()
		return c.CloseWithError(0, "")
	}}, nil
}

type listener struct {
	l *quicgo.Listener
}

func (l *listener) Accept(ctx context.Context) (io.ReadWriteCloser, string, error) {
	c, err := l.l.Accept(ctx)
	if err != nil {
		return nil, "", err
	}
	// the stream becomes visible once the dialer writes its first frame
	s, err := c.AcceptStream(ctx)
	if err != nil {
		_ = c.CloseWithError(0, "")
		return nil, "", err
	}
	return &streamConn{ReadWriter: s, closeFn: func() error {
		_ = s.Close()
		return c.CloseWithError(0, "")
	}}, c.RemoteAddr().String(), nil
}

func (l *listener) Addr() string { return l.l.Addr().String() }
func (l *listener) Close() error { return l.l.Close() }

// streamConn closes the owning connection along with the stream.
type streamConn struct {
	io.ReadWriter
	closeFn func() error
}

func (s *streamConn) Close() error { return s.closeFn() }

// selfSignedCert generates a short-lived self-signed certificate for the listener.
func selfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
