package nsqconn

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// Dialer establishes the raw stream to a broker. The connection engine is
// transport-agnostic: anything that yields a net.Conn speaking the framed
// protocol will do.
type Dialer interface {
	// Dial connects to the broker address with the given context.
	Dial(ctx context.Context, address string) (net.Conn, error)
}

// TCPDialer connects to brokers over plain TCP.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a connection.
	// Zero means no timeout.
	Timeout time.Duration

	// LocalAddr optionally pins the local address for the connection.
	LocalAddr net.Addr
}

// Dial connects to the address.
func (d *TCPDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	dialer := net.Dialer{LocalAddr: d.LocalAddr}
	if d.Timeout > 0 {
		dialer.Timeout = d.Timeout
	}
	return dialer.DialContext(ctx, "tcp", address)
}

// TLSDialer connects to brokers over TLS.
type TLSDialer struct {
	// Config is the TLS configuration. A nil config uses TLS 1.2+ defaults.
	Config *tls.Config

	// Timeout is the maximum time to wait for a connection, including the
	// TLS handshake. Zero means no timeout.
	Timeout time.Duration
}

// Dial connects to the address and completes the TLS handshake.
func (d *TLSDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	config := d.Config
	if config == nil {
		config = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	netDialer := net.Dialer{}
	if d.Timeout > 0 {
		netDialer.Timeout = d.Timeout
	}

	tlsDialer := tls.Dialer{NetDialer: &netDialer, Config: config}
	return tlsDialer.DialContext(ctx, "tcp", address)
}
