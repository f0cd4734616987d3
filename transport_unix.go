package nsqconn

import (
	"context"
	"net"
)

// UnixDialer connects to brokers over Unix domain sockets. The address is
// the socket file path (e.g. "/var/run/nsqd.sock").
type UnixDialer struct{}

// NewUnixDialer creates a new Unix socket dialer.
func NewUnixDialer() *UnixDialer {
	return &UnixDialer{}
}

// Dial connects to the Unix socket at the given path.
func (d *UnixDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	var dialer net.Dialer
	return dialer.DialContext(ctx, "unix", address)
}
