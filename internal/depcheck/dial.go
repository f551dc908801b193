// Package depcheck holds the concrete readiness checks for order-api's
// backing services. Each check opens a fresh connection, does the minimum
// round trip that proves the service answers, and closes it again.
package depcheck

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
)

// dialer opens probe sockets whose lifetime is bound to the probe context:
// when that context ends the raw socket is closed, even if the client
// library holding it has not noticed yet.
type dialer struct {
	net.Dialer
}

// dial connects within dialCtx and binds the socket to probeCtx. The two
// differ for clients that derive a short-lived context just for connecting.
func (d *dialer) dial(dialCtx, probeCtx context.Context, network, addr string) (net.Conn, error) {
	conn, err := d.DialContext(dialCtx, network, addr)
	if err != nil {
		return nil, err
	}
	return bind(probeCtx, conn), nil
}

type boundConn struct {
	net.Conn
	stop  func() bool
	heard atomic.Bool // at least one byte arrived from the server
}

func bind(ctx context.Context, conn net.Conn) net.Conn {
	return &boundConn{
		Conn: conn,
		stop: context.AfterFunc(ctx, func() { _ = conn.Close() }),
	}
}

func (c *boundConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.heard.Store(true)
	}
	return n, err
}

func (c *boundConn) Close() error {
	c.stop()
	return c.Conn.Close()
}

var errUnanswered = errors.New("server accepted the previous connection but never answered")

// redialGuard serves the dials of a single check. A client may dial again
// (TLS fallback, next host) only if the server it reached last sent something
// back, so a hung server costs one socket per check.
type redialGuard struct {
	d    *dialer
	last *boundConn
}

func (g *redialGuard) dial(dialCtx, probeCtx context.Context, network, addr string) (net.Conn, error) {
	if g.last != nil && !g.last.heard.Load() {
		return nil, errUnanswered
	}
	conn, err := g.d.dial(dialCtx, probeCtx, network, addr)
	if err != nil {
		return nil, err
	}
	g.last = conn.(*boundConn)
	return conn, nil
}
