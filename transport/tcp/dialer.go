// Package tcp dials Transmission Control Protocol (TCP) connections through the host's network stack.
package tcp

import (
	"context"
	"net"
	"time"

	"http-wrapper/transport"

	"github.com/pkg/errors"
)

type DialerOptions struct {
	// Timeout bounds connection establishment. Zero means no limit other than ctx.
	Timeout time.Duration
	// KeepAlive sets the keep-alive period. Zero uses the system default.
	KeepAlive time.Duration
}

var DefaultDialerOptions = DialerOptions{
	Timeout:   30 * time.Second,
	KeepAlive: 30 * time.Second,
}

type Dialer struct {
	d net.Dialer
}

var _ transport.ConnDialer = (*Dialer)(nil)

func NewDialer(opts DialerOptions) *Dialer {
	return &Dialer{d: net.Dialer{Timeout: opts.Timeout, KeepAlive: opts.KeepAlive}}
}

func (d *Dialer) Dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	nc, err := d.d.DialContext(ctx, string(transport.TCP), addr.String())
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return nil, errors.Wrapf(transport.ErrConnRefused, "dialing %s: %s", addr, opErr.Err)
		}
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}

	return transport.FromNetConn(nc), nil
}
