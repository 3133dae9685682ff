package transport

import (
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

// NetConn exposes a [Conn] as a [net.Conn], e.g. for crypto/tls.
func NetConn(c Conn) net.Conn {
	if wrapped, ok := c.(*fromNet); ok {
		return wrapped.nc
	}
	return &asNet{c: c}
}

// FromNetConn wraps a [net.Conn] as a [Conn].
func FromNetConn(nc net.Conn) Conn {
	if wrapped, ok := nc.(*asNet); ok {
		return wrapped.c
	}
	return &fromNet{nc: nc}
}

type asNet struct{ c Conn }

var _ net.Conn = (*asNet)(nil)

func (a *asNet) Read(p []byte) (int, error)  { return a.c.Read(p) }
func (a *asNet) Write(p []byte) (int, error) { return a.c.Write(p) }
func (a *asNet) Close() error                { return a.c.Close() }
func (a *asNet) LocalAddr() net.Addr         { return netAddr(a.c.LocalAddr()) }
func (a *asNet) RemoteAddr() net.Addr        { return netAddr(a.c.RemoteAddr()) }

func (a *asNet) SetDeadline(t time.Time) error {
	a.c.SetReadDeadLine(t)
	a.c.SetWriteDeadLine(t)
	return nil
}

func (a *asNet) SetReadDeadline(t time.Time) error {
	a.c.SetReadDeadLine(t)
	return nil
}

func (a *asNet) SetWriteDeadline(t time.Time) error {
	a.c.SetWriteDeadLine(t)
	return nil
}

type netAddr Addr

func (a netAddr) Network() string { return string(TCP) }
func (a netAddr) String() string  { return Addr(a).String() }

type fromNet struct{ nc net.Conn }

var _ Conn = (*fromNet)(nil)

func (f *fromNet) Read(p []byte) (int, error) {
	n, err := f.nc.Read(p)
	return n, convertNetErr(err)
}

func (f *fromNet) Write(p []byte) (int, error) {
	n, err := f.nc.Write(p)
	return n, convertNetErr(err)
}

func (f *fromNet) Close() error     { return f.nc.Close() }
func (f *fromNet) LocalAddr() Addr  { return addrOf(f.nc.LocalAddr()) }
func (f *fromNet) RemoteAddr() Addr { return addrOf(f.nc.RemoteAddr()) }

func (f *fromNet) SetReadDeadLine(t time.Time)  { _ = f.nc.SetReadDeadline(t) }
func (f *fromNet) SetWriteDeadLine(t time.Time) { _ = f.nc.SetWriteDeadline(t) }

func addrOf(a net.Addr) Addr {
	if a == nil {
		return Addr{}
	}
	addr, err := ParseAddr(a.String())
	if err != nil {
		return Addr{Host: a.String()}
	}
	return addr
}

func convertNetErr(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrDeadLineExceeded
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return ErrConnClosed
	}
	return err
}
