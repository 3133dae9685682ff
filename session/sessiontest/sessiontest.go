// Package sessiontest provides a scripted [session.Provider] that replays
// exchanges and records every call made against it.
package sessiontest

import (
	"fmt"
	"sync"

	"http-wrapper/session"

	"github.com/pkg/errors"
)

var ErrScriptExhausted = errors.New("no scripted exchange left")

// Exchange is the scripted answer to one Send.
type Exchange struct {
	SendErr    error
	ReceiveErr error

	Status    int
	StatusErr error

	// Headers is returned verbatim from QueryRawHeaders.
	Headers       string
	RawHeadersErr error

	// Chunks are reported available and read one at a time.
	Chunks       [][]byte
	AvailableErr error
	ReadErr      error
	// ShortRead delivers this many bytes fewer than each chunk holds.
	ShortRead int

	Supported    session.AuthScheme
	First        session.AuthScheme
	Target       session.AuthTarget
	QueryAuthErr error

	SetCredentialsErr error
}

// Call is one recorded operation.
type Call struct {
	Op   string
	Args []any
}

func (c Call) String() string { return fmt.Sprintf("%s%v", c.Op, c.Args) }

type Provider struct {
	OpenSessionErr error
	ConnectErr     error
	OpenRequestErr error

	Exchanges []Exchange

	mu    sync.Mutex
	calls []Call
	next  int
}

var _ session.Provider = (*Provider)(nil)

func NewProvider(exchanges ...Exchange) *Provider {
	return &Provider{Exchanges: exchanges}
}

func (p *Provider) record(op string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Op: op, Args: args})
}

// Calls returns every recorded call in order.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Ops returns the recorded operation names in order.
func (p *Provider) Ops() []string {
	calls := p.Calls()
	ops := make([]string, 0, len(calls))
	for _, c := range calls {
		ops = append(ops, c.Op)
	}
	return ops
}

// CallsOf returns the recorded calls of op.
func (p *Provider) CallsOf(op string) []Call {
	calls := make([]Call, 0)
	for _, c := range p.Calls() {
		if c.Op == op {
			calls = append(calls, c)
		}
	}
	return calls
}

// Sent reports how many exchanges were consumed.
func (p *Provider) Sent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}

func (p *Provider) nextExchange() (*Exchange, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.next >= len(p.Exchanges) {
		return nil, ErrScriptExhausted
	}
	ex := &p.Exchanges[p.next]
	p.next++
	return ex, nil
}

func (p *Provider) OpenSession(opts session.SessionOptions) (session.Session, error) {
	p.record("OpenSession", opts)
	if p.OpenSessionErr != nil {
		return nil, p.OpenSessionErr
	}
	return &Session{p: p}, nil
}

type Session struct{ p *Provider }

func (s *Session) Connect(host string, port uint16) (session.Connection, error) {
	s.p.record("Connect", host, port)
	if s.p.ConnectErr != nil {
		return nil, s.p.ConnectErr
	}
	return &Connection{p: s.p}, nil
}

func (s *Session) Close() error {
	s.p.record("CloseSession")
	return nil
}

type Connection struct{ p *Provider }

func (c *Connection) OpenRequest(verb, path string, flags session.RequestFlags) (session.Request, error) {
	c.p.record("OpenRequest", verb, path, flags)
	if c.p.OpenRequestErr != nil {
		return nil, c.p.OpenRequestErr
	}
	return &Request{p: c.p}, nil
}

func (c *Connection) Close() error {
	c.p.record("CloseConnection")
	return nil
}

type Request struct {
	p *Provider

	cur   *Exchange
	chunk int
}

var _ session.Request = (*Request)(nil)

func (r *Request) Send(headers string, body []byte) error {
	r.p.record("Send", headers, string(body))

	ex, err := r.p.nextExchange()
	if err != nil {
		r.cur = nil
		return err
	}
	r.cur, r.chunk = ex, 0

	return ex.SendErr
}

func (r *Request) ReceiveResponse() error {
	r.p.record("ReceiveResponse")
	if r.cur == nil {
		return ErrScriptExhausted
	}
	return r.cur.ReceiveErr
}

func (r *Request) StatusCode() (int, error) {
	r.p.record("StatusCode")
	ex := r.exchange()
	if ex.StatusErr != nil {
		return 0, ex.StatusErr
	}
	return ex.Status, nil
}

func (r *Request) QueryRawHeaders(buf []byte) (int, error) {
	r.p.record("QueryRawHeaders", len(buf))
	ex := r.exchange()
	if ex.RawHeadersErr != nil {
		return 0, ex.RawHeadersErr
	}
	if len(buf) < len(ex.Headers) {
		return len(ex.Headers), session.ErrInsufficientBuffer
	}
	return copy(buf, ex.Headers), nil
}

func (r *Request) QueryAuthSchemes() (supported, first session.AuthScheme, target session.AuthTarget, err error) {
	r.p.record("QueryAuthSchemes")
	ex := r.exchange()
	return ex.Supported, ex.First, ex.Target, ex.QueryAuthErr
}

func (r *Request) SetCredentials(target session.AuthTarget, scheme session.AuthScheme, username, password string) error {
	r.p.record("SetCredentials", target, scheme, username, password)
	return r.exchange().SetCredentialsErr
}

func (r *Request) QueryDataAvailable() (int, error) {
	r.p.record("QueryDataAvailable")
	ex := r.exchange()
	if ex.AvailableErr != nil {
		return 0, ex.AvailableErr
	}
	if r.chunk >= len(ex.Chunks) {
		return 0, nil
	}
	return len(ex.Chunks[r.chunk]), nil
}

func (r *Request) ReadData(p []byte) (int, error) {
	r.p.record("ReadData", len(p))
	ex := r.exchange()
	if r.chunk >= len(ex.Chunks) {
		return 0, nil
	}

	chunk := ex.Chunks[r.chunk]
	r.chunk++

	if ex.ReadErr != nil {
		return 0, ex.ReadErr
	}
	return copy(p, chunk[:max(0, len(chunk)-ex.ShortRead)]), nil
}

// exchange is the current exchange, empty before the first Send.
func (r *Request) exchange() *Exchange {
	if r.cur == nil {
		return &Exchange{}
	}
	return r.cur
}

func (r *Request) Close() error {
	r.p.record("CloseRequest")
	return nil
}
