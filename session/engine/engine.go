// Package engine implements [session.Provider] with the HTTP/1.1 codec
// of this module over a [transport.ConnDialer].
package engine

import (
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"io"
	"log/slog"
	"net/url"

	"http-wrapper/application/http"
	"http-wrapper/application/util/rule"
	"http-wrapper/session"
	"http-wrapper/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"golang.org/x/net/http/httpproxy"
)

type Options struct {
	// TLSConfig is cloned for each secure connection.
	// ServerName defaults to the connected host.
	TLSConfig *tls.Config

	Encode http.EncodeOptions
	Decode http.DecodeOptions

	// ProxyFromEnvironment supplies proxy settings for [session.AccessDefaultProxy].
	ProxyFromEnvironment func() *httpproxy.Config

	// ReadBufferSize is the most body bytes reported available at once.
	ReadBufferSize int

	// Nonce generates client nonces for Digest authentication.
	Nonce func() (string, error)
}

var DefaultOptions = Options{
	TLSConfig: nil,
	Encode:    http.DefaultEncodeOptions,
	Decode: http.DecodeOptions{
		AllowSoleLF:       true,
		LenientWhitespace: false,
	},
	ProxyFromEnvironment: httpproxy.FromEnvironment,
	ReadBufferSize:       32 * 1024,
	Nonce:                randomNonce,
}

type Engine struct {
	dialer transport.ConnDialer
	logger *slog.Logger
	clock  clock.Clock

	opts Options
}

var _ session.Provider = (*Engine)(nil)

func New(dialer transport.ConnDialer, logger *slog.Logger, clock clock.Clock, opts Options) *Engine {
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = DefaultOptions.ReadBufferSize
	}
	if opts.Nonce == nil {
		opts.Nonce = randomNonce
	}
	if opts.ProxyFromEnvironment == nil {
		opts.ProxyFromEnvironment = httpproxy.FromEnvironment
	}

	return &Engine{
		dialer: dialer,
		logger: logger,
		clock:  clock,
		opts:   opts,
	}
}

func (e *Engine) OpenSession(opts session.SessionOptions) (session.Session, error) {
	s := &Session{engine: e, opts: opts}

	switch opts.AccessType {
	case session.AccessNamedProxy:
		addr, err := transport.ParseAddr(opts.Proxy)
		if err != nil {
			return nil, errors.Wrap(err, "parsing proxy address")
		}
		s.proxy = &addr
	case session.AccessDefaultProxy:
		s.proxyFunc = e.opts.ProxyFromEnvironment().ProxyFunc()
	case session.AccessNoProxy:
	default:
		return nil, errors.Errorf("unknown access type: %d", opts.AccessType)
	}

	e.logger.Debug("session opened",
		slog.String("access", opts.AccessType.String()),
		slog.String("proxy", opts.Proxy),
	)

	return s, nil
}

type Session struct {
	engine *Engine
	opts   session.SessionOptions

	proxy     *transport.Addr
	proxyFunc func(*url.URL) (*url.URL, error)

	closed bool
}

var _ session.Session = (*Session)(nil)

func (s *Session) Connect(host string, port uint16) (session.Connection, error) {
	if s.closed {
		return nil, session.ErrHandleClosed
	}
	if host == "" {
		return nil, errors.New("host is empty")
	}

	return &Connection{
		session: s,
		target:  transport.Addr{Host: host, Port: port},
	}, nil
}

func (s *Session) Close() error {
	s.closed = true
	return nil
}

type Connection struct {
	session *Session
	target  transport.Addr

	closed bool
}

var _ session.Connection = (*Connection)(nil)

func (c *Connection) OpenRequest(verb, path string, flags session.RequestFlags) (session.Request, error) {
	if c.closed || c.session.closed {
		return nil, session.ErrHandleClosed
	}
	if !rule.IsValidToken(verb) {
		return nil, errors.Errorf("method is not a valid token: %q", verb)
	}

	rt, err := c.session.route(c.target, flags.Has(session.FlagSecure))
	if err != nil {
		return nil, errors.Wrap(err, "resolving route")
	}

	e := c.session.engine
	return &Request{
		verb:      verb,
		path:      normalizePath(path),
		flags:     flags,
		route:     rt,
		userAgent: c.session.opts.UserAgent,
		timeout:   c.session.opts.Timeout,

		dialer: e.dialer,
		logger: e.logger,
		clock:  e.clock,
		opts:   e.opts,

		challenges:  make(map[session.AuthTarget][]challenge),
		credentials: make(map[session.AuthTarget]*credential),
		nonceCounts: make(map[string]uint),
	}, nil
}

func (c *Connection) Close() error {
	c.closed = true
	return nil
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if path[0] != '/' && path != "*" {
		return "/" + path
	}
	return path
}

func randomNonce() (string, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", errors.Wrap(err, "reading random bytes")
	}
	return hex.EncodeToString(b), nil
}
