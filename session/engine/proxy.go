package engine

import (
	"net"
	"net/url"
	"path"
	"strings"
	"unicode"

	"http-wrapper/transport"

	"github.com/pkg/errors"
)

type route struct {
	target transport.Addr
	proxy  *transport.Addr // nil when dialing the target directly.
	secure bool
}

func (r route) dialAddr() transport.Addr {
	if r.proxy != nil {
		return *r.proxy
	}
	return r.target
}

// tunneled reports whether a CONNECT tunnel is needed before talking to the target.
func (r route) tunneled() bool { return r.proxy != nil && r.secure }

// forwarded reports whether requests are sent to the proxy in absolute-form.
func (r route) forwarded() bool { return r.proxy != nil && !r.secure }

func (r route) scheme() string {
	if r.secure {
		return "https"
	}
	return "http"
}

// authority renders host and port, omitting the default port of the scheme.
func (r route) authority() string {
	defaultPort := uint16(80)
	if r.secure {
		defaultPort = 443
	}

	if r.target.Port == defaultPort || r.target.Port == 0 {
		if strings.Contains(r.target.Host, ":") {
			return "[" + r.target.Host + "]"
		}
		return r.target.Host
	}
	return r.target.String()
}

func (s *Session) route(target transport.Addr, secure bool) (route, error) {
	rt := route{target: target, secure: secure}

	switch {
	case s.proxy != nil:
		if !bypassed(target.Host, s.opts.ProxyBypass) {
			rt.proxy = s.proxy
		}
	case s.proxyFunc != nil:
		u, err := s.proxyFunc(&url.URL{Scheme: rt.scheme(), Host: target.String()})
		if err != nil {
			return route{}, errors.Wrap(err, "looking up proxy from environment")
		}
		if u != nil {
			addr, err := proxyAddr(u)
			if err != nil {
				return route{}, err
			}
			rt.proxy = &addr
		}
	}

	return rt, nil
}

func proxyAddr(u *url.URL) (transport.Addr, error) {
	if u.Scheme != "" && u.Scheme != "http" {
		return transport.Addr{}, errors.Errorf("proxy scheme is unsupported: %q", u.Scheme)
	}

	port := u.Port()
	if port == "" {
		port = "80"
	}

	addr, err := transport.ParseAddr(net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		return transport.Addr{}, errors.Wrap(err, "parsing proxy url")
	}
	return addr, nil
}

// bypassed matches host against bypass entries. Entries may hold several
// patterns separated by ';' or whitespace. "<local>" matches names without
// a dot, other patterns are case-insensitive and '*' matches any run.
func bypassed(host string, entries []string) bool {
	host = strings.ToLower(host)
	isSep := func(r rune) bool { return r == ';' || unicode.IsSpace(r) }

	for _, entry := range entries {
		for _, pattern := range strings.FieldsFunc(entry, isSep) {
			pattern = strings.ToLower(pattern)
			if pattern == "<local>" {
				if !strings.Contains(host, ".") {
					return true
				}
				continue
			}

			if ok, _ := path.Match(pattern, host); ok {
				return true
			}
		}
	}

	return false
}
