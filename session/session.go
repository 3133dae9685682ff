// Package session describes the transport capability the client drives:
// a provider opens sessions, a session connects to a host, and a
// connection opens requests which are sent, answered and read through.
package session

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrResendRequest asks the caller to send the same request again.
	ErrResendRequest = errors.New("request must be resent")

	// ErrInsufficientBuffer is returned with the required size when a buffer is too small.
	ErrInsufficientBuffer = errors.New("insufficient buffer")

	// ErrUnsupportedScheme is returned when credentials can not be produced for a scheme.
	ErrUnsupportedScheme = errors.New("unsupported auth scheme")

	// ErrNoResponse is returned by queries made before a response is received.
	ErrNoResponse = errors.New("no response received")

	ErrHandleClosed = errors.New("handle is closed")
)

type AccessType int

const (
	AccessDefaultProxy AccessType = iota
	AccessNamedProxy
	AccessNoProxy
)

func (a AccessType) String() string {
	switch a {
	case AccessDefaultProxy:
		return "default"
	case AccessNamedProxy:
		return "named"
	case AccessNoProxy:
		return "none"
	}
	return "unknown"
}

type SessionOptions struct {
	UserAgent  string
	AccessType AccessType

	// Proxy is "host:port", used with AccessNamedProxy.
	Proxy       string
	ProxyBypass []string

	// Timeout bounds each blocking step. Zero means no limit.
	Timeout time.Duration
}

type RequestFlags uint

const (
	FlagSecure RequestFlags = 1 << iota
	FlagRefresh
)

func (f RequestFlags) Has(flag RequestFlags) bool { return f&flag == flag }

// AuthScheme is a bit set of authentication schemes.
type AuthScheme uint

const (
	SchemeBasic     AuthScheme = 0x01
	SchemeNTLM      AuthScheme = 0x02
	SchemePassport  AuthScheme = 0x04
	SchemeDigest    AuthScheme = 0x08
	SchemeNegotiate AuthScheme = 0x10
)

var schemeNames = []struct {
	scheme AuthScheme
	name   string
}{
	{SchemeBasic, "Basic"},
	{SchemeNTLM, "NTLM"},
	{SchemePassport, "Passport1.4"},
	{SchemeDigest, "Digest"},
	{SchemeNegotiate, "Negotiate"},
}

// SchemeFromName maps a challenge scheme name to its bit. Names are case-insensitive.
func SchemeFromName(name string) (AuthScheme, bool) {
	for _, sn := range schemeNames {
		if strings.EqualFold(sn.name, name) {
			return sn.scheme, true
		}
	}
	return 0, false
}

func (s AuthScheme) Has(scheme AuthScheme) bool { return s&scheme == scheme && scheme != 0 }

func (s AuthScheme) String() string {
	if s == 0 {
		return "none"
	}

	names := make([]string, 0)
	for _, sn := range schemeNames {
		if s.Has(sn.scheme) {
			names = append(names, sn.name)
		}
	}
	return strings.Join(names, "|")
}

type AuthTarget uint

const (
	TargetServer AuthTarget = 0
	TargetProxy  AuthTarget = 1
)

func (t AuthTarget) String() string {
	if t == TargetProxy {
		return "proxy"
	}
	return "server"
}

type Provider interface {
	OpenSession(opts SessionOptions) (Session, error)
}

type Session interface {
	Connect(host string, port uint16) (Connection, error)
	Close() error
}

type Connection interface {
	OpenRequest(verb, path string, flags RequestFlags) (Request, error)
	Close() error
}

type Request interface {
	// Send transmits the request. headers is a raw "Name: Value\r\n" block, empty for none.
	Send(headers string, body []byte) error
	ReceiveResponse() error

	StatusCode() (int, error)
	// QueryRawHeaders copies the raw header block into buf. If buf is too
	// small, the required size is returned with [ErrInsufficientBuffer].
	QueryRawHeaders(buf []byte) (int, error)
	QueryAuthSchemes() (supported, first AuthScheme, target AuthTarget, err error)
	SetCredentials(target AuthTarget, scheme AuthScheme, username, password string) error

	// QueryDataAvailable returns the number of body bytes readable now. Zero means the body ended.
	QueryDataAvailable() (int, error)
	ReadData(p []byte) (int, error)

	Close() error
}
