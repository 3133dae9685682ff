package client

import (
	"log/slog"
	"testing"

	"http-wrapper/session"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeProxy(t *testing.T) {
	testcases := []struct {
		desc     string
		url      string
		hostPort string
		username string
		password string
	}{
		{desc: "empty", url: ""},
		{desc: "host and port", url: "proxy.x.com:3128", hostPort: "proxy.x.com:3128"},
		{desc: "credentials", url: "http://u:p@proxy.x.com:3128", hostPort: "proxy.x.com:3128", username: "u", password: "p"},
		{desc: "default port", url: "proxy.x.com", hostPort: "proxy.x.com:8080"},
		{desc: "https scheme", url: "https://proxy.x.com:443", hostPort: "proxy.x.com:443"},
		{desc: "username only", url: "u@proxy.x.com", hostPort: "proxy.x.com:8080", username: "u"},
		{desc: "password with colon", url: "u:p:q@proxy.x.com:1", hostPort: "proxy.x.com:1", username: "u", password: "p:q"},
		{desc: "scheme is case sensitive", url: "HTTP://proxy.x.com", hostPort: "HTTP://proxy.x.com"},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			hostPort, username, password := NormalizeProxy(tc.url)
			assert.Equal(t, tc.hostPort, hostPort)
			assert.Equal(t, tc.username, username)
			assert.Equal(t, tc.password, password)
		})
	}
}

func TestProxySetters(t *testing.T) {
	c := New(nil, slog.New(slog.DiscardHandler), clock.NewMock(), Config{}, DefaultOptions)
	assert.Equal(t, DefaultUserAgent, c.Config().UserAgent)

	c.SetProxy("http://u:p@proxy.test:3128")
	assert.Equal(t, "proxy.test:3128", c.Proxy())
	assert.Equal(t, "u", c.ProxyUsername())
	assert.True(t, c.HasProxyCredentials())

	// Credentials never survive a new proxy.
	c.SetProxy("other.test")
	assert.Equal(t, "other.test:8080", c.Proxy())
	assert.Empty(t, c.ProxyUsername())
	assert.False(t, c.HasProxyCredentials())

	c.SetProxyWithCredentials("verbatim", "a", "b")
	cfg := c.Config()
	assert.Equal(t, "verbatim", cfg.ProxyURL)
	assert.Equal(t, "a", cfg.ProxyUsername)
	assert.Equal(t, "b", cfg.ProxyPassword)

	c.ClearProxy()
	cfg = c.Config()
	assert.Empty(t, cfg.ProxyURL)
	assert.Empty(t, cfg.ProxyUsername)
	assert.Empty(t, cfg.ProxyPassword)

	c.SetProxy("proxy.test:1")
	c.SetProxy("")
	assert.Empty(t, c.Proxy())

	c.SetServerCredentials("s", "t")
	cfg = c.Config()
	assert.Equal(t, "s", cfg.ServerUsername)
	assert.Equal(t, "t", cfg.ServerPassword)
}

func TestChooseAuthScheme(t *testing.T) {
	testcases := []struct {
		desc      string
		supported session.AuthScheme
		expected  session.AuthScheme
	}{
		{desc: "none", supported: 0, expected: 0},
		{desc: "all", supported: 0x1F, expected: session.SchemeNegotiate},
		{desc: "ntlm over digest", supported: session.SchemeNTLM | session.SchemeDigest | session.SchemeBasic, expected: session.SchemeNTLM},
		{desc: "passport over digest", supported: session.SchemePassport | session.SchemeDigest, expected: session.SchemePassport},
		{desc: "digest over basic", supported: session.SchemeDigest | session.SchemeBasic, expected: session.SchemeDigest},
		{desc: "basic last", supported: session.SchemeBasic, expected: session.SchemeBasic},
		{desc: "unknown bits", supported: 0x100, expected: 0},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, ChooseAuthScheme(tc.supported))
		})
	}
}

func TestVerbFromIndex(t *testing.T) {
	testcases := []struct {
		index    int
		expected string
		ok       bool
	}{
		{index: 0, expected: "GET", ok: true},
		{index: 1, expected: "POST", ok: true},
		{index: 2, expected: "PUT", ok: true},
		{index: 3, expected: "DELETE", ok: true},
		{index: 4, ok: false},
		{index: -1, ok: false},
	}

	for _, tc := range testcases {
		verb, ok := VerbFromIndex(tc.index)
		assert.Equal(t, tc.ok, ok, "index %d", tc.index)
		if ok {
			assert.Equal(t, tc.expected, verb.String())
		}
	}

	assert.Equal(t, "UNKNOWN", Verb(9).String())
}
