package client

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"http-wrapper/metrics"
	"http-wrapper/session"
	"http-wrapper/session/sessiontest"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
)

const (
	textHeaders   = "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\n"
	binaryHeaders = "HTTP/1.1 200 OK\r\nContent-Type: application/octet-stream\r\n\r\n"
)

var errBoom = errors.New("boom")

type ClientTestSuite struct {
	suite.Suite

	clock *clock.Mock
	cfg   Config
	opts  Options
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) SetupTest() {
	s.clock = clock.NewMock()
	s.cfg = Config{Domain: "api.test", Port: 443, Secure: true}
	s.opts = Options{NewRequestID: func() string { return "req-1" }}
}

func (s *ClientTestSuite) newClient(p *sessiontest.Provider) *Client {
	return New(p, slog.New(slog.DiscardHandler), s.clock, s.cfg, s.opts)
}

func challenge(status int, supported session.AuthScheme, target session.AuthTarget) sessiontest.Exchange {
	return sessiontest.Exchange{
		Status:    status,
		Headers:   "HTTP/1.1 " + map[int]string{401: "401 Unauthorized", 407: "407 Proxy Authentication Required"}[status] + "\r\n\r\n",
		Supported: supported,
		First:     supported,
		Target:    target,
	}
}

func ok(body string) sessiontest.Exchange {
	return sessiontest.Exchange{Status: 200, Headers: textHeaders, Chunks: [][]byte{[]byte(body)}}
}

func (s *ClientTestSuite) TestText() {
	p := sessiontest.NewProvider(sessiontest.Exchange{
		Status:  200,
		Headers: textHeaders,
		Chunks:  [][]byte{[]byte("hel"), []byte("lo")},
	})

	var res Response
	s.True(s.newClient(p).Get("/greet", "", &res))

	s.Equal(200, res.StatusCode)
	s.Equal("hello", res.Text)
	s.Nil(res.Binary)
	s.False(res.IsBinary)
	s.Equal(5, res.ContentLength)
	s.Equal(textHeaders, res.Header)
	s.Empty(res.Error)
	s.NoError(res.Err())

	s.Equal([]string{
		"OpenSession", "Connect", "OpenRequest",
		"Send", "ReceiveResponse", "StatusCode", "QueryRawHeaders", "QueryRawHeaders",
		"QueryDataAvailable", "ReadData", "QueryDataAvailable", "ReadData", "QueryDataAvailable",
		"CloseRequest", "CloseConnection", "CloseSession",
	}, p.Ops())

	s.Equal([]sessiontest.Call{
		{Op: "QueryRawHeaders", Args: []any{0}},
		{Op: "QueryRawHeaders", Args: []any{len(textHeaders)}},
	}, p.CallsOf("QueryRawHeaders"))
}

func (s *ClientTestSuite) TestBinary() {
	p := sessiontest.NewProvider(sessiontest.Exchange{
		Status:  200,
		Headers: binaryHeaders,
		Chunks:  [][]byte{{0xFF, 0x00}, {0x10}},
	})

	var res Response
	s.True(s.newClient(p).Get("/blob", "", &res))

	s.True(res.IsBinary)
	s.Equal([]byte{0xFF, 0x00, 0x10}, res.Binary)
	s.Empty(res.Text)
	s.Equal(3, res.ContentLength)
}

func (s *ClientTestSuite) TestContentTypeCaseInsensitive() {
	testcases := []struct {
		desc   string
		header string
	}{
		{desc: "mixed case", header: "HTTP/1.1 200 OK\r\nContent-type: image/png\r\n\r\n"},
		{desc: "upper case", header: "HTTP/1.1 200 OK\r\nCONTENT-TYPE: image/png\r\n\r\n"},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			p := sessiontest.NewProvider(sessiontest.Exchange{
				Status:  200,
				Headers: tc.header,
				Chunks:  [][]byte{{0xFF, 0x00, 0x10}},
			})

			var res Response
			s.True(s.newClient(p).Get("/img", "", &res))

			s.True(res.IsBinary)
			s.Equal([]byte{0xFF, 0x00, 0x10}, res.Binary)
			s.Empty(res.Text)
		})
	}
}

func (s *ClientTestSuite) TestNilLogger() {
	p := sessiontest.NewProvider(sessiontest.Exchange{Status: 200, Headers: textHeaders, Chunks: [][]byte{[]byte("ok")}})

	var res Response
	s.NotPanics(func() {
		s.True(New(p, nil, s.clock, s.cfg, s.opts).Get("/", "", &res))
	})
	s.Equal("ok", res.Text)
}

func (s *ClientTestSuite) TestEmptyBinaryBody() {
	p := sessiontest.NewProvider(sessiontest.Exchange{Status: 204, Headers: binaryHeaders})

	var res Response
	s.True(s.newClient(p).Get("/", "", &res))
	s.True(res.IsBinary)
	s.Equal([]byte{}, res.Binary)
}

func (s *ClientTestSuite) TestSetup() {
	cfg := s.cfg
	cfg.Timeout = 3 * time.Second
	c := New(sessiontest.NewProvider(ok("")), slog.New(slog.DiscardHandler), s.clock, cfg, s.opts)

	var res Response
	s.True(c.Post("/submit", "X-Test: 1\r\n", []byte("payload"), &res))

	p := c.provider.(*sessiontest.Provider)
	s.Equal([]sessiontest.Call{{Op: "OpenSession", Args: []any{session.SessionOptions{
		UserAgent:  DefaultUserAgent,
		AccessType: session.AccessDefaultProxy,
		Timeout:    3 * time.Second,
	}}}}, p.CallsOf("OpenSession"))
	s.Equal([]sessiontest.Call{{Op: "Connect", Args: []any{"api.test", uint16(443)}}}, p.CallsOf("Connect"))
	s.Equal([]sessiontest.Call{{Op: "OpenRequest", Args: []any{"POST", "/submit", session.FlagRefresh | session.FlagSecure}}}, p.CallsOf("OpenRequest"))
	s.Equal([]sessiontest.Call{{Op: "Send", Args: []any{"X-Test: 1\r\n", "payload"}}}, p.CallsOf("Send"))
}

func (s *ClientTestSuite) TestNamedProxy() {
	s.cfg.Secure = false
	p := sessiontest.NewProvider(ok(""))
	c := s.newClient(p)
	c.SetProxy("http://proxy.test")

	var res Response
	s.True(c.Delete("/item", "", nil, &res))

	s.Equal([]sessiontest.Call{{Op: "OpenSession", Args: []any{session.SessionOptions{
		UserAgent:  DefaultUserAgent,
		AccessType: session.AccessNamedProxy,
		Proxy:      "proxy.test:8080",
	}}}}, p.CallsOf("OpenSession"))
	s.Equal([]sessiontest.Call{{Op: "OpenRequest", Args: []any{"DELETE", "/item", session.FlagRefresh}}}, p.CallsOf("OpenRequest"))
}

func (s *ClientTestSuite) TestSetupFailures() {
	testcases := []struct {
		desc     string
		provider *sessiontest.Provider
		err      string
		ops      []string
	}{
		{
			desc:     "open session",
			provider: &sessiontest.Provider{OpenSessionErr: errBoom},
			err:      "open session fails: boom",
			ops:      []string{"OpenSession"},
		},
		{
			desc:     "connect",
			provider: &sessiontest.Provider{ConnectErr: errBoom},
			err:      "connect fails: boom",
			ops:      []string{"OpenSession", "Connect", "CloseSession"},
		},
		{
			desc:     "open request",
			provider: &sessiontest.Provider{OpenRequestErr: errBoom},
			err:      "open request fails: boom",
			ops:      []string{"OpenSession", "Connect", "OpenRequest", "CloseConnection", "CloseSession"},
		},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			var res Response
			s.False(s.newClient(tc.provider).Get("/", "", &res))
			s.Equal(tc.err, res.Error)
			s.EqualError(res.Err(), tc.err)
			s.Equal(tc.ops, tc.provider.Ops())
			s.Zero(res.StatusCode)
		})
	}
}

func (s *ClientTestSuite) TestTransportFailures() {
	testcases := []struct {
		desc     string
		exchange sessiontest.Exchange
		err      string
	}{
		{desc: "send", exchange: sessiontest.Exchange{SendErr: errBoom}, err: "send request fails: boom"},
		{desc: "receive", exchange: sessiontest.Exchange{ReceiveErr: errBoom}, err: "receive response fails: boom"},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			p := sessiontest.NewProvider(tc.exchange, ok("never"))

			var res Response
			s.False(s.newClient(p).Get("/", "", &res))
			s.Equal(tc.err, res.Error)
			s.Equal(1, p.Sent())
			s.Equal([]string{"CloseRequest", "CloseConnection", "CloseSession"}, p.Ops()[len(p.Ops())-3:])
		})
	}
}

func (s *ClientTestSuite) TestQueryFailuresKeepGoing() {
	p := sessiontest.NewProvider(sessiontest.Exchange{
		StatusErr:     errBoom,
		RawHeadersErr: errBoom,
		Chunks:        [][]byte{[]byte("partial")},
		ReadErr:       errBoom,
	})

	var res Response
	s.True(s.newClient(p).Get("/", "", &res))
	s.Equal("query status code fails: boom; query raw headers fails: boom; read data fails: boom", res.Error)
	s.Equal(7, res.ContentLength)
	s.Empty(res.Text)
}

func (s *ClientTestSuite) TestAvailableFailure() {
	p := sessiontest.NewProvider(sessiontest.Exchange{Status: 200, AvailableErr: errBoom})

	var res Response
	s.True(s.newClient(p).Get("/", "", &res))
	s.Equal("query data available fails: boom", res.Error)
	s.Equal(200, res.StatusCode)
}

func (s *ClientTestSuite) TestContentLengthCountsAvailable() {
	p := sessiontest.NewProvider(sessiontest.Exchange{
		Status:    200,
		Headers:   textHeaders,
		Chunks:    [][]byte{[]byte("abc"), []byte("def")},
		ShortRead: 1,
	})

	var res Response
	s.True(s.newClient(p).Get("/", "", &res))
	s.Equal(6, res.ContentLength)
	s.Equal("abde", res.Text)
}

func (s *ClientTestSuite) TestServerAuth() {
	s.cfg.ServerUsername, s.cfg.ServerPassword = "user", "pass"
	p := sessiontest.NewProvider(
		challenge(401, session.SchemeBasic|session.SchemeNTLM|session.SchemeDigest, session.TargetServer),
		ok("welcome"),
	)

	var res Response
	s.True(s.newClient(p).Get("/", "", &res))

	s.Equal(200, res.StatusCode)
	s.Equal("welcome", res.Text)
	s.Equal([]sessiontest.Call{
		{Op: "SetCredentials", Args: []any{session.TargetServer, session.SchemeNTLM, "user", "pass"}},
	}, p.CallsOf("SetCredentials"))
	s.Equal(2, p.Sent())
}

func (s *ClientTestSuite) TestServerAuthFailures() {
	testcases := []struct {
		desc     string
		exchange sessiontest.Exchange
		err      string
	}{
		{
			desc:     "query auth schemes",
			exchange: sessiontest.Exchange{Status: 401, QueryAuthErr: errBoom},
			err:      "query auth schemes in case 401 fails: boom",
		},
		{
			desc:     "set credentials",
			exchange: sessiontest.Exchange{Status: 401, Supported: session.SchemeBasic, SetCredentialsErr: errBoom},
			err:      "set credentials in case 401 fails: boom",
		},
		{
			desc:     "query proxy auth schemes",
			exchange: sessiontest.Exchange{Status: 407, QueryAuthErr: errBoom},
			err:      "query auth schemes in case 407 fails: boom",
		},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			p := sessiontest.NewProvider(tc.exchange, ok("never"))

			var res Response
			s.True(s.newClient(p).Get("/", "", &res))
			s.Equal(tc.err, res.Error)
			s.Equal(1, p.Sent())
		})
	}
}

func (s *ClientTestSuite) TestAntiOscillation() {
	testcases := []struct {
		desc      string
		status    int
		supported session.AuthScheme
		sent      int
	}{
		{desc: "no usable server scheme", status: 401, supported: 0, sent: 1},
		{desc: "server rejects twice", status: 401, supported: session.SchemeBasic, sent: 2},
		{desc: "no usable proxy scheme", status: 407, supported: 0, sent: 2},
		{desc: "proxy rejects twice", status: 407, supported: session.SchemeBasic, sent: 2},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			exchanges := make([]sessiontest.Exchange, 5)
			for i := range exchanges {
				exchanges[i] = challenge(tc.status, tc.supported, session.TargetServer)
			}
			p := sessiontest.NewProvider(exchanges...)

			var res Response
			s.True(s.newClient(p).Get("/", "", &res))
			s.Equal(tc.status, res.StatusCode)
			s.Equal(tc.sent, p.Sent())
			s.Empty(res.Error)
		})
	}
}

func (s *ClientTestSuite) TestProxyAuth() {
	s.cfg.ServerUsername, s.cfg.ServerPassword = "user", "pass"
	p := sessiontest.NewProvider(
		challenge(407, session.SchemeBasic, session.TargetProxy),
		challenge(401, session.SchemeDigest, session.TargetServer),
		ok("through"),
	)
	c := s.newClient(p)
	c.SetProxy("http://pu:pp@proxy.test:3128")

	var res Response
	s.True(c.Get("/", "", &res))
	s.Equal("through", res.Text)

	s.Equal([]sessiontest.Call{
		{Op: "SetCredentials", Args: []any{session.TargetProxy, session.SchemeBasic, "pu", "pp"}},
		{Op: "SetCredentials", Args: []any{session.TargetServer, session.SchemeDigest, "user", "pass"}},
		{Op: "SetCredentials", Args: []any{session.TargetProxy, session.SchemeBasic, "pu", "pp"}},
	}, p.CallsOf("SetCredentials"))
	s.Equal(3, p.Sent())
}

func (s *ClientTestSuite) TestProxyAuthWithoutCredentials() {
	p := sessiontest.NewProvider(
		challenge(407, session.SchemeBasic, session.TargetProxy),
		challenge(407, session.SchemeBasic, session.TargetProxy),
		ok("never"),
	)
	c := s.newClient(p)
	c.SetProxy("proxy.test:3128")

	var res Response
	s.True(c.Get("/", "", &res))
	s.Equal(407, res.StatusCode)
	s.Empty(p.CallsOf("SetCredentials"))
	s.Equal(2, p.Sent())
}

func (s *ClientTestSuite) TestProxyCredentialFailureIsRecorded() {
	refused := challenge(407, session.SchemeBasic, session.TargetProxy)
	refused.SetCredentialsErr = errBoom

	p := sessiontest.NewProvider(refused, ok("hello"))
	c := s.newClient(p)
	c.SetProxyWithCredentials("proxy.test:3128", "pu", "pp")

	var res Response
	s.True(c.Get("/", "", &res))
	s.Equal(200, res.StatusCode)
	s.Equal("hello", res.Text)
	s.Equal("set proxy credentials fails: boom", res.Error)
}

func (s *ClientTestSuite) TestResend() {
	p := sessiontest.NewProvider(
		sessiontest.Exchange{SendErr: session.ErrResendRequest},
		sessiontest.Exchange{ReceiveErr: session.ErrResendRequest},
		ok("again"),
	)

	var res Response
	s.True(s.newClient(p).Get("/", "", &res))
	s.Equal("again", res.Text)
	s.Empty(res.Error)
	s.Equal(3, p.Sent())
	s.Len(p.CallsOf("ReceiveResponse"), 2)
}

func (s *ClientTestSuite) TestContentLengthAccumulatesAcrossExchanges() {
	s.cfg.ServerUsername = "user"
	p := sessiontest.NewProvider(
		sessiontest.Exchange{Status: 401, Supported: session.SchemeBasic, Chunks: [][]byte{[]byte("denied")}},
		ok("hello"),
	)

	var res Response
	s.True(s.newClient(p).Get("/", "", &res))
	s.Equal("hello", res.Text)
	s.Equal(11, res.ContentLength)
}

func (s *ClientTestSuite) TestResetIdempotence() {
	exchange := sessiontest.Exchange{
		Status:  200,
		Headers: "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n",
		Chunks:  [][]byte{[]byte(`{"k":"v"}`)},
	}

	var fresh Response
	s.True(s.newClient(sessiontest.NewProvider(exchange)).Get("/", "", &fresh))

	c := s.newClient(sessiontest.NewProvider(
		sessiontest.Exchange{Status: 500, Headers: binaryHeaders, Chunks: [][]byte{{1, 2}}, ReadErr: errBoom},
		exchange,
	))

	var reused Response
	s.True(c.Get("/", "", &reused))
	s.NotEmpty(reused.HeaderDictionary())

	reused.Reset()
	s.Equal(Response{}, reused)

	s.True(c.Get("/", "", &reused))
	s.Equal(fresh, reused)
	s.Equal("application/json", reused.ContentType())
	s.False(reused.IsBinary)
}

func (s *ClientTestSuite) TestLogsAndMetrics() {
	buf := bytes.NewBuffer(nil)
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s.opts.Metrics = metrics.New()
	c := New(sessiontest.NewProvider(
		sessiontest.Exchange{SendErr: session.ErrResendRequest},
		challenge(401, session.SchemeBasic, session.TargetServer),
		ok("hello"),
	), logger, s.clock, s.cfg, s.opts)

	var res Response
	s.True(c.Get("/", "", &res))

	m := s.opts.Metrics
	s.Equal(1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", metrics.OutcomeOK)))
	s.Equal(1.0, testutil.ToFloat64(m.Challenges.WithLabelValues("server")))
	s.Equal(1.0, testutil.ToFloat64(m.Resends))
	s.Equal(5.0, testutil.ToFloat64(m.BodyBytes.WithLabelValues("text")))
	s.Equal(1.0, testutil.ToFloat64(m.Statuses.WithLabelValues("2xx")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	s.NotEmpty(lines)
	for _, line := range lines {
		var entry map[string]any
		s.Require().NoError(json.Unmarshal([]byte(line), &entry))
		s.Equal("req-1", entry["request_id"])
		s.Equal("GET", entry["verb"])
	}

	var last map[string]any
	s.Require().NoError(json.Unmarshal([]byte(lines[len(lines)-1]), &last))
	s.Equal("request finished", last["msg"])
	s.Equal(float64(200), last["status"])
}
