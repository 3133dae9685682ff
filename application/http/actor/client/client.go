// Package client runs single HTTP requests over a [session.Provider],
// answering proxy and server authentication challenges on the way.
package client

import (
	"io"
	"log/slog"
	"strings"
	"sync"

	"http-wrapper/application/http/semantic"
	"http-wrapper/application/http/semantic/status"
	"http-wrapper/session"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

type Client struct {
	provider session.Provider

	logger *slog.Logger
	clock  clock.Clock
	opts   Options

	// mu guards cfg. Each run works on a snapshot.
	mu  sync.Mutex
	cfg Config
}

// New returns a client over provider. A nil logger discards log output.
func New(provider session.Provider, logger *slog.Logger, clock clock.Clock, cfg Config, opts Options) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if opts.NewRequestID == nil {
		opts.NewRequestID = DefaultOptions.NewRequestID
	}

	return &Client{
		provider: provider,
		logger:   logger,
		clock:    clock,
		opts:     opts,
		cfg:      cfg,
	}
}

// Config returns a copy of the current configuration.
func (c *Client) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetProxy parses url with [NormalizeProxy]. Credentials set before are
// always dropped. An empty url clears the proxy.
func (c *Client) SetProxy(url string) {
	hostPort, username, password := NormalizeProxy(url)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.ProxyURL = hostPort
	c.cfg.ProxyUsername = username
	c.cfg.ProxyPassword = password
}

// SetProxyWithCredentials stores the values as given.
func (c *Client) SetProxyWithCredentials(url, username, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.ProxyURL = url
	c.cfg.ProxyUsername = username
	c.cfg.ProxyPassword = password
}

func (c *Client) ClearProxy() { c.SetProxyWithCredentials("", "", "") }

func (c *Client) Proxy() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.ProxyURL
}

func (c *Client) ProxyUsername() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.ProxyUsername
}

func (c *Client) HasProxyCredentials() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.ProxyUsername != ""
}

func (c *Client) SetServerCredentials(username, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.ServerUsername = username
	c.cfg.ServerPassword = password
}

func (c *Client) Get(path, headers string, res *Response) bool {
	return c.Request(MethodGet, path, headers, nil, res)
}

func (c *Client) Post(path, headers string, body []byte, res *Response) bool {
	return c.Request(MethodPost, path, headers, body, res)
}

func (c *Client) Put(path, headers string, body []byte, res *Response) bool {
	return c.Request(MethodPut, path, headers, body, res)
}

func (c *Client) Delete(path, headers string, body []byte, res *Response) bool {
	return c.Request(MethodDelete, path, headers, body, res)
}

// Request runs one request to completion and fills res. It reports false
// only when the last send or receive failed. Any status, 4xx and 5xx
// included, is a completed request.
func (c *Client) Request(verb Verb, path, headers string, body []byte, res *Response) bool {
	r := &run{
		Client: c,
		cfg:    c.Config(),
		logger: c.logger.With(
			slog.String("request_id", c.opts.NewRequestID()),
			slog.String("verb", verb.String()),
			slog.String("path", path),
		),
		verb:    verb,
		path:    path,
		headers: headers,
		body:    body,
		res:     res,
	}

	start := c.clock.Now()
	ok := r.execute()
	c.opts.Metrics.ObserveRun(verb.String(), ok, c.clock.Since(start))

	r.logger.Debug("request finished",
		slog.Bool("ok", ok),
		slog.Int("status", res.StatusCode),
		slog.Int("content_length", res.ContentLength),
		slog.Bool("binary", res.IsBinary),
		slog.String("error", res.Error),
	)

	return ok
}

// run is the state of one Request call.
type run struct {
	*Client

	cfg    Config
	logger *slog.Logger

	verb    Verb
	path    string
	headers string
	body    []byte

	res *Response
}

func (r *run) sessionOptions() session.SessionOptions {
	opts := session.SessionOptions{
		UserAgent:  r.cfg.UserAgent,
		AccessType: session.AccessDefaultProxy,
		Timeout:    r.cfg.Timeout,
	}
	if r.cfg.ProxyURL != "" {
		opts.AccessType = session.AccessNamedProxy
		opts.Proxy = r.cfg.ProxyURL
	}
	return opts
}

func (r *run) execute() bool {
	res := r.res
	res.StatusCode = 0
	res.IsBinary = false

	sess, err := r.provider.OpenSession(r.sessionOptions())
	if err != nil {
		res.addError("open session fails", err)
		return false
	}
	defer r.closeHandle("session", sess)

	conn, err := sess.Connect(r.cfg.Domain, r.cfg.Port)
	if err != nil {
		res.addError("connect fails", err)
		return false
	}
	defer r.closeHandle("connection", conn)

	flags := session.FlagRefresh
	if r.cfg.Secure {
		flags |= session.FlagSecure
	}

	req, err := conn.OpenRequest(r.verb.String(), r.path, flags)
	if err != nil {
		res.addError("open request fails", err)
		return false
	}
	defer r.closeHandle("request", req)

	return r.loop(req)
}

func (r *run) loop(req session.Request) bool {
	res := r.res

	var (
		proxyScheme session.AuthScheme
		lastStatus  int
	)

	for iteration := 1; ; iteration++ {
		// Proxies may ask again after a 401, so their credentials go out before every send.
		if proxyScheme != 0 && r.cfg.ProxyUsername != "" {
			err := req.SetCredentials(session.TargetProxy, proxyScheme, r.cfg.ProxyUsername, r.cfg.ProxyPassword)
			if err != nil {
				res.addError("set proxy credentials fails", err)
			}
		}

		if err := req.Send(r.headers, r.body); err != nil {
			if r.resendAsked(err, iteration) {
				continue
			}
			res.addError("send request fails", err)
			return false
		}

		if err := req.ReceiveResponse(); err != nil {
			if r.resendAsked(err, iteration) {
				continue
			}
			res.addError("receive response fails", err)
			return false
		}

		code := r.readResponse(req)

		done := false
		switch uint(code) {
		case status.Unauthorized.Code:
			r.opts.Metrics.ObserveChallenge(session.TargetServer.String())
			done = r.answerServer(req)
		case status.ProxyAuthRequired.Code:
			r.opts.Metrics.ObserveChallenge(session.TargetProxy.String())
			scheme, ok := r.proxyChallenge(req)
			if ok {
				proxyScheme = scheme
			} else {
				done = true
			}
		default:
			done = true
		}

		// The same challenge twice in a row means the credentials were rejected.
		if status.IsChallenge(uint(code)) && code == lastStatus {
			done = true
		}
		lastStatus = code

		r.logger.Debug("exchange finished",
			slog.Int("iteration", iteration),
			slog.Int("status", code),
			slog.String("proxy_scheme", proxyScheme.String()),
			slog.Bool("done", done),
		)

		if done {
			return true
		}
	}
}

func (r *run) resendAsked(err error, iteration int) bool {
	if !errors.Is(err, session.ErrResendRequest) {
		return false
	}
	r.opts.Metrics.ObserveResend()
	r.logger.Debug("resend requested", slog.Int("iteration", iteration))
	return true
}

// readResponse fills status, headers and body of res from the current response.
func (r *run) readResponse(req session.Request) int {
	res := r.res

	code, err := req.StatusCode()
	if err != nil {
		res.addError("query status code fails", err)
	}
	res.StatusCode = code
	r.opts.Metrics.ObserveStatus(code)

	header, err := queryRawHeaders(req)
	if err != nil {
		res.addError("query raw headers fails", err)
	}
	res.Header = header
	res.dict = nil

	contentType := semantic.ContentType(semantic.ParseHeaderDictionary(header))
	res.IsBinary = semantic.IsBinaryMimeType(contentType)

	r.readBody(req)

	return code
}

// queryRawHeaders asks for the size first and then fetches the block into
// a buffer of exactly that size.
func queryRawHeaders(req session.Request) (string, error) {
	size, err := req.QueryRawHeaders(nil)
	if err == nil {
		return "", nil
	}
	if !errors.Is(err, session.ErrInsufficientBuffer) {
		return "", err
	}

	buf := make([]byte, size)
	n, err := req.QueryRawHeaders(buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

// readBody streams the body until no byte is reported available. Failures
// are recorded and the loop goes on.
func (r *run) readBody(req session.Request) {
	res := r.res

	var (
		text   strings.Builder
		binary = make([]byte, 0)
	)

	for {
		available, err := req.QueryDataAvailable()
		if err != nil {
			res.addError("query data available fails", err)
		}

		res.ContentLength += available
		if available <= 0 {
			break
		}

		chunk := make([]byte, available)
		n, err := req.ReadData(chunk)
		if err != nil && err != io.EOF {
			res.addError("read data fails", err)
			continue
		}

		if res.IsBinary {
			binary = append(binary, chunk[:n]...)
		} else {
			text.Write(chunk[:n])
		}
	}

	if res.IsBinary {
		res.Text, res.Binary = "", binary
		r.opts.Metrics.ObserveBody(true, len(binary))
	} else {
		res.Text, res.Binary = text.String(), nil
		r.opts.Metrics.ObserveBody(false, text.Len())
	}
}

// answerServer sets server credentials for the strongest offered scheme
// and reports whether the run is done.
func (r *run) answerServer(req session.Request) bool {
	res := r.res

	supported, _, target, err := req.QueryAuthSchemes()
	if err != nil {
		res.addError("query auth schemes in case 401 fails", err)
		return true
	}

	scheme := ChooseAuthScheme(supported)
	r.logger.Debug("server challenge",
		slog.String("supported", supported.String()),
		slog.String("chosen", scheme.String()),
	)
	if scheme == 0 {
		return true
	}

	if err := req.SetCredentials(target, scheme, r.cfg.ServerUsername, r.cfg.ServerPassword); err != nil {
		res.addError("set credentials in case 401 fails", err)
		return true
	}
	return false
}

// proxyChallenge picks the scheme answered on the next send.
// It is false when the challenge could not be queried.
func (r *run) proxyChallenge(req session.Request) (session.AuthScheme, bool) {
	supported, _, _, err := req.QueryAuthSchemes()
	if err != nil {
		r.res.addError("query auth schemes in case 407 fails", err)
		return 0, false
	}

	scheme := ChooseAuthScheme(supported)
	r.logger.Debug("proxy challenge",
		slog.String("supported", supported.String()),
		slog.String("chosen", scheme.String()),
	)
	return scheme, true
}

func (r *run) closeHandle(name string, h io.Closer) {
	if err := h.Close(); err != nil {
		r.logger.Debug("closing handle", slog.String("handle", name), slog.String("error", err.Error()))
	}
}
