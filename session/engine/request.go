package engine

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"http-wrapper/application/http"
	"http-wrapper/application/http/semantic/status"
	"http-wrapper/application/http/transfer"
	"http-wrapper/session"
	"http-wrapper/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

type Request struct {
	verb      string
	path      string
	flags     session.RequestFlags
	route     route
	userAgent string
	timeout   time.Duration

	dialer transport.ConnDialer
	logger *slog.Logger
	clock  clock.Clock
	opts   Options

	tc  transport.Conn
	br  *bufio.Reader
	dec *http.ResponseDecoder
	enc *http.RequestEncoder

	// reused is set once the connection carried a whole exchange.
	reused bool
	// resendAsked is set when a resend was requested for the pending exchange.
	resendAsked bool

	sent    bool
	pending *response // CONNECT reply standing in for the response.
	res     *response
	buf     []byte
	staged  []byte

	challenges  map[session.AuthTarget][]challenge
	credentials map[session.AuthTarget]*credential
	nonceCounts map[string]uint

	closed bool
}

var _ session.Request = (*Request)(nil)

type response struct {
	statusLine http.StatusLine
	headers    []http.Field
	raw        string
	body       *transfer.Body

	closeConn bool
	done      bool
}

func (r *Request) Send(headers string, body []byte) error {
	if r.closed {
		return session.ErrHandleClosed
	}

	r.discardResponse()

	if r.tc == nil {
		if err := r.connect(); err != nil {
			return errors.Wrap(err, "connecting")
		}

		if r.pending != nil {
			// Proxy refused the tunnel, its reply is the response.
			r.sent = true
			return nil
		}
	}

	fields, err := r.buildHeaders(headers, body)
	if err != nil {
		return errors.Wrap(err, "building headers")
	}

	msg := http.Request{
		RequestLine: http.RequestLine{
			Method:  r.verb,
			Target:  r.requestTarget(),
			Version: http.HTTP11,
		},
		Headers: fields,
		Body:    bytes.NewReader(body),
	}

	r.setWriteDeadline()
	if err := r.enc.Encode(msg); err != nil {
		return r.connFailure(err, "writing request")
	}

	r.sent = true
	return nil
}

func (r *Request) ReceiveResponse() error {
	if r.closed {
		return session.ErrHandleClosed
	}
	if !r.sent {
		return errors.New("request is not sent")
	}
	r.sent = false

	if r.pending != nil {
		r.res, r.pending = r.pending, nil
		return nil
	}

	res, err := r.readResponse(r.verb)
	if err != nil {
		return r.connFailure(err, "receiving response")
	}

	r.res = res
	r.reused = true
	r.resendAsked = false

	r.logger.Debug("response received",
		slog.String("method", r.verb),
		slog.Uint64("status", uint64(res.statusLine.StatusCode)),
		slog.String("framing", res.body.Framing.String()),
	)

	return nil
}

func (r *Request) StatusCode() (int, error) {
	if r.res == nil {
		return 0, session.ErrNoResponse
	}
	return int(r.res.statusLine.StatusCode), nil
}

func (r *Request) QueryRawHeaders(buf []byte) (int, error) {
	if r.res == nil {
		return 0, session.ErrNoResponse
	}

	raw := r.res.raw
	if len(buf) < len(raw) {
		return len(raw), session.ErrInsufficientBuffer
	}
	return copy(buf, raw), nil
}

func (r *Request) QueryDataAvailable() (int, error) {
	if r.closed {
		return 0, session.ErrHandleClosed
	}
	if r.res == nil {
		return 0, session.ErrNoResponse
	}

	if err := r.fill(); err != nil {
		return 0, err
	}
	return len(r.staged), nil
}

func (r *Request) ReadData(p []byte) (int, error) {
	if r.closed {
		return 0, session.ErrHandleClosed
	}
	if r.res == nil {
		return 0, session.ErrNoResponse
	}

	if err := r.fill(); err != nil {
		return 0, err
	}

	n := copy(p, r.staged)
	r.staged = r.staged[n:]
	return n, nil
}

func (r *Request) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.res, r.pending, r.staged = nil, nil, nil
	r.dropConn()
	return nil
}

// fill stages the next piece of body unless some is still staged.
func (r *Request) fill() error {
	res := r.res
	if len(r.staged) > 0 || res.done {
		return nil
	}

	if r.buf == nil {
		r.buf = make([]byte, r.opts.ReadBufferSize)
	}

	r.setReadDeadline()
	for {
		n, err := res.body.Read(r.buf)
		r.staged = r.buf[:n]

		if err != nil && res.body.Framing == transfer.FramingClose && errors.Is(err, transport.ErrConnClosed) {
			err = io.EOF
		}

		switch {
		case err == io.EOF:
			r.finishBody()
			return nil
		case err != nil:
			res.done = true
			r.dropConn()
			return errors.Wrap(err, "reading body")
		case n > 0:
			return nil
		}
	}
}

func (r *Request) finishBody() {
	r.res.done = true
	if r.res.closeConn {
		r.dropConn()
	}
}

// discardResponse leaves the connection ready for the next exchange.
func (r *Request) discardResponse() {
	if r.pending != nil {
		r.pending = nil
		r.dropConn()
	}

	res := r.res
	r.res, r.staged = nil, nil
	if res == nil || res.done {
		return
	}

	if res.closeConn {
		r.dropConn()
		return
	}

	if err := res.body.Drain(); err != nil {
		r.logger.Debug("dropping connection", slog.String("error", err.Error()))
		r.dropConn()
	}
}

func (r *Request) connect() error {
	addr := r.route.dialAddr()

	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	defer cancel()

	tc, err := r.dialer.Dial(ctx, addr)
	if err != nil {
		return errors.Wrapf(err, "dialing %s", addr)
	}
	r.setConn(tc)
	r.reused = false

	r.logger.Debug("connection established",
		slog.String("addr", addr.String()),
		slog.Bool("proxy", r.route.proxy != nil),
		slog.Bool("secure", r.route.secure),
	)

	if r.route.tunneled() {
		res, err := r.openTunnel()
		if err != nil {
			r.dropConn()
			return errors.Wrap(err, "opening tunnel")
		}
		if res != nil {
			r.pending = res
			return nil
		}
	}

	if r.route.secure {
		if err := r.handshake(ctx); err != nil {
			r.dropConn()
			return errors.Wrap(err, "tls handshake")
		}
	}

	return nil
}

// openTunnel returns the proxy reply when it did not accept the tunnel.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-9.3.6
func (r *Request) openTunnel() (*response, error) {
	authority := r.route.target.String()

	fields := []http.Field{http.NewField("Host", authority)}
	if r.userAgent != "" {
		fields = append(fields, http.NewField("User-Agent", r.userAgent))
	}

	proxyAuth, err := r.authorization(session.TargetProxy, "CONNECT", authority, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building proxy authorization")
	}
	if proxyAuth != "" {
		fields = append(fields, http.NewField("Proxy-Authorization", proxyAuth))
	}

	msg := http.Request{
		RequestLine: http.RequestLine{Method: "CONNECT", Target: authority, Version: http.HTTP11},
		Headers:     fields,
	}

	r.setWriteDeadline()
	if err := r.enc.Encode(msg); err != nil {
		return nil, errors.Wrap(err, "writing connect request")
	}

	res, err := r.readResponse("CONNECT")
	if err != nil {
		return nil, err
	}

	if status.IsSuccess(res.statusLine.StatusCode) {
		r.logger.Debug("tunnel established", slog.String("target", authority))
		return nil, nil
	}

	res.closeConn = true
	return res, nil
}

func (r *Request) handshake(ctx context.Context) error {
	cfg := &tls.Config{}
	if r.opts.TLSConfig != nil {
		cfg = r.opts.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = r.route.target.Host
	}

	tlsConn := tls.Client(transport.NetConn(r.tc), cfg)
	r.setReadDeadline()
	r.setWriteDeadline()
	defer r.clearDeadlines()

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return err
	}

	r.setConn(transport.FromNetConn(tlsConn))
	return nil
}

func (r *Request) readResponse(method string) (*response, error) {
	r.setReadDeadline()

	var msg http.Response
	for {
		if err := r.dec.Decode(&msg); err != nil {
			return nil, errors.Wrap(err, "decoding response")
		}

		// Interim responses are skipped. 101 is final.
		if !status.IsInformational(msg.StatusCode) || msg.StatusCode == status.SwitchingProtocols.Code {
			break
		}
	}

	body, err := transfer.ResponseBody(r.br, method, msg.StatusCode, msg.Headers)
	if err != nil {
		return nil, errors.Wrap(err, "delimiting body")
	}

	res := &response{
		statusLine: msg.StatusLine,
		headers:    msg.Headers,
		raw:        http.RawHeaderBlock(msg.StatusLine, msg.Headers),
		body:       body,
		closeConn:  !body.Reusable() || closesConnection(msg),
	}

	r.storeChallenges(res)

	return res, nil
}

// closesConnection reports whether the server ends the connection after msg.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-9.3
func closesConnection(msg http.Response) bool {
	keepAlive := msg.Version[0] > 1 || (msg.Version[0] == 1 && msg.Version[1] >= 1)
	for _, value := range http.FieldValues(msg.Headers, "Connection") {
		for _, opt := range strings.Split(value, ",") {
			switch strings.ToLower(strings.TrimSpace(opt)) {
			case "close":
				return true
			case "keep-alive":
				keepAlive = true
			}
		}
	}
	return !keepAlive
}

func (r *Request) connFailure(err error, doing string) error {
	reused := r.reused
	r.dropConn()

	if reused && !r.resendAsked {
		r.resendAsked = true
		r.logger.Debug("reused connection failed", slog.String("doing", doing), slog.String("error", err.Error()))
		return session.ErrResendRequest
	}

	return errors.Wrap(err, doing)
}

func (r *Request) setConn(tc transport.Conn) {
	r.tc = tc
	r.dec = http.NewResponseDecoder(tc, r.opts.Decode)
	r.br = r.dec.Reader()
	r.enc = http.NewRequestEncoder(tc, r.opts.Encode)
}

func (r *Request) dropConn() {
	if r.tc != nil {
		_ = r.tc.Close()
	}
	r.tc, r.br, r.dec, r.enc = nil, nil, nil, nil
	r.reused = false
}

func (r *Request) setReadDeadline() {
	if r.timeout > 0 && r.tc != nil {
		r.tc.SetReadDeadLine(r.clock.Now().Add(r.timeout))
	}
}

func (r *Request) setWriteDeadline() {
	if r.timeout > 0 && r.tc != nil {
		r.tc.SetWriteDeadLine(r.clock.Now().Add(r.timeout))
	}
}

func (r *Request) clearDeadlines() {
	if r.timeout > 0 && r.tc != nil {
		r.tc.SetReadDeadLine(time.Time{})
		r.tc.SetWriteDeadLine(time.Time{})
	}
}

func (r *Request) requestTarget() string {
	if r.route.forwarded() && r.path != "*" {
		return r.route.scheme() + "://" + r.route.authority() + r.path
	}
	return r.path
}

// buildHeaders lists generated fields followed by the caller's block.
// A caller field replaces generated fields of the same name.
func (r *Request) buildHeaders(block string, body []byte) ([]http.Field, error) {
	generated := []http.Field{http.NewField("Host", r.route.authority())}

	if r.userAgent != "" {
		generated = append(generated, http.NewField("User-Agent", r.userAgent))
	}

	if len(body) > 0 || r.verb == "POST" || r.verb == "PUT" {
		generated = append(generated, http.NewField("Content-Length", strconv.Itoa(len(body))))
	}

	if r.flags.Has(session.FlagRefresh) {
		generated = append(generated,
			http.NewField("Cache-Control", "no-cache"),
			http.NewField("Pragma", "no-cache"),
		)
	}

	uri := r.requestTarget()
	auth, err := r.authorization(session.TargetServer, r.verb, uri, body)
	if err != nil {
		return nil, errors.Wrap(err, "building authorization")
	}
	if auth != "" {
		generated = append(generated, http.NewField("Authorization", auth))
	}

	if r.route.forwarded() {
		proxyAuth, err := r.authorization(session.TargetProxy, r.verb, uri, body)
		if err != nil {
			return nil, errors.Wrap(err, "building proxy authorization")
		}
		if proxyAuth != "" {
			generated = append(generated, http.NewField("Proxy-Authorization", proxyAuth))
		}
	}

	callers := http.ParseFieldBlock(block)

	fields := make([]http.Field, 0, len(generated)+len(callers))
	for _, f := range generated {
		if _, overridden := http.FieldValue(callers, string(f.Name)); !overridden {
			fields = append(fields, f)
		}
	}

	return append(fields, callers...), nil
}
