package transfer

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"http-wrapper/application/http"
	"http-wrapper/application/http/semantic/status"
	iolib "http-wrapper/lib/io"

	"github.com/pkg/errors"
)

type Coding string

const (
	CodingChunked  Coding = "chunked"
	CodingIdentity Coding = "identity"
)

type Coder interface {
	Coding() Coding
	NewReader(r io.Reader) io.Reader
	NewWriter(w io.WriteCloser) io.WriteCloser
}

type CodingPipeliner struct{ coders map[Coding]Coder }

func NewCodingPipeliner(customs []Coder) *CodingPipeliner {
	cp := &CodingPipeliner{}
	cp.coders = map[Coding]Coder{
		CodingChunked: NewChunkedCoder(),
	}

	for _, coder := range customs {
		cp.coders[coder.Coding()] = coder
	}

	return cp
}

var ErrUnsupportedCoding = errors.New("coding is unsupported")

// Decode applies codings in reverse order of application.
func (cp *CodingPipeliner) Decode(r io.Reader, codings []Coding, onTrailer func(f []http.Field)) (io.Reader, error) {
	for idx := len(codings) - 1; idx >= 0; idx-- {
		coding := codings[idx]
		if coding == CodingIdentity {
			continue
		}

		coder, ok := cp.coders[coding]
		if !ok {
			return nil, ErrUnsupportedCoding
		}

		r = coder.NewReader(r)
		if cr, ok := r.(*ChunkedReader); ok && onTrailer != nil {
			cr.SetOnTrailerReceived(func(f []http.Field) {
				if len(f) == 0 {
					return
				}
				onTrailer(f)
			})
		}
	}

	return r, nil
}

func (cp *CodingPipeliner) Encode(w io.WriteCloser, codings []Coding, sendTrailers func() []http.Field) (io.WriteCloser, error) {
	for idx := len(codings) - 1; idx >= 0; idx-- {
		coding := codings[idx]
		if coding == CodingIdentity {
			continue
		}

		coder, ok := cp.coders[coding]
		if !ok {
			return nil, ErrUnsupportedCoding
		}

		w = coder.NewWriter(w)
		if cw, ok := w.(*ChunkedWriter); ok && sendTrailers != nil {
			cw.SetSendTrailers(sendTrailers)
		}
	}

	return w, nil
}

// ParseCodings splits Transfer-Encoding field values into codings.
// Coding names are case-insensitive.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.1
func ParseCodings(values []string) []Coding {
	codings := make([]Coding, 0)
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			// Drop transfer parameters.
			name, _, _ := strings.Cut(part, ";")
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			codings = append(codings, Coding(name))
		}
	}
	return codings
}

// Framing tells how the end of a message body is found.
type Framing int

const (
	FramingNone Framing = iota
	FramingChunked
	FramingLength
	FramingClose
)

func (f Framing) String() string {
	switch f {
	case FramingNone:
		return "none"
	case FramingChunked:
		return "chunked"
	case FramingLength:
		return "length"
	case FramingClose:
		return "close"
	}
	return "unknown"
}

var ErrInvalidContentLength = errors.New("content length is invalid")

// Body is a delimited response body.
type Body struct {
	io.Reader
	Framing Framing

	// Length is the declared length for [FramingLength], otherwise -1.
	Length int64

	br *bufio.Reader
	cr *ChunkedReader
	lr *iolib.ExactReader
}

// Buffered returns the number of body bytes that can be read without blocking.
func (b *Body) Buffered() int {
	switch b.Framing {
	case FramingChunked:
		return b.cr.Buffered()
	case FramingLength:
		n := b.br.Buffered()
		if int64(n) > b.lr.N {
			n = int(b.lr.N)
		}
		return n
	case FramingClose:
		return b.br.Buffered()
	}
	return 0
}

// Reusable reports whether the connection can carry another message once the body is drained.
func (b *Body) Reusable() bool { return b.Framing != FramingClose }

// Drain discards the unread rest of the body.
func (b *Body) Drain() error {
	if _, err := io.Copy(io.Discard, b.Reader); err != nil {
		return errors.Wrap(err, "discarding body")
	}
	return nil
}

// ResponseBody delimits the response body on br.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.3
func ResponseBody(br *bufio.Reader, method string, statusCode uint, headers []http.Field) (*Body, error) {
	none := &Body{Reader: http.NoBody, Framing: FramingNone, Length: 0, br: br}

	if method == "HEAD" || status.HasNoContent(statusCode) {
		return none, nil
	}

	if method == "CONNECT" && status.IsSuccess(statusCode) {
		return none, nil
	}

	if codings := ParseCodings(http.FieldValues(headers, "Transfer-Encoding")); len(codings) > 0 {
		if codings[len(codings)-1] != CodingChunked {
			// Length is determined by closing the connection.
			return &Body{Reader: br, Framing: FramingClose, Length: -1, br: br}, nil
		}

		r, err := NewCodingPipeliner(nil).Decode(br, codings, nil)
		if err != nil {
			return nil, errors.Wrap(err, "decoding transfer codings")
		}

		cr, _ := r.(*ChunkedReader)
		if cr == nil || len(codings) > 1 {
			return nil, ErrUnsupportedCoding
		}

		return &Body{Reader: cr, Framing: FramingChunked, Length: -1, br: br, cr: cr}, nil
	}

	if values := http.FieldValues(headers, "Content-Length"); len(values) > 0 {
		length, err := parseContentLength(values)
		if err != nil {
			return nil, err
		}

		if length == 0 {
			return none, nil
		}

		lr := iolib.NewExactReader(br, length)
		return &Body{Reader: lr, Framing: FramingLength, Length: length, br: br, lr: lr}, nil
	}

	return &Body{Reader: br, Framing: FramingClose, Length: -1, br: br}, nil
}

// parseContentLength accepts repeated values only when they all agree.
func parseContentLength(values []string) (int64, error) {
	length := int64(-1)
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil || n < 0 {
				return 0, ErrInvalidContentLength
			}
			if length >= 0 && n != length {
				return 0, ErrInvalidContentLength
			}
			length = n
		}
	}
	return length, nil
}
