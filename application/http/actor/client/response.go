package client

import (
	"http-wrapper/application/http/semantic"

	"github.com/pkg/errors"
)

// Response is filled by one request run. Text is valid unless IsBinary,
// Binary only when IsBinary.
type Response struct {
	Text   string
	Binary []byte

	// Header is the raw header block as the transport reported it.
	Header     string
	StatusCode int

	// ContentLength sums every available count reported while reading.
	ContentLength int

	// Error holds "; " separated failure messages, empty when none.
	Error string

	IsBinary bool

	dict map[string]string
}

func (r *Response) Reset() {
	*r = Response{}
}

// HeaderDictionary parses Header on first use and caches the result.
func (r *Response) HeaderDictionary() map[string]string {
	if r.dict == nil {
		r.dict = semantic.ParseHeaderDictionary(r.Header)
	}
	return r.dict
}

func (r *Response) ContentType() string {
	return semantic.ContentType(r.HeaderDictionary())
}

// Err returns Error as an error, nil when it is empty.
func (r *Response) Err() error {
	if r.Error == "" {
		return nil
	}
	return errors.New(r.Error)
}

func (r *Response) addError(op string, err error) {
	if r.Error != "" {
		r.Error += "; "
	}
	r.Error += op + ": " + err.Error()
}
