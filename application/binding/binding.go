// Package binding is the flat call surface for hosts that can not hold a
// client: one call in, one plain result out.
package binding

import (
	"log/slog"
	"time"

	"http-wrapper/application/http/actor/client"
	"http-wrapper/session"

	"github.com/benbjohnson/clock"
)

const ErrInvalidMethod = "Invalid method"

type Args struct {
	Domain string `json:"domain" yaml:"domain"`
	Port   uint16 `json:"port" yaml:"port"`
	HTTPS  bool   `json:"https" yaml:"https"`
	Path   string `json:"path" yaml:"path"`

	// Method is 0 GET, 1 POST, 2 PUT or 3 DELETE.
	Method int `json:"method" yaml:"method"`

	Body    string `json:"body" yaml:"body"`
	Headers string `json:"headers" yaml:"headers"`

	// Proxy is passed to [client.Client.SetProxy].
	Proxy string `json:"proxy" yaml:"proxy"`
	// Timeout is in milliseconds. Zero means no limit.
	Timeout int `json:"timeout" yaml:"timeout"`
}

// Result mirrors [client.Response]. Absent values are nil.
type Result struct {
	Headers       *string `json:"headers" yaml:"headers"`
	Content       *string `json:"content" yaml:"content"`
	ContentLength int     `json:"contentLength" yaml:"contentLength"`
	Status        int     `json:"status" yaml:"status"`
	Error         *string `json:"error" yaml:"error"`

	// BinaryContent is set only for binary bodies.
	BinaryContent []byte `json:"binaryContent,omitempty" yaml:"binaryContent,omitempty"`
}

// SendHTTPRequest runs one request described by args. An invalid method
// is rejected before the provider is touched.
func SendHTTPRequest(provider session.Provider, logger *slog.Logger, clock clock.Clock, opts client.Options, args Args) Result {
	verb, ok := client.VerbFromIndex(args.Method)
	if !ok {
		msg := ErrInvalidMethod
		return Result{Status: 0, Error: &msg}
	}

	cfg := client.Config{
		Domain:  args.Domain,
		Port:    args.Port,
		Secure:  args.HTTPS,
		Timeout: time.Duration(args.Timeout) * time.Millisecond,
	}

	c := client.New(provider, logger, clock, cfg, opts)
	c.SetProxy(args.Proxy)

	var body []byte
	if verb != client.MethodGet {
		body = []byte(args.Body)
	}

	var res client.Response
	c.Request(verb, args.Path, args.Headers, body, &res)

	result := toResult(&res)
	res.Reset()

	return result
}

func toResult(res *client.Response) Result {
	result := Result{
		ContentLength: res.ContentLength,
		Status:        res.StatusCode,
	}

	if res.Header != "" {
		header := res.Header
		result.Headers = &header
	}
	if res.Error != "" {
		msg := res.Error
		result.Error = &msg
	}

	if res.IsBinary {
		result.BinaryContent = res.Binary
		if result.BinaryContent == nil {
			result.BinaryContent = []byte{}
		}
	} else {
		text := res.Text
		result.Content = &text
	}

	return result
}
