package bytesutil

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

var ErrTooLong = errors.New("delimiter not found within limit")

// ReadUntil reads from r until delim. The output will include delim.
// A positive limit bounds the output length; reading stops at the first
// byte past it.
func ReadUntil(r *bufio.Reader, delim []byte, limit int) ([]byte, error) {
	var buf []byte
	last := delim[len(delim)-1]

	for {
		b, err := r.ReadSlice(last)
		buf = append(buf, b...)
		if limit > 0 && len(buf) > limit {
			return nil, ErrTooLong
		}

		switch {
		case err == nil:
			if bytes.HasSuffix(buf, delim) {
				return buf, nil
			}
		case err == bufio.ErrBufferFull:
		case err == io.EOF:
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, err
		}
	}
}
