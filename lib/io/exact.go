package iolib

import "io"

// ExactReader reads exactly N bytes from R.
// R ending before N bytes is reported as [io.ErrUnexpectedEOF].
type ExactReader struct {
	R io.Reader
	N int64 // bytes remaining
}

func NewExactReader(r io.Reader, n int64) *ExactReader { return &ExactReader{R: r, N: n} }

func (er *ExactReader) Read(p []byte) (int, error) {
	if er.N <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > er.N {
		p = p[:er.N]
	}

	n, err := er.R.Read(p)
	er.N -= int64(n)
	if err == io.EOF && er.N > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}
