// Package iolib holds small readers and writers shared by the message codecs.
package iolib

import "io"

type nopWriteCloser struct{ io.Writer }

// NopWriteCloser wraps w with a Close that does nothing.
func NopWriteCloser(w io.Writer) io.WriteCloser { return nopWriteCloser{w} }

func (nopWriteCloser) Close() error { return nil }

// WriteFull writes all of buf, retrying short writes that report no error.
func WriteFull(w io.Writer, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}
