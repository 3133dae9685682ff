package iolib

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
)

type zeroWriter struct{}

func (zeroWriter) Write([]byte) (int, error) { return 0, nil }

func TestWriteFull(t *testing.T) {
	data := []byte("Hello, World!")
	var buf bytes.Buffer

	written, err := WriteFull(&buf, data)
	assert.NoError(t, err)
	assert.Equal(t, len(data), written)
	assert.Equal(t, data, buf.Bytes())

	written, err = WriteFull(zeroWriter{}, data)
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.Equal(t, 0, written)
}

func TestNopWriteCloser(t *testing.T) {
	var buf bytes.Buffer
	wc := NopWriteCloser(&buf)

	_, err := wc.Write([]byte("x"))
	assert.NoError(t, err)
	assert.NoError(t, wc.Close())
	assert.Equal(t, "x", buf.String())
}

func TestExactReader(t *testing.T) {
	testcases := []struct {
		desc     string
		input    string
		n        int64
		expected string
		err      error
	}{
		{desc: "longer source", input: "Hello, World!", n: 5, expected: "Hello"},
		{desc: "exact source", input: "Hello", n: 5, expected: "Hello"},
		{desc: "short source", input: "Hel", n: 5, expected: "Hel", err: io.ErrUnexpectedEOF},
		{desc: "zero", input: "Hello", n: 0, expected: ""},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			er := NewExactReader(iotest.OneByteReader(bytes.NewReader([]byte(tc.input))), tc.n)

			b, err := io.ReadAll(er)
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, tc.expected, string(b))
		})
	}
}
