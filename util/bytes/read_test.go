package bytesutil

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadUntil(t *testing.T) {
	sample := []byte("Hello, World!")

	testcases := []struct {
		desc     string
		delim    []byte
		limit    int
		expected []byte
		err      error
	}{
		{
			desc:     "delimiter after a partial match",
			delim:    []byte("Wo"),
			expected: []byte("Hello, Wo"),
		},
		{
			desc:     "within limit",
			delim:    []byte("Wo"),
			limit:    9,
			expected: []byte("Hello, Wo"),
		},
		{
			desc:  "over limit",
			delim: []byte("Wo"),
			limit: 5,
			err:   ErrTooLong,
		},
		{
			desc:  "not found",
			delim: []byte("Bye!"),
			err:   io.ErrUnexpectedEOF,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			r := bufio.NewReader(bytes.NewReader(sample))
			b, err := ReadUntil(r, tc.delim, tc.limit)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.expected, b)
		})
	}
}
