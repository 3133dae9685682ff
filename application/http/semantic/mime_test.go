package semantic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBinaryMimeType(t *testing.T) {
	testcases := []struct {
		input    string
		expected bool
	}{
		{input: "Text/HTML; charset=utf-8", expected: false},
		{input: "application/octet-stream", expected: true},
		{input: "", expected: false},
		{input: "   ", expected: false},
		{input: "application/json", expected: false},
		{input: " Application/JSON ;charset=utf-8", expected: false},
		{input: "image/png", expected: true},
		{input: "image/svg+xml", expected: false},
		{input: "text/csv", expected: false},
		{input: "application/xml", expected: true},
		{input: "application/pdf", expected: true},
	}

	for _, tc := range testcases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsBinaryMimeType(tc.input))
		})
	}
}

func TestMediaType(t *testing.T) {
	assert.Equal(t, "text/html", MediaType("Text/HTML; charset=utf-8"))
	assert.Equal(t, "application/json", MediaType("\tapplication/json\r\n"))
	assert.Equal(t, "", MediaType(""))
}
