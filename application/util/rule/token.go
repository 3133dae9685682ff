package rule

import (
	"bytes"
)

// IsTokenChar reports whether r is a tchar.
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.6.2-2
func IsTokenChar(r rune) bool { return is(r, classTchar) }

func IsValidToken(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		if !IsTokenChar(c) {
			return false
		}
	}

	return true
}

// Unquote unquotes token if it was quoted with double quotes.
// If quoted string includes escaped character, it will be un-escaped.
func Unquote(token []byte) []byte {
	if len(token) < 2 || token[0] != '"' || token[len(token)-1] != '"' {
		return bytes.Clone(token)
	}
	token = token[1 : len(token)-1]

	buf := bytes.NewBuffer(make([]byte, 0, len(token)))
	for idx := 0; idx < len(token); idx++ {
		c := token[idx]
		if c == '\\' && idx+1 < len(token) {
			// quoted-pair: keep the escaped octet.
			idx++
			c = token[idx]
		}
		buf.WriteByte(c)
	}

	return buf.Bytes()
}
