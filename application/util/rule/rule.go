// Package rule holds the lexical rules shared by HTTP message parsing.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.6
package rule

const (
	CR   byte = '\r'
	LF   byte = '\n'
	SP   byte = ' '
	HTAB byte = '\t'
	VT   byte = 0x0B
	FF   byte = 0x0C
)

var (
	OWS  = []byte{SP, HTAB}
	CRLF = []byte{CR, LF}

	// Whitespaces are the octets a lenient parser folds into SP.
	Whitespaces = []byte{SP, HTAB, VT, FF, CR}
)

type class uint8

const (
	classWhite class = 1 << iota
	classTchar
)

var classes [128]class

func init() {
	for c := 'a'; c <= 'z'; c++ {
		classes[c] |= classTchar
		classes[c-'a'+'A'] |= classTchar
	}
	for c := '0'; c <= '9'; c++ {
		classes[c] |= classTchar
	}
	for _, c := range Whitespaces {
		classes[c] |= classWhite
	}
	for _, c := range "!#$%&'*+-.^_`|~" {
		classes[c] |= classTchar
	}
}

func is(r rune, cl class) bool {
	return r >= 0 && int(r) < len(classes) && classes[r]&cl != 0
}

func IsWhitespace(r rune) bool { return is(r, classWhite) }
