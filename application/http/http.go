package http

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"http-wrapper/application/util/rule"

	"github.com/pkg/errors"
)

type RequestLine struct {
	Method  string
	Target  string
	Version Version
}

type Request struct {
	RequestLine
	Headers []Field

	Body io.Reader
}

type StatusLine struct {
	Version      Version
	StatusCode   uint
	ReasonPhrase string
}

func (sl StatusLine) Text() []byte {
	buf := bytes.NewBuffer(nil)
	buf.Write(sl.Version.Text())
	buf.WriteByte(rule.SP)
	buf.WriteString(strconv.FormatUint(uint64(sl.StatusCode), 10))
	buf.WriteByte(rule.SP)
	buf.WriteString(sl.ReasonPhrase)
	return buf.Bytes()
}

type Response struct {
	StatusLine
	Headers []Field

	Body io.Reader
}

// NoBody is an [io.Reader] with no bytes.
var NoBody io.Reader = noBody{}

type noBody struct{}

func (noBody) Read([]byte) (int, error) { return 0, io.EOF }

// [Major, Minor]
type Version [2]uint

var HTTP11 = Version{1, 1}

// ParseVersion parses http version text(e.g. "HTTP/1.1") into [Version].
func ParseVersion(b []byte) (Version, error) {
	prefix := []byte("HTTP/")
	if !bytes.HasPrefix(b, prefix) {
		return Version{}, errors.Errorf("http version prefix not found: %s", b)
	}

	first, second, found := bytes.Cut(b[len(prefix):], []byte{'.'})
	if !found {
		return Version{}, errors.Errorf("dot seperator not found on version: %s", b)
	}

	major, err1 := strconv.ParseUint(string(first), 10, 64)
	minor, err2 := strconv.ParseUint(string(second), 10, 64)
	if err1 != nil || err2 != nil {
		return Version{}, errors.Errorf("http version is not convertable to int: %s", b)
	}

	return Version{uint(major), uint(minor)}, nil
}

func (ver Version) Text() []byte {
	buf := bytes.NewBuffer(nil)
	buf.WriteString("HTTP/")
	buf.WriteString(strconv.FormatUint(uint64(ver[0]), 10))
	buf.WriteByte('.')
	buf.WriteString(strconv.FormatUint(uint64(ver[1]), 10))
	return buf.Bytes()
}

func (ver Version) String() string { return string(ver.Text()) }

type Field struct{ Name, Value []byte }

func NewField(name, value string) Field {
	return Field{Name: []byte(name), Value: []byte(value)}
}

func ParseField(fieldLine []byte) (Field, error) {
	name, value, found := bytes.Cut(fieldLine, []byte{':'})
	if !found {
		return Field{}, errors.Errorf("colon seperator not found on header: %q", string(fieldLine))
	}

	if len(name) == 0 {
		return Field{}, errors.New("field name is empty")
	}

	// No whitespace is allowed between field name and colon.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-5.1-2
	if rule.IsWhitespace(rune(name[len(name)-1])) {
		return Field{}, errors.New("field name has trailing whitespace")
	}

	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-5.1-3
	value = bytes.Trim(value, string(rule.OWS))

	return Field{Name: name, Value: value}, nil
}

func (f *Field) Text() []byte {
	buf := bytes.NewBuffer(nil)
	buf.Write(f.Name)
	buf.WriteString(": ")
	buf.Write(f.Value)
	return buf.Bytes()
}

// Is reports whether the field name equals name, ignoring ASCII case.
func (f *Field) Is(name string) bool {
	return strings.EqualFold(string(f.Name), name)
}

// ParseFieldBlock splits a raw "Name: Value\r\n" block into fields.
// Both CRLF and sole LF terminate a line. Empty and malformed lines are skipped.
func ParseFieldBlock(block string) []Field {
	fields := make([]Field, 0)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if len(line) == 0 {
			continue
		}

		field, err := ParseField([]byte(line))
		if err != nil {
			continue
		}
		fields = append(fields, field)
	}
	return fields
}

// FieldValue returns the value of the last field named name.
func FieldValue(fields []Field, name string) (string, bool) {
	for idx := len(fields) - 1; idx >= 0; idx-- {
		if fields[idx].Is(name) {
			return string(fields[idx].Value), true
		}
	}
	return "", false
}

// FieldValues returns every value of the fields named name, in order.
func FieldValues(fields []Field, name string) []string {
	values := make([]string, 0)
	for _, f := range fields {
		if f.Is(name) {
			values = append(values, string(f.Value))
		}
	}
	return values
}

// RawHeaderBlock renders status line and fields, each terminated by CRLF,
// followed by the empty line that ends the header section.
func RawHeaderBlock(sl StatusLine, fields []Field) string {
	buf := bytes.NewBuffer(nil)
	buf.Write(sl.Text())
	buf.Write(rule.CRLF)
	for _, f := range fields {
		buf.Write(f.Text())
		buf.Write(rule.CRLF)
	}
	buf.Write(rule.CRLF)
	return buf.String()
}
