package semantic

import "strings"

// textTypes are media types delivered as text even though some lack the text/ prefix.
var textTypes = map[string]struct{}{
	"text/html":                        {},
	"text/css":                         {},
	"text/xml":                         {},
	"text/plain":                       {},
	"text/mathml":                      {},
	"text/vnd.sun.j2me.app-descriptor": {},
	"text/vnd.wap.wml":                 {},
	"text/x-component":                 {},
	"application/javascript":           {},
	"application/atom+xml":             {},
	"application/rss+xml":              {},
	"application/json":                 {},
	"application/rtf":                  {},
	"application/x-perl":               {},
	"application/xhtml+xml":            {},
	"application/xspf+xml":             {},
	"image/svg+xml":                    {},
}

// MediaType strips parameters from a Content-Type value, trims and lowercases it.
func MediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.Trim(mt, " \t\r\n"))
}

// IsBinaryMimeType reports whether a body of contentType should be kept as bytes.
// An empty or blank content type is text.
func IsBinaryMimeType(contentType string) bool {
	mt := MediaType(contentType)
	if mt == "" {
		return false
	}

	if strings.HasPrefix(mt, "text/") {
		return false
	}

	_, ok := textTypes[mt]
	return !ok
}
