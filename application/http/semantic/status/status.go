// Package status names response codes and the classes they fall into.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15
package status

type Status struct {
	Code         uint
	ReasonPhrase string
}

var (
	Continue           = Status{100, "Continue"}
	SwitchingProtocols = Status{101, "Switching Protocols"}

	OK        = Status{200, "OK"}
	NoContent = Status{204, "No Content"}

	NotModified = Status{304, "Not Modified"}

	Unauthorized      = Status{401, "Unauthorized"}
	Forbidden         = Status{403, "Forbidden"}
	NotFound          = Status{404, "Not Found"}
	ProxyAuthRequired = Status{407, "Proxy Authentication Required"}

	InternalServerError = Status{500, "Internal Server Error"}
)

var reasons = map[uint]string{
	100: "Continue",
	101: "Switching Protocols",
	200: "OK",
	201: "Created",
	202: "Accepted",
	203: "Non-Authoritative Information",
	204: "No Content",
	205: "Reset Content",
	206: "Partial Content",
	300: "Multiple Choices",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	304: "Not Modified",
	305: "Use Proxy",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
	400: "Bad Request",
	401: "Unauthorized",
	402: "Payment Required",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	406: "Not Acceptable",
	407: "Proxy Authentication Required",
	408: "Request Timeout",
	409: "Conflict",
	410: "Gone",
	411: "Length Required",
	412: "Precondition Failed",
	413: "Content Too Large",
	414: "URI Too Long",
	415: "Unsupported Media Type",
	416: "Range Not Satisfiable",
	417: "Expectation Failed",
	421: "Misdirected Request",
	422: "Unprocessable Content",
	426: "Upgrade Required",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
	505: "HTTP Version Not Supported",
}

// Text returns the reason phrase registered for code, or "".
func Text(code uint) string { return reasons[code] }

func IsInformational(code uint) bool { return code >= 100 && code < 200 }
func IsSuccess(code uint) bool       { return code >= 200 && code < 300 }

// HasNoContent reports whether a response with code never carries a body.
func HasNoContent(code uint) bool {
	return IsInformational(code) || code == NoContent.Code || code == NotModified.Code
}

// IsChallenge reports whether code asks the client to authenticate.
func IsChallenge(code uint) bool {
	return code == Unauthorized.Code || code == ProxyAuthRequired.Code
}

// Class returns "1xx" through "5xx", or "other" outside that range.
func Class(code uint) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return string(rune('0'+code/100)) + "xx"
}
