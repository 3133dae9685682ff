package client

import (
	"strings"
	"time"
)

const (
	DefaultUserAgent = "WinHttpClient"
	DefaultProxyPort = "8080"
)

type Config struct {
	Domain    string
	Port      uint16
	Secure    bool
	UserAgent string

	// ProxyURL is "host:port". Empty means the default proxy.
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string

	// Server credentials answer 401 challenges only.
	ServerUsername string
	ServerPassword string

	// Timeout bounds each blocking transport step. Zero means no limit.
	Timeout time.Duration
}

// NormalizeProxy turns "[scheme://][user[:pass]@]host[:port]" into host:port
// and credentials. A missing port becomes DefaultProxyPort.
func NormalizeProxy(url string) (hostPort, username, password string) {
	if url == "" {
		return "", "", ""
	}

	switch {
	case strings.HasPrefix(url, "http://"):
		url = url[len("http://"):]
	case strings.HasPrefix(url, "https://"):
		url = url[len("https://"):]
	}

	if userinfo, rest, found := strings.Cut(url, "@"); found {
		url = rest
		username, password, _ = strings.Cut(userinfo, ":")
	}

	if !strings.Contains(url, ":") {
		url += ":" + DefaultProxyPort
	}

	return url, username, password
}
