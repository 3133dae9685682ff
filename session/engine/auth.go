package engine

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"http-wrapper/application/http"
	"http-wrapper/application/http/semantic/status"
	"http-wrapper/application/util/rule"
	"http-wrapper/session"

	"github.com/pkg/errors"
)

var ErrNoChallenge = errors.New("response carries no auth challenge")

// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-11.1
type challenge struct {
	scheme string
	params map[string]string
}

type credential struct {
	scheme   session.AuthScheme
	username string
	password string
}

func (r *Request) QueryAuthSchemes() (supported, first session.AuthScheme, target session.AuthTarget, err error) {
	if r.res == nil {
		return 0, 0, 0, session.ErrNoResponse
	}

	target, ok := challengeTarget(r.res.statusLine.StatusCode)
	if !ok {
		return 0, 0, 0, ErrNoChallenge
	}

	for _, ch := range r.challenges[target] {
		scheme, ok := session.SchemeFromName(ch.scheme)
		if !ok {
			continue
		}
		if first == 0 {
			first = scheme
		}
		supported |= scheme
	}

	return supported, first, target, nil
}

// SetCredentials keeps credentials for target. Authorization is computed on every send afterwards.
func (r *Request) SetCredentials(target session.AuthTarget, scheme session.AuthScheme, username, password string) error {
	if r.closed {
		return session.ErrHandleClosed
	}

	switch scheme {
	case session.SchemeBasic:
	case session.SchemeDigest:
		if _, ok := r.findChallenge(target, "Digest"); !ok {
			return errors.Wrapf(ErrNoChallenge, "no digest challenge from %s", target)
		}
	default:
		return errors.Wrapf(session.ErrUnsupportedScheme, "scheme %s", scheme)
	}

	r.credentials[target] = &credential{
		scheme:   scheme,
		username: username,
		password: password,
	}

	return nil
}

func challengeTarget(statusCode uint) (session.AuthTarget, bool) {
	switch statusCode {
	case status.Unauthorized.Code:
		return session.TargetServer, true
	case status.ProxyAuthRequired.Code:
		return session.TargetProxy, true
	}
	return 0, false
}

func (r *Request) storeChallenges(res *response) {
	target, ok := challengeTarget(res.statusLine.StatusCode)
	if !ok {
		return
	}

	name := "WWW-Authenticate"
	if target == session.TargetProxy {
		name = "Proxy-Authenticate"
	}

	r.challenges[target] = parseChallenges(http.FieldValues(res.headers, name))
}

func (r *Request) findChallenge(target session.AuthTarget, scheme string) (challenge, bool) {
	for _, ch := range r.challenges[target] {
		if strings.EqualFold(ch.scheme, scheme) {
			return ch, true
		}
	}
	return challenge{}, false
}

// authorization renders the credentials field value for target, empty when none are set.
func (r *Request) authorization(target session.AuthTarget, method, uri string, body []byte) (string, error) {
	cred := r.credentials[target]
	if cred == nil {
		return "", nil
	}

	switch cred.scheme {
	case session.SchemeBasic:
		token := base64.StdEncoding.EncodeToString([]byte(cred.username + ":" + cred.password))
		return "Basic " + token, nil
	case session.SchemeDigest:
		ch, ok := r.findChallenge(target, "Digest")
		if !ok {
			return "", nil
		}

		cnonce, err := r.opts.Nonce()
		if err != nil {
			return "", errors.Wrap(err, "generating cnonce")
		}

		nonce := ch.params["nonce"]
		r.nonceCounts[nonce]++

		d := &digestAuth{
			username:  cred.username,
			password:  cred.password,
			realm:     ch.params["realm"],
			nonce:     nonce,
			opaque:    ch.params["opaque"],
			algorithm: ch.params["algorithm"],
			qop:       chooseQop(ch.params["qop"]),
			uri:       uri,
			method:    method,
			body:      body,
			nc:        fmt.Sprintf("%08x", r.nonceCounts[nonce]),
			cnonce:    cnonce,
		}
		return d.header()
	}

	return "", errors.Wrapf(session.ErrUnsupportedScheme, "scheme %s", cred.scheme)
}

// parseChallenges reads a challenge list. A challenge starts with a scheme
// token and goes on with comma separated auth-params or a token68.
func parseChallenges(values []string) []challenge {
	challenges := make([]challenge, 0)
	for _, value := range values {
		for _, item := range splitQuoted(value, ',') {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}

			head, rest, _ := strings.Cut(item, " ")
			rest = strings.TrimSpace(rest)
			if !strings.Contains(head, "=") && !strings.HasPrefix(rest, "=") {
				challenges = append(challenges, challenge{scheme: head, params: make(map[string]string)})
				if rest == "" {
					continue
				}
				item = rest
			}

			if len(challenges) == 0 {
				continue
			}

			current := challenges[len(challenges)-1]
			k, v, found := strings.Cut(item, "=")
			if !found || strings.Trim(v, "=") == "" || !rule.IsValidToken(strings.TrimSpace(k)) {
				current.params[""] = item // token68
				continue
			}
			v = strings.TrimSpace(v)
			current.params[strings.ToLower(strings.TrimSpace(k))] = string(rule.Unquote([]byte(v)))
		}
	}
	return challenges
}

// splitQuoted splits s on sep outside of quoted strings.
func splitQuoted(s string, sep byte) []string {
	parts := make([]string, 0)
	quoted, escaped := false, false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case quoted && c == '\\':
			escaped = true
		case c == '"':
			quoted = !quoted
		case c == sep && !quoted:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func chooseQop(offered string) string {
	if offered == "" {
		return ""
	}

	hasInt := false
	for _, q := range strings.Split(offered, ",") {
		switch strings.TrimSpace(q) {
		case "auth":
			return "auth"
		case "auth-int":
			hasInt = true
		}
	}
	if hasInt {
		return "auth-int"
	}
	return ""
}

// Reference: https://datatracker.ietf.org/doc/html/rfc7616#section-3.4
type digestAuth struct {
	username, password string

	realm, nonce, opaque string
	algorithm, qop       string

	uri, method string
	body        []byte

	nc, cnonce string
}

func (d *digestAuth) newHash() (func() hash.Hash, bool, error) {
	alg := strings.ToUpper(d.algorithm)
	sess := strings.HasSuffix(alg, "-SESS")
	alg = strings.TrimSuffix(alg, "-SESS")

	switch alg {
	case "", "MD5":
		return md5.New, sess, nil
	case "SHA-256":
		return sha256.New, sess, nil
	}
	return nil, false, errors.Wrapf(session.ErrUnsupportedScheme, "digest algorithm %q", d.algorithm)
}

func (d *digestAuth) response() (string, error) {
	newHash, sess, err := d.newHash()
	if err != nil {
		return "", err
	}

	h := func(s string) string {
		hh := newHash()
		hh.Write([]byte(s))
		return hex.EncodeToString(hh.Sum(nil))
	}

	ha1 := h(d.username + ":" + d.realm + ":" + d.password)
	if sess {
		ha1 = h(ha1 + ":" + d.nonce + ":" + d.cnonce)
	}

	a2 := d.method + ":" + d.uri
	if d.qop == "auth-int" {
		hb := newHash()
		hb.Write(d.body)
		a2 += ":" + hex.EncodeToString(hb.Sum(nil))
	}
	ha2 := h(a2)

	if d.qop == "" {
		return h(ha1 + ":" + d.nonce + ":" + ha2), nil
	}
	return h(strings.Join([]string{ha1, d.nonce, d.nc, d.cnonce, d.qop, ha2}, ":")), nil
}

func (d *digestAuth) header() (string, error) {
	response, err := d.response()
	if err != nil {
		return "", err
	}

	parts := []string{
		"username=" + quote(d.username),
		"realm=" + quote(d.realm),
		"nonce=" + quote(d.nonce),
		"uri=" + quote(d.uri),
		"response=" + quote(response),
	}

	if d.algorithm != "" {
		parts = append(parts, "algorithm="+d.algorithm)
	}

	if d.qop != "" {
		parts = append(parts,
			"qop="+d.qop,
			"nc="+d.nc,
			"cnonce="+quote(d.cnonce),
		)
	}

	if d.opaque != "" {
		parts = append(parts, "opaque="+quote(d.opaque))
	}

	return "Digest " + strings.Join(parts, ", "), nil
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}
