package client

import "http-wrapper/session"

// ChooseAuthScheme picks the strongest scheme in supported:
// Negotiate, NTLM, Passport, Digest, then Basic. Zero when none is offered.
func ChooseAuthScheme(supported session.AuthScheme) session.AuthScheme {
	for _, scheme := range []session.AuthScheme{
		session.SchemeNegotiate,
		session.SchemeNTLM,
		session.SchemePassport,
		session.SchemeDigest,
		session.SchemeBasic,
	} {
		if supported.Has(scheme) {
			return scheme
		}
	}
	return 0
}
