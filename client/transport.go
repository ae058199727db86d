package client

import (
	"net/http"
)

// DefaultSessionHeader is the header the server reads a session token from
// when no cookie is sent.
const DefaultSessionHeader = "X-Session-Token"

// SessionTransport wraps an http.RoundTripper to send a fixed session token
type SessionTransport struct {
	Base  http.RoundTripper
	Token string

	// Defaults to DefaultSessionHeader
	HeaderName string
}

// RoundTrip implements http.RoundTripper
func (t *SessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Token != "" {
		req = req.Clone(req.Context())
		header := t.HeaderName
		if header == "" {
			header = DefaultSessionHeader
		}
		req.Header.Set(header, t.Token)
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// NewSessionTransport creates a SessionTransport over http.DefaultTransport
func NewSessionTransport(token string) *SessionTransport {
	return &SessionTransport{Base: http.DefaultTransport, Token: token}
}

// storedSessionTransport reads the token from the client's store on every
// request.
type storedSessionTransport struct {
	client *SessionClient
	base   http.RoundTripper
}

func (t *storedSessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.client.SessionToken()
	if err != nil {
		return nil, err
	}

	req = req.Clone(req.Context())
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set(DefaultSessionHeader, token)
	}
	return t.base.RoundTrip(req)
}
