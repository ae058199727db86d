package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// DefaultCookieName is the cookie the server announces the session lifetime in
const DefaultCookieName = "secrets_session"

// ErrNotLoggedIn is returned by calls that need a session when none is stored
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is an error answered by the server
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"error"`
	Field      string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed: %s (HTTP %d)", e.Message, e.StatusCode)
}

// Identity is what the server reports about the logged in identity
type Identity struct {
	ID          string    `json:"id"`
	Username    string    `json:"username,omitempty"`
	FederatedID string    `json:"federated_id,omitempty"`
	Secret      *string   `json:"secret,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Secret is one entry of the public listing
type Secret struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

// SessionClient is an HTTP client that logs in to a secrets server and sends
// the stored session token with every request
type SessionClient struct {
	mu            sync.Mutex
	serverURL     string
	store         CredentialStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
	cookieName    string
}

// ClientOption configures a SessionClient
type ClientOption func(*SessionClient)

// WithCookieName sets the session cookie name the server uses
func WithCookieName(name string) ClientOption {
	return func(c *SessionClient) {
		c.cookieName = name
	}
}

// WithHTTPClient copies the timeout and transport of client. The transport is
// wrapped with session handling.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *SessionClient) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
		c.httpClient.Timeout = client.Timeout
	}
}

// WithTransport sets a custom base transport (for connection pooling, proxies, etc.)
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *SessionClient) {
		c.baseTransport = transport
	}
}

// NewSessionClient creates a client for the server at serverURL
func NewSessionClient(serverURL string, store CredentialStore, opts ...ClientOption) *SessionClient {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &SessionClient{
		serverURL: serverURL,
		store:     store,
		httpClient: &http.Client{
			// Browsers are redirected, API clients never need to follow
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		baseTransport: http.DefaultTransport,
		cookieName:    DefaultCookieName,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Transport = &storedSessionTransport{client: c, base: c.baseTransport}
	return c
}

// HTTPClient returns the underlying HTTP client with session handling
func (c *SessionClient) HTTPClient() *http.Client {
	return c.httpClient
}

// ServerURL returns the server URL this client is configured for
func (c *SessionClient) ServerURL() string {
	return c.serverURL
}

// SessionToken returns the stored token, or "" if there is none or it has expired
func (c *SessionClient) SessionToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil || cred == nil || cred.IsExpired() {
		return "", err
	}
	return cred.SessionToken, nil
}

// IsLoggedIn returns true if there is an unexpired session token
func (c *SessionClient) IsLoggedIn() bool {
	token, err := c.SessionToken()
	return err == nil && token != ""
}

// Register creates a local identity. The server logs it in straight away and
// the new session is stored.
func (c *SessionClient) Register(ctx context.Context, username, password string) (*ServerCredential, error) {
	var out struct {
		Token    string   `json:"token"`
		Identity Identity `json:"identity"`
	}
	resp, err := c.do(ctx, http.MethodPost, "/register", credentialsBody(username, password), &out)
	if err != nil {
		return nil, err
	}
	return c.remember(resp, out.Token, out.Identity.ID, username)
}

// Login verifies the credentials and stores the new session. A session
// stored earlier is sent along and replaced by the server.
func (c *SessionClient) Login(ctx context.Context, username, password string) (*ServerCredential, error) {
	var out struct {
		Token string `json:"token"`
	}
	resp, err := c.do(ctx, http.MethodPost, "/login", credentialsBody(username, password), &out)
	if err != nil {
		return nil, err
	}
	cred, err := c.remember(resp, out.Token, "", username)
	if err != nil {
		return nil, err
	}
	if me, err := c.Me(ctx); err == nil {
		cred.IdentityID = me.ID
		c.mu.Lock()
		defer c.mu.Unlock()
		if err := c.store.SetCredential(c.serverURL, cred); err != nil {
			return nil, err
		}
		if err := c.store.Save(); err != nil {
			return nil, fmt.Errorf("failed to save credentials: %w", err)
		}
	}
	return cred, nil
}

// Logout ends the session on the server and forgets it locally. The local
// credential is removed even if the server could not be reached.
func (c *SessionClient) Logout(ctx context.Context) error {
	_, reqErr := c.do(ctx, http.MethodPost, "/logout", nil, nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.RemoveCredential(c.serverURL); err != nil {
		return err
	}
	if err := c.store.Save(); err != nil {
		return err
	}
	return reqErr
}

// Me returns the identity of the stored session
func (c *SessionClient) Me(ctx context.Context) (*Identity, error) {
	if !c.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	var identity Identity
	if _, err := c.authed(ctx, http.MethodGet, "/me", nil, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// Submit sets the secret of the logged in identity
func (c *SessionClient) Submit(ctx context.Context, secret string) error {
	if !c.IsLoggedIn() {
		return ErrNotLoggedIn
	}
	_, err := c.authed(ctx, http.MethodPost, "/submit", map[string]string{"secret": secret}, nil)
	return err
}

// ListSecrets returns the public listing. It needs no session.
func (c *SessionClient) ListSecrets(ctx context.Context) ([]Secret, error) {
	var out []Secret
	if _, err := c.do(ctx, http.MethodGet, "/secrets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// authed is do for calls that need a session. A 401 means the stored
// session is gone on the server, so it is forgotten.
func (c *SessionClient) authed(ctx context.Context, method, path string, body, out any) (*http.Response, error) {
	resp, err := c.do(ctx, method, path, body, out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		c.mu.Lock()
		c.store.RemoveCredential(c.serverURL)
		c.store.Save()
		c.mu.Unlock()
		return nil, ErrNotLoggedIn
	}
	return resp, err
}

func (c *SessionClient) do(ctx context.Context, method, path string, body, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		json.Unmarshal(data, apiErr)
		return nil, apiErr
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("invalid response from server: %w", err)
		}
	}
	return resp, nil
}

// remember stores token with the expiry of the session cookie set on resp
func (c *SessionClient) remember(resp *http.Response, token, identityID, username string) (*ServerCredential, error) {
	if token == "" {
		return nil, fmt.Errorf("server returned no session token")
	}
	cred := &ServerCredential{
		SessionToken: token,
		IdentityID:   identityID,
		Username:     username,
		CreatedAt:    time.Now(),
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == c.cookieName && !cookie.Expires.IsZero() {
			cred.ExpiresAt = cookie.Expires
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.SetCredential(c.serverURL, cred); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}
	if err := c.store.Save(); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}
	return cred, nil
}

func credentialsBody(username, password string) map[string]string {
	return map[string]string{"username": username, "password": password}
}
