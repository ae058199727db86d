// Package oauth2 runs the authorization code handshake with a trusted
// identity provider and hands the provider's stable profile id to the app.
//
// A login attempt moves through Initiated (redirect issued), CallbackReceived
// (provider answered) and then Resolved (a profile id was obtained and passed
// to HandleProfile) or Failed (user redirected to FailureURL, nothing created).
package oauth2

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Profile is what the provider tells us about the user. Only ID is trusted.
type Profile struct {
	Provider string

	// Stable id of the user in the provider's namespace
	ID string

	// Local path to return to after login, from the start request
	CallbackURL string
}

type HandleProfileFunc func(w http.ResponseWriter, r *http.Request, profile Profile)

// HandshakeState is the state of one federated login attempt
type HandshakeState string

const (
	StateInitiated        HandshakeState = "initiated"
	StateCallbackReceived HandshakeState = "callback_received"
	StateResolved         HandshakeState = "resolved"
	StateFailed           HandshakeState = "failed"
)

// Provider is one trusted identity provider
type Provider struct {
	// Name qualifies profile ids, e.g. "google"
	Name string

	// Endpoint returning the user's profile for an access token
	UserInfoURL string

	// Called with the profile once the handshake succeeds
	HandleProfile HandleProfileFunc

	// Where failed attempts are redirected. Defaults to /login
	FailureURL string

	// Key signing the state parameter. A random key is generated when empty,
	// which only works while a single instance serves both start and callback.
	StateSecret []byte

	// How long a started login may take. Defaults to 10 minutes
	StateTTL time.Duration

	// Client used for the code exchange and the profile request
	HTTPClient *http.Client

	Logger *slog.Logger

	OAuth oauth2.Config
}

func NewProvider(name, clientId, clientSecret, callbackUrl string, endpoint oauth2.Endpoint, scopes ...string) *Provider {
	out := &Provider{
		Name: name,
		OAuth: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
	}
	return out.EnsureDefaults()
}

func (p *Provider) EnsureDefaults() *Provider {
	if p.FailureURL == "" {
		p.FailureURL = "/login"
	}
	if p.StateTTL <= 0 {
		p.StateTTL = 10 * time.Minute
	}
	if len(p.StateSecret) == 0 {
		p.StateSecret = make([]byte, 32)
		if _, err := rand.Read(p.StateSecret); err != nil {
			slog.Error("error generating state secret", "err", err)
		}
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return p
}

// SetOAuthEndpoint overrides the provider endpoints, e.g. for tests
func (p *Provider) SetOAuthEndpoint(endpoint oauth2.Endpoint) {
	p.OAuth.Endpoint = endpoint
}

// exchangeContext makes x/oauth2 use HTTPClient when one is set
func (p *Provider) exchangeContext(ctx context.Context) context.Context {
	if p.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, p.HTTPClient)
	}
	return ctx
}

func (p *Provider) transition(state HandshakeState, attrs ...any) {
	handshakesTotal.WithLabelValues(p.Name, string(state)).Inc()
	p.Logger.Info("federated login", append([]any{"provider", p.Name, "state", string(state)}, attrs...)...)
}

// HandleStart redirects the browser to the provider's consent page. An
// optional ?callbackURL= is carried through the signed state.
func (p *Provider) HandleStart(w http.ResponseWriter, r *http.Request) {
	nonce, err := generateNonce()
	if err != nil {
		p.Logger.Error("error generating oauth nonce", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	state, err := p.signState(nonce, r.URL.Query().Get("callbackURL"))
	if err != nil {
		p.Logger.Error("error signing oauth state", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	p.setStateCookie(w, nonce)
	p.transition(StateInitiated)
	http.Redirect(w, r, p.OAuth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// HandleCallback completes the handshake. Any failure redirects to FailureURL
// without touching the identity store.
func (p *Provider) HandleCallback(w http.ResponseWriter, r *http.Request) {
	p.transition(StateCallbackReceived)
	profile, err := p.completeHandshake(r)
	clearStateCookie(w)
	if err != nil {
		p.transition(StateFailed, "err", err)
		http.Redirect(w, r, p.FailureURL, http.StatusFound)
		return
	}
	p.transition(StateResolved)
	if p.HandleProfile == nil {
		http.Error(w, "no profile handler", http.StatusInternalServerError)
		return
	}
	p.HandleProfile(w, r, profile)
}

func (p *Provider) completeHandshake(r *http.Request) (Profile, error) {
	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		return Profile{}, fmt.Errorf("provider returned error: %s", providerErr)
	}

	claims, err := p.verifyState(query.Get("state"))
	if err != nil {
		return Profile{}, fmt.Errorf("invalid oauth state: %w", err)
	}
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" {
		return Profile{}, fmt.Errorf("missing oauth state cookie")
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(claims.Nonce)) != 1 {
		return Profile{}, fmt.Errorf("oauth state does not match this browser")
	}

	code := query.Get("code")
	if code == "" {
		return Profile{}, fmt.Errorf("missing authorization code")
	}

	ctx := p.exchangeContext(r.Context())
	token, err := p.OAuth.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("code exchange failed: %w", err)
	}

	id, err := p.fetchProfileID(ctx, token)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Provider: p.Name, ID: id, CallbackURL: claims.CallbackURL}, nil
}

// fetchProfileID asks the provider who the token belongs to. OIDC style
// endpoints answer with "sub", older ones with "id".
func (p *Provider) fetchProfileID(ctx context.Context, token *oauth2.Token) (string, error) {
	resp, err := p.OAuth.Client(ctx, token).Get(p.UserInfoURL)
	if err != nil {
		return "", fmt.Errorf("failed getting user info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("user info request failed with status %d", resp.StatusCode)
	}

	var userInfo map[string]any
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&userInfo); err != nil {
		return "", fmt.Errorf("failed to parse user info: %w", err)
	}

	for _, key := range []string{"sub", "id"} {
		switch v := userInfo[key].(type) {
		case string:
			if v != "" {
				return v, nil
			}
		case json.Number:
			return v.String(), nil
		}
	}
	return "", fmt.Errorf("user info has no profile id")
}
