package secrets

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// DefaultSessionCookieName is the cookie the session token travels in
const DefaultSessionCookieName = "secrets_session"

// FederatedProvider runs the authorization code handshake with an external
// identity provider. See the oauth2 package.
type FederatedProvider interface {
	HandleStart(w http.ResponseWriter, r *http.Request)
	HandleCallback(w http.ResponseWriter, r *http.Request)
}

// WebApp is the HTTP face of the Service: it parses requests, moves the
// session token in and out of a cookie and decides where to redirect.
type WebApp struct {
	Service *Service

	// Optional federated login provider
	Provider FederatedProvider

	// Session cookie settings
	CookieName   string
	CookieDomain string
	CookieSecure bool

	// Redirect targets
	SuccessURL  string
	LoginURL    string
	RegisterURL string
	LogoutURL   string

	// Form field names
	UsernameField string
	PasswordField string
	SecretField   string

	Logger *slog.Logger
}

func NewWebApp(service *Service) *WebApp {
	return (&WebApp{Service: service}).EnsureDefaults()
}

func (a *WebApp) EnsureDefaults() *WebApp {
	if a.CookieName == "" {
		a.CookieName = DefaultSessionCookieName
	}
	if a.SuccessURL == "" {
		a.SuccessURL = "/secrets"
	}
	if a.LoginURL == "" {
		a.LoginURL = "/login"
	}
	if a.RegisterURL == "" {
		a.RegisterURL = "/register"
	}
	if a.LogoutURL == "" {
		a.LogoutURL = "/"
	}
	if a.UsernameField == "" {
		a.UsernameField = "username"
	}
	if a.PasswordField == "" {
		a.PasswordField = "password"
	}
	if a.SecretField == "" {
		a.SecretField = "secret"
	}
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	if a.Service != nil && a.Service.Gate != nil {
		a.Service.Gate.CookieName = a.CookieName
		a.Service.Gate.LoginURL = a.LoginURL
		a.Service.Gate.EnsureDefaults()
	}
	return a
}

// Router returns the routes of the app. Pages (templates) are not served here.
func (a *WebApp) Router() *mux.Router {
	a.EnsureDefaults()
	gate := a.Service.Gate

	r := mux.NewRouter()
	r.HandleFunc("/register", a.HandleRegister).Methods(http.MethodPost)
	r.HandleFunc("/login", a.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", a.HandleLogout).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/me", a.HandleMe).Methods(http.MethodGet)
	r.Handle("/submit", gate.Require(http.HandlerFunc(a.HandleSubmitPage))).Methods(http.MethodGet)
	r.HandleFunc("/submit", a.HandleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/secrets", a.HandleSecrets).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}).Methods(http.MethodGet)

	if a.Provider != nil {
		r.HandleFunc("/auth/federated/start", a.Provider.HandleStart).Methods(http.MethodGet)
		r.HandleFunc("/auth/federated/callback", a.Provider.HandleCallback).Methods(http.MethodGet)
	}
	return r
}

// CompleteFederatedLogin is called by a provider once it holds a profile id.
// It resolves the identity, starts a session and redirects to callbackURL
// when that is a local path, SuccessURL otherwise.
func (a *WebApp) CompleteFederatedLogin(w http.ResponseWriter, r *http.Request, provider, profileID, callbackURL string) {
	token, identity, err := a.Service.LoginFederated(r.Context(), provider, profileID, a.sessionToken(r))
	if errors.Is(err, ErrFederationFailed) {
		a.Logger.Info("federated login failed", "provider", provider)
		http.Redirect(w, r, a.LoginURL, http.StatusFound)
		return
	} else if err != nil {
		a.Logger.Error("federated login error", "provider", provider, "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	a.setSessionCookie(w, token)
	a.Logger.Info("federated login", "provider", provider, "identity", identity)
	target := a.SuccessURL
	if isLocalPath(callbackURL) {
		target = callbackURL
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (a *WebApp) sessionToken(r *http.Request) string {
	return a.Service.Gate.TokenFromRequest(r)
}

// setSessionCookie attaches token to the response. An empty token clears the cookie.
func (a *WebApp) setSessionCookie(w http.ResponseWriter, token string) {
	cookie := &http.Cookie{
		Name:     a.CookieName,
		Value:    token,
		Domain:   a.CookieDomain,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if token == "" {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
	} else {
		lifetime := a.Service.Sessions.lifetime()
		cookie.MaxAge = int(lifetime.Seconds())
		cookie.Expires = time.Now().Add(lifetime)
	}
	http.SetCookie(w, cookie)
}

// isLocalPath only accepts same-site absolute paths so a crafted callback can
// not bounce the user to another host.
func isLocalPath(target string) bool {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return false
	}
	u, err := url.Parse(target)
	return err == nil && u.Host == "" && u.Scheme == ""
}
