package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Capability is something a protected operation requires of the caller
type Capability string

// CapabilityAuthenticated is held by any request with a valid session
const CapabilityAuthenticated Capability = "authenticated"

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed    bool
	IdentityID string
	Reason     string
}

// Deny reasons
const (
	ReasonNoSession         = "no valid session"
	ReasonUnknownCapability = "unknown capability"
)

type identityIDKey struct{}

// AccessGate decides whether a request may perform a protected operation.
// It is re-evaluated on every request and keeps no state of its own.
type AccessGate struct {
	Sessions *SessionManager

	// Name of the cookie carrying the session token
	CookieName string

	// Header checked when no cookie is present, for API clients
	TokenHeaderName string

	// Where browsers are sent when denied. Defaults to /login
	LoginURL string

	Logger *slog.Logger
}

func (g *AccessGate) EnsureDefaults() *AccessGate {
	if g.CookieName == "" {
		g.CookieName = DefaultSessionCookieName
	}
	if g.TokenHeaderName == "" {
		g.TokenHeaderName = "X-Session-Token"
	}
	if g.LoginURL == "" {
		g.LoginURL = "/login"
	}
	if g.Logger == nil {
		g.Logger = slog.Default()
	}
	return g
}

// Authorize checks that token carries the required capability.
// Store failures are returned as errors and never turn into an Allow.
func (g *AccessGate) Authorize(ctx context.Context, token string, required Capability) (Decision, error) {
	if required != CapabilityAuthenticated {
		gateDecisionsTotal.WithLabelValues("deny").Inc()
		return Decision{Reason: ReasonUnknownCapability}, nil
	}
	identityID, err := g.Sessions.Resolve(ctx, token)
	if errors.Is(err, ErrUnauthenticated) {
		gateDecisionsTotal.WithLabelValues("deny").Inc()
		return Decision{Reason: ReasonNoSession}, nil
	} else if err != nil {
		gateDecisionsTotal.WithLabelValues("error").Inc()
		return Decision{}, err
	}
	gateDecisionsTotal.WithLabelValues("allow").Inc()
	return Decision{Allowed: true, IdentityID: identityID}, nil
}

// TokenFromRequest returns the session token sent with r, or ""
func (g *AccessGate) TokenFromRequest(r *http.Request) string {
	g.EnsureDefaults()
	if cookie, err := r.Cookie(g.CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return strings.TrimSpace(r.Header.Get(g.TokenHeaderName))
}

// Require only lets requests with a valid session through. Browsers are
// redirected to LoginURL, API clients get a 401.
func (g *AccessGate) Require(next http.Handler) http.Handler {
	g.EnsureDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := g.Authorize(r.Context(), g.TokenFromRequest(r), CapabilityAuthenticated)
		if err != nil {
			g.Logger.Error("access check failed", "path", r.URL.Path, "err", err)
			writeError(w, &AuthError{Code: ErrCodeServerError, Message: "Internal server error"}, http.StatusInternalServerError)
			return
		}
		if !decision.Allowed {
			if wantsJSON(r) {
				writeError(w, &AuthError{Code: ErrCodeUnauthenticated, Message: "Login required"}, http.StatusUnauthorized)
			} else {
				http.Redirect(w, r, g.LoginURL, http.StatusFound)
			}
			return
		}
		next.ServeHTTP(w, WithIdentityID(r, decision.IdentityID))
	})
}

// Extract resolves the session if there is one but never denies.
func (g *AccessGate) Extract(next http.Handler) http.Handler {
	g.EnsureDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := g.Authorize(r.Context(), g.TokenFromRequest(r), CapabilityAuthenticated)
		if err != nil {
			g.Logger.Warn("session lookup failed", "path", r.URL.Path, "err", err)
		}
		if decision.Allowed {
			r = WithIdentityID(r, decision.IdentityID)
		}
		next.ServeHTTP(w, r)
	})
}

// WithIdentityID returns a copy of r carrying the identity id in its context
func WithIdentityID(r *http.Request, identityID string) *http.Request {
	return r.WithContext(ContextWithIdentityID(r.Context(), identityID))
}

// ContextWithIdentityID is WithIdentityID for transports other than HTTP
func ContextWithIdentityID(ctx context.Context, identityID string) context.Context {
	return context.WithValue(ctx, identityIDKey{}, identityID)
}

// IdentityIDFromContext returns the identity id placed by the gate, or ""
func IdentityIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(identityIDKey{}).(string)
	return id
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err *AuthError, status int) {
	writeJSON(w, status, err)
}
