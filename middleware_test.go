package secrets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexedwards/scs/v2/memstore"
)

func newTestGate(t *testing.T) (*AccessGate, string) {
	t.Helper()
	sessions := NewSessionManager(memstore.New())
	token, err := sessions.Establish(context.Background(), "id-1", "")
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	return (&AccessGate{Sessions: sessions}).EnsureDefaults(), token
}

func TestAccessGateAuthorize(t *testing.T) {
	gate, token := newTestGate(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		token      string
		capability Capability
		allowed    bool
		reason     string
	}{
		{"ValidSession", token, CapabilityAuthenticated, true, ""},
		{"NoToken", "", CapabilityAuthenticated, false, ReasonNoSession},
		{"UnknownToken", "bogus", CapabilityAuthenticated, false, ReasonNoSession},
		{"UnknownCapability", token, Capability("admin"), false, ReasonUnknownCapability},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := gate.Authorize(ctx, tc.token, tc.capability)
			if err != nil {
				t.Fatalf("Authorize failed: %v", err)
			}
			if decision.Allowed != tc.allowed {
				t.Errorf("Allowed = %v, want %v", decision.Allowed, tc.allowed)
			}
			if decision.Reason != tc.reason {
				t.Errorf("Reason = %q, want %q", decision.Reason, tc.reason)
			}
			if tc.allowed && decision.IdentityID != "id-1" {
				t.Errorf("Expected identity id-1, got %q", decision.IdentityID)
			}
		})
	}

	// Re-evaluated every call: terminating the session flips the decision
	gate.Sessions.Terminate(ctx, token)
	decision, _ := gate.Authorize(ctx, token, CapabilityAuthenticated)
	if decision.Allowed {
		t.Error("Expected terminated session to be denied")
	}
}

func TestAccessGateStoreFailureIsNotAllow(t *testing.T) {
	gate := (&AccessGate{Sessions: NewSessionManager(failingStore{})}).EnsureDefaults()
	decision, err := gate.Authorize(context.Background(), "tok", CapabilityAuthenticated)
	if err == nil {
		t.Fatal("Expected store error")
	}
	if decision.Allowed {
		t.Error("Store failure must never allow")
	}
}

func TestTokenFromRequest(t *testing.T) {
	gate, _ := newTestGate(t)

	req := httptest.NewRequest("GET", "/", nil)
	if got := gate.TokenFromRequest(req); got != "" {
		t.Errorf("Expected no token, got %q", got)
	}

	req.Header.Set("X-Session-Token", "from-header")
	if got := gate.TokenFromRequest(req); got != "from-header" {
		t.Errorf("Expected header token, got %q", got)
	}

	req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: "from-cookie"})
	if got := gate.TokenFromRequest(req); got != "from-cookie" {
		t.Errorf("Expected cookie to win over header, got %q", got)
	}
}

func TestRequire(t *testing.T) {
	gate, token := newTestGate(t)
	var seenID string
	protected := gate.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = IdentityIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("BrowserWithoutSessionIsRedirected", func(t *testing.T) {
		seenID = ""
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, httptest.NewRequest("GET", "/submit", nil))
		if rr.Code != http.StatusFound {
			t.Fatalf("Expected 302, got %d", rr.Code)
		}
		if loc := rr.Header().Get("Location"); loc != "/login" {
			t.Errorf("Expected redirect to /login, got %s", loc)
		}
		if seenID != "" {
			t.Error("Protected handler must not run")
		}
	})

	t.Run("APIClientWithoutSessionGets401", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/submit", nil)
		req.Header.Set("Accept", "application/json")
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("Expected 401, got %d", rr.Code)
		}
		var body AuthError
		json.NewDecoder(rr.Body).Decode(&body)
		if body.Code != ErrCodeUnauthenticated {
			t.Errorf("Expected code %s, got %s", ErrCodeUnauthenticated, body.Code)
		}
	})

	t.Run("ValidSession", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/submit", nil)
		req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: token})
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("Expected handler to run, got %d", rr.Code)
		}
		if seenID != "id-1" {
			t.Errorf("Expected identity id in context, got %q", seenID)
		}
	})

	t.Run("StoreFailure", func(t *testing.T) {
		broken := (&AccessGate{Sessions: NewSessionManager(failingStore{})}).EnsureDefaults()
		rr := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/submit", nil)
		req.Header.Set("X-Session-Token", "tok")
		broken.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("Protected handler must not run")
		})).ServeHTTP(rr, req)
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("Expected 500, got %d", rr.Code)
		}
	})
}

func TestExtract(t *testing.T) {
	gate, token := newTestGate(t)
	var seenID string
	handler := gate.Extract(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = IdentityIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusOK || seenID != "" {
		t.Errorf("Expected anonymous pass through, got %d %q", rr.Code, seenID)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Session-Token", token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seenID != "id-1" {
		t.Errorf("Expected identity to be extracted, got %q", seenID)
	}
}
