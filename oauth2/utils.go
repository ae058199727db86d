package oauth2

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const stateCookieName = "oauthstate"

var handshakesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "secrets_federated_handshakes_total",
	Help: "Federated login handshake transitions by provider and state",
}, []string{"provider", "state"})

// stateClaims is carried in the signed state parameter. The nonce is also
// stored in a cookie, binding the callback to the browser that started it.
type stateClaims struct {
	Nonce       string `json:"nonce"`
	CallbackURL string `json:"cb,omitempty"`
	jwt.RegisteredClaims
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (p *Provider) signState(nonce, callbackURL string) (string, error) {
	now := time.Now()
	claims := stateClaims{
		Nonce:       nonce,
		CallbackURL: callbackURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.StateTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.StateSecret)
}

func (p *Provider) verifyState(state string) (*stateClaims, error) {
	if state == "" {
		return nil, fmt.Errorf("missing state")
	}
	claims := &stateClaims{}
	token, err := jwt.ParseWithClaims(state, claims, func(token *jwt.Token) (any, error) {
		return p.StateSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithSubject(p.Name), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Nonce == "" {
		return nil, fmt.Errorf("invalid state")
	}
	return claims, nil
}

func (p *Provider) setStateCookie(w http.ResponseWriter, nonce string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    nonce,
		Path:     "/",
		MaxAge:   int(p.StateTTL.Seconds()),
		Expires:  time.Now().Add(p.StateTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:    stateCookieName,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
}
