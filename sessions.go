package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexedwards/scs/v2"
)

// SessionKeyIdentityID is the key the identity id is stored under in the
// session payload. Payloads are encoded with scs.GobCodec, so an
// scs.SessionManager sharing the store sees the same value.
const SessionKeyIdentityID = "identityID"

// DefaultSessionLifetime is used when SessionManager.Lifetime is not set
const DefaultSessionLifetime = 24 * time.Hour

// SessionManager binds opaque session tokens to identity ids. It never holds
// credential material, only the id.
type SessionManager struct {
	// Any scs store: memstore, the redis or gorm stores in this module, or the
	// scs contrib stores. CtxStore methods are used when available.
	Store scs.Store

	// How long a session lives in the store
	Lifetime time.Duration

	Codec scs.Codec

	Logger *slog.Logger
}

func NewSessionManager(store scs.Store) *SessionManager {
	return &SessionManager{Store: store}
}

func (m *SessionManager) lifetime() time.Duration {
	if m.Lifetime <= 0 {
		return DefaultSessionLifetime
	}
	return m.Lifetime
}

func (m *SessionManager) codec() scs.Codec {
	if m.Codec == nil {
		return scs.GobCodec{}
	}
	return m.Codec
}

func (m *SessionManager) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Establish creates a session bound to identityID and returns its token.
// If priorToken is set that session is deleted first, so re-authenticating
// replaces the binding and a token planted before login is never promoted.
func (m *SessionManager) Establish(ctx context.Context, identityID, priorToken string) (string, error) {
	if identityID == "" {
		return "", fmt.Errorf("cannot establish session without identity")
	}
	if priorToken != "" {
		if err := m.delete(ctx, priorToken); err != nil {
			return "", fmt.Errorf("failed to drop prior session: %w", err)
		}
	}

	token, err := GenerateSessionToken()
	if err != nil {
		return "", err
	}
	expiry := time.Now().Add(m.lifetime()).UTC()
	b, err := m.codec().Encode(expiry, map[string]interface{}{SessionKeyIdentityID: identityID})
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}
	if err := m.commit(ctx, token, b, expiry); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	m.logger().Debug("session established", "identity_id", identityID, "expires", expiry)
	return token, nil
}

// Resolve returns the identity id bound to token, or ErrUnauthenticated.
// It has no side effects.
func (m *SessionManager) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}
	b, found, err := m.find(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	if !found {
		return "", ErrUnauthenticated
	}

	deadline, values, err := m.codec().Decode(b)
	if err != nil {
		m.logger().Warn("discarding undecodable session", "err", err)
		return "", ErrUnauthenticated
	}
	if time.Now().After(deadline) {
		return "", ErrUnauthenticated
	}
	identityID, _ := values[SessionKeyIdentityID].(string)
	if identityID == "" {
		return "", ErrUnauthenticated
	}
	return identityID, nil
}

// Terminate removes the session. Unknown tokens are not an error.
func (m *SessionManager) Terminate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.delete(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (m *SessionManager) find(ctx context.Context, token string) ([]byte, bool, error) {
	if cs, ok := m.Store.(scs.CtxStore); ok {
		return cs.FindCtx(ctx, token)
	}
	return m.Store.Find(token)
}

func (m *SessionManager) commit(ctx context.Context, token string, b []byte, expiry time.Time) error {
	if cs, ok := m.Store.(scs.CtxStore); ok {
		return cs.CommitCtx(ctx, token, b, expiry)
	}
	return m.Store.Commit(token, b, expiry)
}

func (m *SessionManager) delete(ctx context.Context, token string) error {
	if cs, ok := m.Store.(scs.CtxStore); ok {
		return cs.DeleteCtx(ctx, token)
	}
	return m.Store.Delete(token)
}
