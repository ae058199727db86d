package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Service exposes the operations a routing layer may call. Every dependency
// is passed in at construction; there are no package level singletons.
type Service struct {
	Store         IdentityStore
	Authenticator *Authenticator
	Federated     *FederatedResolver
	Sessions      *SessionManager
	Gate          *AccessGate
	Logger        *slog.Logger
}

// NewService wires the default components around store and the session store
// held by sessions.
func NewService(store IdentityStore, sessions *SessionManager) *Service {
	return (&Service{Store: store, Sessions: sessions}).EnsureDefaults()
}

func (s *Service) EnsureDefaults() *Service {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Authenticator == nil {
		s.Authenticator = &Authenticator{Store: s.Store, Logger: s.Logger}
	}
	if s.Federated == nil {
		s.Federated = &FederatedResolver{Store: s.Store, Logger: s.Logger}
	}
	if s.Gate == nil {
		s.Gate = &AccessGate{Sessions: s.Sessions, Logger: s.Logger}
	}
	s.Gate.EnsureDefaults()
	return s
}

// Register creates a local identity
func (s *Service) Register(ctx context.Context, username, password string) (*Identity, error) {
	return s.Authenticator.Register(ctx, username, password)
}

// Login verifies the credentials and returns a new session token. priorToken,
// if set, is the session the client currently holds and is replaced.
func (s *Service) Login(ctx context.Context, username, password, priorToken string) (string, error) {
	identity, err := s.Authenticator.Verify(ctx, username, password)
	if err != nil {
		return "", err
	}
	return s.Sessions.Establish(ctx, identity.ID, priorToken)
}

// LoginFederated resolves the provider profile to an identity and returns a
// new session token for it.
func (s *Service) LoginFederated(ctx context.Context, provider, profileID, priorToken string) (string, *Identity, error) {
	identity, err := s.Federated.Resolve(ctx, provider, profileID)
	if err != nil {
		return "", nil, err
	}
	token, err := s.Sessions.Establish(ctx, identity.ID, priorToken)
	if err != nil {
		return "", nil, err
	}
	return token, identity, nil
}

// Logout ends the session. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.Sessions.Terminate(ctx, token)
}

// CurrentIdentity returns the identity bound to token, or ErrUnauthenticated
func (s *Service) CurrentIdentity(ctx context.Context, token string) (*Identity, error) {
	decision, err := s.Gate.Authorize(ctx, token, CapabilityAuthenticated)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, ErrUnauthenticated
	}
	return s.identityForSession(ctx, decision.IdentityID)
}

// SubmitProtectedContent sets the secret of the identity bound to token.
// Nothing is written unless the gate allows the call.
func (s *Service) SubmitProtectedContent(ctx context.Context, token, content string) error {
	decision, err := s.Gate.Authorize(ctx, token, CapabilityAuthenticated)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return ErrUnauthenticated
	}
	return s.submitFor(ctx, decision.IdentityID, content)
}

// ListIdentitiesWithProtectedContent returns every identity that has
// submitted a secret. It requires no session.
func (s *Service) ListIdentitiesWithProtectedContent(ctx context.Context) ([]*Identity, error) {
	identities, err := s.Store.ListWithProtectedContent(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	return identities, nil
}

// identityForSession loads the identity a session points at. A session whose
// identity no longer exists is treated as no session.
func (s *Service) identityForSession(ctx context.Context, identityID string) (*Identity, error) {
	identity, err := s.Store.FindByID(ctx, identityID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUnauthenticated
	} else if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	return identity, nil
}

func (s *Service) submitFor(ctx context.Context, identityID, content string) error {
	err := s.Store.SetProtectedContent(ctx, identityID, content)
	if errors.Is(err, ErrNotFound) {
		return ErrUnauthenticated
	} else if err != nil {
		return fmt.Errorf("failed to save secret: %w", err)
	}
	s.Logger.Info("secret submitted", "identity_id", identityID)
	return nil
}
