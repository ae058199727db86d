package secrets

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Authenticator registers local credentials and verifies passwords against
// them. It is the only component that ever sees a raw password or a hash.
type Authenticator struct {
	Store IdentityStore

	// bcrypt cost, defaults to bcrypt.DefaultCost
	Cost int

	// Policy applied on Register, defaults to DefaultRegistrationPolicy
	Policy *RegistrationPolicy

	Logger *slog.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

func NewAuthenticator(store IdentityStore) *Authenticator {
	return &Authenticator{Store: store}
}

func (a *Authenticator) cost() int {
	if a.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return a.Cost
}

func (a *Authenticator) policy() RegistrationPolicy {
	if a.Policy != nil {
		return *a.Policy
	}
	return DefaultRegistrationPolicy()
}

func (a *Authenticator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// Register validates the credentials, hashes the password with bcrypt and
// creates a local identity for it.
func (a *Authenticator) Register(ctx context.Context, username, password string) (*Identity, error) {
	creds := (&Credentials{Username: username, Password: password}).Normalize()
	if authErr := a.policy().Validate(creds); authErr != nil {
		registrationsTotal.WithLabelValues("invalid").Inc()
		return nil, authErr
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), a.cost())
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		registrationsTotal.WithLabelValues("invalid").Inc()
		return nil, invalidInput(ErrCodeWeakPassword, "Password is too long", "password")
	} else if err != nil {
		registrationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	identity, err := a.Store.CreateLocal(ctx, creds.Username, string(passwordHash))
	if errors.Is(err, ErrDuplicateIdentity) {
		registrationsTotal.WithLabelValues("duplicate").Inc()
		return nil, &AuthError{Code: ErrCodeUsernameTaken, Message: "Username is already taken", Field: "username", Err: ErrDuplicateIdentity}
	} else if err != nil {
		registrationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	registrationsTotal.WithLabelValues("created").Inc()
	a.logger().Info("registered local identity", "identity", identity)
	return identity, nil
}

// Verify checks password against the local credential of username.
//
// An unknown or over-long username, an identity without a local credential
// and a wrong password all return ErrAuthFailure. Unknown usernames are compared against
// a dummy hash so every failure costs one bcrypt comparison.
func (a *Authenticator) Verify(ctx context.Context, username, password string) (*Identity, error) {
	creds := (&Credentials{Username: username, Password: password}).Normalize()

	var identity *Identity
	if creds.Username != "" && len(creds.Username) <= MaxUsernameLength {
		found, err := a.Store.FindByUsername(ctx, creds.Username)
		if err != nil && !errors.Is(err, ErrNotFound) {
			loginAttemptsTotal.WithLabelValues("local", "error").Inc()
			return nil, fmt.Errorf("failed to look up identity: %w", err)
		}
		if err == nil {
			identity = found
		}
	}

	hash := a.getDummyHash()
	if identity.HasLocalCredential() {
		hash = []byte(identity.PasswordHash)
	}
	cmpErr := bcrypt.CompareHashAndPassword(hash, []byte(creds.Password))
	if cmpErr != nil || !identity.HasLocalCredential() {
		loginAttemptsTotal.WithLabelValues("local", "failure").Inc()
		return nil, ErrAuthFailure
	}

	loginAttemptsTotal.WithLabelValues("local", "success").Inc()
	return identity, nil
}

// getDummyHash returns a hash of a random password that nobody can match
func (a *Authenticator) getDummyHash() []byte {
	a.dummyOnce.Do(func() {
		b := make([]byte, 24)
		rand.Read(b)
		hash, err := bcrypt.GenerateFromPassword(b, a.cost())
		if err != nil {
			a.logger().Warn("failed to create dummy hash", "err", err)
			return
		}
		a.dummyHash = hash
	})
	return a.dummyHash
}
