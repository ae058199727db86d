package secrets

import (
	"context"
	"log/slog"
	"time"
)

// Identity is a durable user record. It can authenticate with a local
// credential (Username + PasswordHash), a federated provider id, or both.
type Identity struct {
	ID string `json:"id"`

	// Local credential. Empty when the identity only signs in through a provider.
	Username     string `json:"username,omitempty"`
	PasswordHash string `json:"-"`

	// Provider qualified id, see FederatedKey
	FederatedID string `json:"federated_id,omitempty"`

	// Secret is the protected content. nil until the identity submits one.
	Secret *string `json:"secret,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasLocalCredential returns true if the identity can sign in with a password
func (i *Identity) HasLocalCredential() bool {
	return i != nil && i.Username != "" && i.PasswordHash != ""
}

// HasSecret returns true once protected content has been submitted
func (i *Identity) HasSecret() bool {
	return i != nil && i.Secret != nil
}

// LogValue keeps the password hash out of structured logs.
func (i *Identity) LogValue() slog.Value {
	if i == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("id", i.ID),
		slog.String("username", i.Username),
		slog.String("federated_id", i.FederatedID),
		slog.Bool("has_secret", i.HasSecret()),
	)
}

// FederatedKey creates the key an identity is stored under for a provider
// profile id, so ids from different providers never collide.
func FederatedKey(provider, profileID string) string {
	return provider + ":" + profileID
}

// IdentityStore is the durable record of identities. All mutations must be
// visible to every caller once the method returns.
type IdentityStore interface {
	// CreateLocal creates an identity with a local credential.
	// Returns ErrDuplicateIdentity if the username is already bound.
	CreateLocal(ctx context.Context, username, passwordHash string) (*Identity, error)

	// FindByUsername looks up the identity holding the local credential for username.
	// Returns ErrNotFound if there is none.
	FindByUsername(ctx context.Context, username string) (*Identity, error)

	// FindByID returns ErrNotFound if no identity has the id.
	FindByID(ctx context.Context, id string) (*Identity, error)

	// FindOrCreateByFederatedID returns the identity linked to federatedID,
	// creating it if absent. Concurrent calls with the same id, from this or any
	// other process sharing the store, must all return the same identity. A store
	// may return ErrConflict if it lost a race it could not settle itself.
	FindOrCreateByFederatedID(ctx context.Context, federatedID string) (identity *Identity, created bool, err error)

	// SetProtectedContent stores content as the identity's secret.
	// Returns ErrNotFound if the id does not exist.
	SetProtectedContent(ctx context.Context, id, content string) error

	// ListWithProtectedContent returns every identity whose secret is set.
	ListWithProtectedContent(ctx context.Context) ([]*Identity, error)
}
