//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"
	secrets "github.com/panyam/secrets"
)

// IdentityEntity is the Datastore entity for identities
type IdentityEntity struct {
	Key          *datastore.Key `datastore:"__key__"`
	Username     string         `datastore:"username"`
	PasswordHash string         `datastore:"password_hash,noindex"`
	FederatedID  string         `datastore:"federated_id"`
	HasSecret    bool           `datastore:"has_secret"`
	Secret       string         `datastore:"secret,noindex"`
	CreatedAt    time.Time      `datastore:"created_at"`
	UpdatedAt    time.Time      `datastore:"updated_at"`
}

func (e *IdentityEntity) ToIdentity() *secrets.Identity {
	out := &secrets.Identity{
		ID:           e.Key.Name,
		Username:     e.Username,
		PasswordHash: e.PasswordHash,
		FederatedID:  e.FederatedID,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
	if e.HasSecret {
		secret := e.Secret
		out.Secret = &secret
	}
	return out
}

// IndexEntity reserves a username or federated id for one identity.
// Key name is the reserved value.
type IndexEntity struct {
	Key        *datastore.Key `datastore:"__key__"`
	IdentityID string         `datastore:"identity_id"`
	CreatedAt  time.Time      `datastore:"created_at"`
}
