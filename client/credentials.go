// Package client talks to a secrets server from Go programs and CLIs. It
// keeps the session token per server in a CredentialStore and sends it with
// every request.
package client

import (
	"time"
)

// ServerCredential is the session held for a single server
type ServerCredential struct {
	SessionToken string    `json:"session_token"`
	IdentityID   string    `json:"identity_id,omitempty"`
	Username     string    `json:"username,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsExpired returns true once the session lifetime the server announced has
// passed. A credential without an expiry is only dropped when the server
// rejects it.
func (c *ServerCredential) IsExpired() bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(c.ExpiresAt)
}

// CredentialStore defines the interface for storing and retrieving credentials
type CredentialStore interface {
	// GetCredential retrieves a credential for a server URL
	// Returns nil, nil if no credential exists for the server
	GetCredential(serverURL string) (*ServerCredential, error)

	SetCredential(serverURL string, cred *ServerCredential) error

	RemoveCredential(serverURL string) error

	// ListServers returns all server URLs with stored credentials
	ListServers() ([]string, error)

	// Save persists any pending changes (for stores that batch writes)
	Save() error
}
