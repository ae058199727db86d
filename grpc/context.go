// Package grpc applies the access gate to gRPC services. Clients send their
// session token in metadata; the interceptors resolve it and place the
// identity id in the handler's context.
package grpc

import (
	"context"

	secrets "github.com/panyam/secrets"
	"google.golang.org/grpc/metadata"
)

// Default metadata keys.
const (
	// DefaultMetadataKeySessionToken carries the session token from the client
	DefaultMetadataKeySessionToken = "x-session-token"

	// DefaultMetadataKeyIdentityID forwards an already resolved identity id to
	// downstream services
	DefaultMetadataKeyIdentityID = "x-identity-id"
)

// Config holds the metadata key configuration.
type Config struct {
	// Defaults to "x-session-token".
	MetadataKeySessionToken string

	// Defaults to "x-identity-id".
	MetadataKeyIdentityID string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeySessionToken: DefaultMetadataKeySessionToken,
		MetadataKeyIdentityID:   DefaultMetadataKeyIdentityID,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeySessionToken == "" {
		c.MetadataKeySessionToken = DefaultMetadataKeySessionToken
	}
	if c.MetadataKeyIdentityID == "" {
		c.MetadataKeyIdentityID = DefaultMetadataKeyIdentityID
	}
}

// SessionTokenFromContext returns the session token in the incoming metadata, or "".
func SessionTokenFromContext(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(config.MetadataKeySessionToken); len(values) > 0 {
		return values[0]
	}
	return ""
}

// SessionTokenToOutgoingContext adds the session token to outgoing gRPC context metadata.
func SessionTokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeySessionToken, token)
}

// IdentityIDToOutgoingContext forwards the identity the gate resolved for
// this call to a downstream service.
func IdentityIDToOutgoingContext(ctx context.Context) context.Context {
	identityID := IdentityIDFromContext(ctx)
	if identityID == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyIdentityID, identityID)
}

// IdentityIDFromContext returns the identity id the interceptor resolved, or "".
func IdentityIDFromContext(ctx context.Context) string {
	return secrets.IdentityIDFromContext(ctx)
}

// IsAuthenticated returns true if the interceptor resolved a session for this call.
func IsAuthenticated(ctx context.Context) bool {
	return IdentityIDFromContext(ctx) != ""
}
