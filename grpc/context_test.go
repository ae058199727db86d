package grpc

import (
	"context"
	"testing"

	secrets "github.com/panyam/secrets"
	"google.golang.org/grpc/metadata"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.MetadataKeySessionToken != DefaultMetadataKeySessionToken {
		t.Errorf("expected %q, got %q", DefaultMetadataKeySessionToken, config.MetadataKeySessionToken)
	}
	if config.MetadataKeyIdentityID != DefaultMetadataKeyIdentityID {
		t.Errorf("expected %q, got %q", DefaultMetadataKeyIdentityID, config.MetadataKeyIdentityID)
	}
}

func TestConfigEnsureDefaults(t *testing.T) {
	config := &Config{}
	config.EnsureDefaults()
	if config.MetadataKeySessionToken != DefaultMetadataKeySessionToken {
		t.Errorf("expected default session token key, got %q", config.MetadataKeySessionToken)
	}

	config = &Config{MetadataKeySessionToken: "x-custom"}
	config.EnsureDefaults()
	if config.MetadataKeySessionToken != "x-custom" {
		t.Errorf("expected custom key to be preserved, got %q", config.MetadataKeySessionToken)
	}
}

func TestSessionTokenFromContext(t *testing.T) {
	if token := SessionTokenFromContext(context.Background(), nil); token != "" {
		t.Errorf("expected empty token without metadata, got %q", token)
	}

	md := metadata.Pairs(DefaultMetadataKeySessionToken, "tok123")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	if token := SessionTokenFromContext(ctx, nil); token != "tok123" {
		t.Errorf("expected %q, got %q", "tok123", token)
	}

	config := &Config{MetadataKeySessionToken: "x-custom-token"}
	md = metadata.Pairs("x-custom-token", "tok456")
	ctx = metadata.NewIncomingContext(context.Background(), md)
	if token := SessionTokenFromContext(ctx, config); token != "tok456" {
		t.Errorf("expected %q with custom key, got %q", "tok456", token)
	}
}

func TestSessionTokenToOutgoingContext(t *testing.T) {
	ctx := SessionTokenToOutgoingContext(context.Background(), "tok789")

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}
	values := md.Get(DefaultMetadataKeySessionToken)
	if len(values) != 1 || values[0] != "tok789" {
		t.Errorf("expected token %q in outgoing context, got %v", "tok789", values)
	}
}

func TestIdentityIDToOutgoingContext(t *testing.T) {
	ctx := IdentityIDToOutgoingContext(context.Background())
	if _, ok := metadata.FromOutgoingContext(ctx); ok {
		t.Error("expected no outgoing metadata without an identity")
	}

	ctx = secrets.ContextWithIdentityID(context.Background(), "id-1")
	ctx = IdentityIDToOutgoingContext(ctx)
	md, _ := metadata.FromOutgoingContext(ctx)
	if values := md.Get(DefaultMetadataKeyIdentityID); len(values) != 1 || values[0] != "id-1" {
		t.Errorf("expected identity id to be forwarded, got %v", values)
	}
}

func TestIsAuthenticated(t *testing.T) {
	if IsAuthenticated(context.Background()) {
		t.Error("expected not authenticated with empty context")
	}

	// A raw identity id header from the client is not trusted
	md := metadata.Pairs(DefaultMetadataKeyIdentityID, "spoofed")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	if IsAuthenticated(ctx) {
		t.Error("expected identity id metadata alone not to authenticate")
	}

	ctx = secrets.ContextWithIdentityID(context.Background(), "id-1")
	if !IsAuthenticated(ctx) {
		t.Error("expected authenticated once the gate placed an identity")
	}
}
