package memory

import (
	"testing"

	secrets "github.com/panyam/secrets"
	"github.com/panyam/secrets/stores/storetest"
	"github.com/stretchr/testify/suite"
)

func TestIdentityStore(t *testing.T) {
	suite.Run(t, &storetest.IdentityStoreSuite{
		NewStore: func() secrets.IdentityStore { return NewIdentityStore() },
	})
}

func TestReturnedIdentityIsACopy(t *testing.T) {
	store := NewIdentityStore()
	created, err := store.CreateLocal(t.Context(), "alice", "hash")
	if err != nil {
		t.Fatalf("CreateLocal failed: %v", err)
	}
	created.Username = "mallory"

	found, err := store.FindByID(t.Context(), created.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.Username != "alice" {
		t.Errorf("Stored record was mutated through a returned pointer: %q", found.Username)
	}
}
