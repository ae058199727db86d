package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2/memstore"
)

// failingStore is an scs.Store whose backend is down
type failingStore struct{}

var errStoreDown = errors.New("store unavailable")

func (failingStore) Find(token string) ([]byte, bool, error)            { return nil, false, errStoreDown }
func (failingStore) Commit(token string, b []byte, exp time.Time) error { return errStoreDown }
func (failingStore) Delete(token string) error                          { return errStoreDown }

func TestSessionEstablishResolve(t *testing.T) {
	ctx := context.Background()
	m := NewSessionManager(memstore.New())

	token, err := m.Establish(ctx, "id-1", "")
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	if len(token) < 40 {
		t.Errorf("Expected a long random token, got %q", token)
	}

	id, err := m.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id != "id-1" {
		t.Errorf("Expected id-1, got %s", id)
	}

	// Resolving is side effect free
	for range 3 {
		if id, _ := m.Resolve(ctx, token); id != "id-1" {
			t.Fatalf("Expected repeated resolves to keep working, got %q", id)
		}
	}
}

func TestSessionTokensAreUnique(t *testing.T) {
	ctx := context.Background()
	m := NewSessionManager(memstore.New())
	seen := map[string]bool{}
	for range 50 {
		token, err := m.Establish(ctx, "id-1", "")
		if err != nil {
			t.Fatalf("Establish failed: %v", err)
		}
		if seen[token] {
			t.Fatalf("Duplicate token %q", token)
		}
		seen[token] = true
	}
}

func TestSessionEstablishReplacesPriorToken(t *testing.T) {
	ctx := context.Background()
	m := NewSessionManager(memstore.New())

	prior, _ := m.Establish(ctx, "id-1", "")
	next, err := m.Establish(ctx, "id-2", prior)
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	if next == prior {
		t.Fatal("Expected a fresh token")
	}
	if _, err := m.Resolve(ctx, prior); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected prior token to be invalidated, got %v", err)
	}
	if id, _ := m.Resolve(ctx, next); id != "id-2" {
		t.Errorf("Expected new token bound to id-2, got %q", id)
	}
}

func TestSessionTerminate(t *testing.T) {
	ctx := context.Background()
	m := NewSessionManager(memstore.New())
	token, _ := m.Establish(ctx, "id-1", "")

	for _, tok := range []string{token, "never-issued", ""} {
		if err := m.Terminate(ctx, tok); err != nil {
			t.Errorf("Terminate(%q) failed: %v", tok, err)
		}
		if _, err := m.Resolve(ctx, tok); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("Expected Unauthenticated after terminate of %q, got %v", tok, err)
		}
	}
	// Idempotent
	if err := m.Terminate(ctx, token); err != nil {
		t.Errorf("Second terminate failed: %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewSessionManager(memstore.New())
	m.Lifetime = 50 * time.Millisecond

	token, _ := m.Establish(ctx, "id-1", "")
	time.Sleep(100 * time.Millisecond)
	if _, err := m.Resolve(ctx, token); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected expired session to be Unauthenticated, got %v", err)
	}
}

func TestSessionUndecodablePayload(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.Commit("garbage", []byte("not gob"), time.Now().Add(time.Hour))

	m := NewSessionManager(store)
	if _, err := m.Resolve(ctx, "garbage"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected Unauthenticated, got %v", err)
	}
}

func TestSessionStoreFailure(t *testing.T) {
	ctx := context.Background()
	m := NewSessionManager(failingStore{})

	if _, err := m.Establish(ctx, "id-1", ""); !errors.Is(err, errStoreDown) {
		t.Errorf("Expected store error from Establish, got %v", err)
	}
	_, err := m.Resolve(ctx, "tok")
	if !errors.Is(err, errStoreDown) || errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected store error, not Unauthenticated, from Resolve, got %v", err)
	}
}

func TestSessionEstablishRequiresIdentity(t *testing.T) {
	m := NewSessionManager(memstore.New())
	if _, err := m.Establish(context.Background(), "", ""); err == nil {
		t.Error("Expected error for empty identity id")
	}
}
