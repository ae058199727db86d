package secrets_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alexedwards/scs/v2/memstore"
	"golang.org/x/crypto/bcrypt"

	secrets "github.com/panyam/secrets"
	"github.com/panyam/secrets/stores/fs"
	"github.com/panyam/secrets/stores/memory"
)

// newTestService wires a service over fs identities in a temp dir
func newTestService(t *testing.T) *secrets.Service {
	t.Helper()
	store := fs.NewIdentityStore(t.TempDir())
	return newTestServiceWithStore(store)
}

func newTestServiceWithStore(store secrets.IdentityStore) *secrets.Service {
	service := &secrets.Service{
		Store:         store,
		Sessions:      secrets.NewSessionManager(memstore.New()),
		Authenticator: &secrets.Authenticator{Store: store, Cost: bcrypt.MinCost},
	}
	return service.EnsureDefaults()
}

func TestRegisterAndVerify(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)
	auth := service.Authenticator

	identity, err := auth.Register(ctx, "alice", "p@ss1")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if identity.PasswordHash == "" || identity.PasswordHash == "p@ss1" {
		t.Fatalf("Expected a hashed password, got %q", identity.PasswordHash)
	}
	if !strings.HasPrefix(identity.PasswordHash, "$2") {
		t.Errorf("Expected a bcrypt hash, got %q", identity.PasswordHash)
	}

	verified, err := auth.Verify(ctx, "alice", "p@ss1")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if verified.ID != identity.ID {
		t.Errorf("Expected same identity %s, got %s", identity.ID, verified.ID)
	}

	// Surrounding whitespace in the username is ignored on both paths
	if _, err := auth.Verify(ctx, " alice ", "p@ss1"); err != nil {
		t.Errorf("Expected trimmed username to verify: %v", err)
	}
}

func TestRegisterSaltsEachHash(t *testing.T) {
	ctx := context.Background()
	auth := newTestService(t).Authenticator

	a, _ := auth.Register(ctx, "alice", "same-password")
	b, _ := auth.Register(ctx, "bob", "same-password")
	if a.PasswordHash == b.PasswordHash {
		t.Error("Expected different hashes for the same password")
	}
}

func TestRegisterRejects(t *testing.T) {
	ctx := context.Background()
	auth := newTestService(t).Authenticator
	if _, err := auth.Register(ctx, "alice", "p@ss1"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{"EmptyUsername", "", "p@ss1", secrets.ErrInvalidInput},
		{"EmptyPassword", "carol", "", secrets.ErrInvalidInput},
		{"Duplicate", "alice", "other", secrets.ErrDuplicateIdentity},
		{"DuplicateAfterTrim", "  alice", "other", secrets.ErrDuplicateIdentity},
		{"TooLongForBcrypt", "dave", strings.Repeat("x", 100), secrets.ErrInvalidInput},
		{"UsernameTooLong", strings.Repeat("a", secrets.MaxUsernameLength+1), "p@ss1", secrets.ErrInvalidInput},
		{"UsernameFarTooLong", strings.Repeat("a", 4096), "p@ss1", secrets.ErrInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := auth.Register(ctx, tc.username, tc.password)
			if !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}

	longest := strings.Repeat("b", secrets.MaxUsernameLength)
	if _, err := auth.Register(ctx, longest, "p@ss1"); err != nil {
		t.Errorf("Expected a username of exactly the maximum length to register: %v", err)
	}
	if _, err := auth.Verify(ctx, longest, "p@ss1"); err != nil {
		t.Errorf("Expected the longest username to verify: %v", err)
	}

	// The original credential is untouched by the rejected duplicate
	if _, err := auth.Verify(ctx, "alice", "p@ss1"); err != nil {
		t.Errorf("Expected original password to still verify: %v", err)
	}
}

func TestVerifyFailuresAreUniform(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)
	auth := service.Authenticator
	auth.Register(ctx, "alice", "p@ss1")

	// A federated only identity has no username, so an empty username must not match it
	service.Federated.Resolve(ctx, "google", "109876")

	cases := map[string][2]string{
		"WrongPassword":   {"alice", "wrong"},
		"UnknownUsername": {"mallory", "p@ss1"},
		"EmptyUsername":   {"", "p@ss1"},
		"EmptyPassword":   {"alice", ""},
		"LongUsername":    {strings.Repeat("a", secrets.MaxUsernameLength+1), "p@ss1"},
		"HugeUsername":    {strings.Repeat("a", 4096), "p@ss1"},
	}
	var messages []string
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			identity, err := auth.Verify(ctx, c[0], c[1])
			if identity != nil {
				t.Error("Expected no identity on failure")
			}
			if err != secrets.ErrAuthFailure {
				t.Errorf("Expected exactly ErrAuthFailure, got %#v", err)
			}
			messages = append(messages, err.Error())
		})
	}
	for _, m := range messages {
		if m != messages[0] {
			t.Errorf("Failure messages differ: %q vs %q", m, messages[0])
		}
	}
}

// conflictingStore loses the first few find-or-create races
type conflictingStore struct {
	secrets.IdentityStore
	conflicts atomic.Int32
}

func (s *conflictingStore) FindOrCreateByFederatedID(ctx context.Context, federatedID string) (*secrets.Identity, bool, error) {
	if s.conflicts.Add(-1) >= 0 {
		return nil, false, secrets.ErrConflict
	}
	return s.IdentityStore.FindOrCreateByFederatedID(ctx, federatedID)
}

// countingStore counts identities created through federation
type countingStore struct {
	secrets.IdentityStore
	created atomic.Int32
}

func (s *countingStore) FindOrCreateByFederatedID(ctx context.Context, federatedID string) (*secrets.Identity, bool, error) {
	identity, created, err := s.IdentityStore.FindOrCreateByFederatedID(ctx, federatedID)
	if created {
		s.created.Add(1)
	}
	return identity, created, err
}

func TestFederatedResolve(t *testing.T) {
	ctx := context.Background()
	resolver := newTestService(t).Federated

	first, err := resolver.Resolve(ctx, "google", "109876")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if first.FederatedID != "google:109876" {
		t.Errorf("Expected provider qualified id, got %q", first.FederatedID)
	}
	if first.HasLocalCredential() {
		t.Error("Federated identity must not get a local credential")
	}

	again, err := resolver.Resolve(ctx, "google", "109876")
	if err != nil {
		t.Fatalf("Second resolve failed: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("Expected same identity, got %s and %s", first.ID, again.ID)
	}

	for _, bad := range [][2]string{{"google", ""}, {"google", "  "}, {"", "109876"}} {
		if _, err := resolver.Resolve(ctx, bad[0], bad[1]); !errors.Is(err, secrets.ErrFederationFailed) {
			t.Errorf("Resolve(%q, %q): expected ErrFederationFailed, got %v", bad[0], bad[1], err)
		}
	}
}

func TestFederatedResolveDoesNotMergeWithLocal(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)
	local, _ := service.Authenticator.Register(ctx, "109876", "p@ss1")

	federated, err := service.Federated.Resolve(ctx, "google", "109876")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if federated.ID == local.ID {
		t.Error("A provider id must never resolve to a local identity")
	}
}

func TestFederatedResolveRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	store := &conflictingStore{IdentityStore: memory.NewIdentityStore()}
	resolver := &secrets.FederatedResolver{Store: store, MaxAttempts: 3}

	store.conflicts.Store(2)
	if _, err := resolver.Resolve(ctx, "google", "1"); err != nil {
		t.Fatalf("Expected two conflicts to be retried, got %v", err)
	}

	store.conflicts.Store(3)
	_, err := resolver.Resolve(ctx, "google", "2")
	if !errors.Is(err, secrets.ErrConflict) {
		t.Errorf("Expected ErrConflict once attempts run out, got %v", err)
	}
}

func TestFederatedResolveConcurrent(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{IdentityStore: fs.NewIdentityStore(t.TempDir())}
	resolver := &secrets.FederatedResolver{Store: store}

	const n = 16
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			identity, err := resolver.Resolve(ctx, "google", "race")
			errs[i] = err
			if identity != nil {
				ids[i] = identity.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range n {
		if errs[i] != nil {
			t.Fatalf("Resolve %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("Resolve %d returned %s, want %s", i, ids[i], ids[0])
		}
	}
	if created := store.created.Load(); created != 1 {
		t.Errorf("Expected exactly one identity to be created, got %d", created)
	}
}
