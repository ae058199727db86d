// Package memory keeps identities in process memory. It is meant for tests
// and single instance demos; everything is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	secrets "github.com/panyam/secrets"
)

type IdentityStore struct {
	mu          sync.RWMutex
	byID        map[string]*secrets.Identity
	byUsername  map[string]string
	byFederated map[string]string
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		byID:        map[string]*secrets.Identity{},
		byUsername:  map[string]string{},
		byFederated: map[string]string{},
	}
}

func (s *IdentityStore) CreateLocal(ctx context.Context, username, passwordHash string) (*secrets.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byUsername[username]; exists {
		return nil, secrets.ErrDuplicateIdentity
	}
	identity := newIdentity()
	identity.Username = username
	identity.PasswordHash = passwordHash
	s.byID[identity.ID] = identity
	s.byUsername[username] = identity.ID
	return clone(identity), nil
}

func (s *IdentityStore) FindByUsername(ctx context.Context, username string) (*secrets.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[username]
	if !ok {
		return nil, secrets.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *IdentityStore) FindByID(ctx context.Context, id string) (*secrets.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.byID[id]
	if !ok {
		return nil, secrets.ErrNotFound
	}
	return clone(identity), nil
}

func (s *IdentityStore) FindOrCreateByFederatedID(ctx context.Context, federatedID string) (*secrets.Identity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byFederated[federatedID]; ok {
		return clone(s.byID[id]), false, nil
	}
	identity := newIdentity()
	identity.FederatedID = federatedID
	s.byID[identity.ID] = identity
	s.byFederated[federatedID] = identity.ID
	return clone(identity), true, nil
}

func (s *IdentityStore) SetProtectedContent(ctx context.Context, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return secrets.ErrNotFound
	}
	identity.Secret = &content
	identity.UpdatedAt = time.Now()
	return nil
}

func (s *IdentityStore) ListWithProtectedContent(ctx context.Context) ([]*secrets.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*secrets.Identity{}
	for _, identity := range s.byID {
		if identity.HasSecret() {
			out = append(out, clone(identity))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func newIdentity() *secrets.Identity {
	now := time.Now()
	return &secrets.Identity{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
}

// clone keeps callers from mutating stored records
func clone(identity *secrets.Identity) *secrets.Identity {
	out := *identity
	if identity.Secret != nil {
		secret := *identity.Secret
		out.Secret = &secret
	}
	return &out
}
