package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	secrets "github.com/panyam/secrets"
)

// IdentityStore stores identities as JSON files.
//
// # File Structure
//
//	{StoragePath}/
//	├── identities/
//	│   └── {id}.json          # the identity record
//	└── index/
//	    ├── username/{key}     # contains the id holding that username
//	    └── federated/{key}    # contains the id linked to that provider id
//
// Index keys are base64url encoded so any username or provider id maps to a
// safe filename.
//
// # Concurrency Model
//
// Index entries are created with a hard link, which fails if the entry
// already exists. That makes username and federated id uniqueness hold across
// processes sharing the directory. The record is written before its index
// entry; a writer that loses the race removes its orphaned record. Updates
// to an existing record are serialized within the process and are
// last-write-wins across processes.
type IdentityStore struct {
	StoragePath string

	mu sync.Mutex
}

func NewIdentityStore(storagePath string) *IdentityStore {
	return &IdentityStore{StoragePath: storagePath}
}

func (s *IdentityStore) identityPath(id string) string {
	return filepath.Join(s.StoragePath, "identities", filepath.Base(id)+".json")
}

func (s *IdentityStore) indexPath(kind, key string) string {
	return filepath.Join(s.StoragePath, "index", kind, safeName(key))
}

func (s *IdentityStore) readIdentity(id string) (*secrets.Identity, error) {
	data, err := os.ReadFile(s.identityPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, secrets.ErrNotFound
		}
		return nil, err
	}
	var identity secrets.Identity
	if err := json.Unmarshal(data, (*record)(&identity)); err != nil {
		return nil, fmt.Errorf("corrupt identity %s: %w", id, err)
	}
	return &identity, nil
}

func (s *IdentityStore) writeIdentity(identity *secrets.Identity) error {
	data, err := json.MarshalIndent((*record)(identity), "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(s.identityPath(identity.ID), data)
}

func (s *IdentityStore) lookup(kind, key string) (*secrets.Identity, error) {
	data, err := os.ReadFile(s.indexPath(kind, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, secrets.ErrNotFound
		}
		return nil, err
	}
	return s.readIdentity(strings.TrimSpace(string(data)))
}

// insert writes a new identity and claims its index entry. errExists means
// another identity already holds the key.
func (s *IdentityStore) insert(identity *secrets.Identity, kind, key string) error {
	if err := s.writeIdentity(identity); err != nil {
		return err
	}
	if err := createExclusive(s.indexPath(kind, key), []byte(identity.ID)); err != nil {
		os.Remove(s.identityPath(identity.ID))
		return err
	}
	return nil
}

func (s *IdentityStore) CreateLocal(ctx context.Context, username, passwordHash string) (*secrets.Identity, error) {
	identity := newIdentity()
	identity.Username = username
	identity.PasswordHash = passwordHash

	err := s.insert(identity, "username", username)
	if errors.Is(err, errExists) {
		return nil, secrets.ErrDuplicateIdentity
	} else if err != nil {
		return nil, err
	}
	return identity, nil
}

func (s *IdentityStore) FindByUsername(ctx context.Context, username string) (*secrets.Identity, error) {
	return s.lookup("username", username)
}

func (s *IdentityStore) FindByID(ctx context.Context, id string) (*secrets.Identity, error) {
	return s.readIdentity(id)
}

func (s *IdentityStore) FindOrCreateByFederatedID(ctx context.Context, federatedID string) (*secrets.Identity, bool, error) {
	existing, err := s.lookup("federated", federatedID)
	if err == nil {
		return existing, false, nil
	} else if !errors.Is(err, secrets.ErrNotFound) {
		return nil, false, err
	}

	identity := newIdentity()
	identity.FederatedID = federatedID
	err = s.insert(identity, "federated", federatedID)
	if errors.Is(err, errExists) {
		// Lost the race, the winner's record is already in place
		existing, err = s.lookup("federated", federatedID)
		if err != nil {
			return nil, false, secrets.ErrConflict
		}
		return existing, false, nil
	} else if err != nil {
		return nil, false, err
	}
	return identity, true, nil
}

func (s *IdentityStore) SetProtectedContent(ctx context.Context, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, err := s.readIdentity(id)
	if err != nil {
		return err
	}
	identity.Secret = &content
	identity.UpdatedAt = time.Now()
	return s.writeIdentity(identity)
}

func (s *IdentityStore) ListWithProtectedContent(ctx context.Context) ([]*secrets.Identity, error) {
	dir := filepath.Join(s.StoragePath, "identities")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*secrets.Identity{}, nil
		}
		return nil, err
	}

	out := []*secrets.Identity{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		identity, err := s.readIdentity(strings.TrimSuffix(name, ".json"))
		if err != nil {
			// Removed by a losing writer between ReadDir and here
			continue
		}
		if identity.HasSecret() {
			out = append(out, identity)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// record is the on-disk form. Identity hides the password hash from JSON
// responses, but it has to be persisted here.
type record secrets.Identity

func (r *record) MarshalJSON() ([]byte, error) {
	type plain record
	return json.Marshal(&struct {
		*plain
		PasswordHash string `json:"password_hash,omitempty"`
	}{plain: (*plain)(r), PasswordHash: r.PasswordHash})
}

func (r *record) UnmarshalJSON(data []byte) error {
	type plain record
	aux := &struct {
		*plain
		PasswordHash string `json:"password_hash,omitempty"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	r.PasswordHash = aux.PasswordHash
	return nil
}

func newIdentity() *secrets.Identity {
	now := time.Now()
	return &secrets.Identity{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
}
