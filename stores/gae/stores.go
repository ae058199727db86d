//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	secrets "github.com/panyam/secrets"
)

// Kind constants for Datastore entities
const (
	KindIdentity    = "Identity"
	KindUsername    = "Username"
	KindFederatedID = "FederatedID"
)

// errTaken aborts a transaction whose index entry already exists
var errTaken = errors.New("index entry taken")

// IdentityStore implements secrets.IdentityStore using Google Cloud Datastore
type IdentityStore struct {
	client    *datastore.Client
	namespace string
}

// NewIdentityStore creates a new Datastore-backed IdentityStore
func NewIdentityStore(client *datastore.Client, namespace string) *IdentityStore {
	return &IdentityStore{client: client, namespace: namespace}
}

func (s *IdentityStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *IdentityStore) CreateLocal(ctx context.Context, username, passwordHash string) (*secrets.Identity, error) {
	now := time.Now()
	entity := &IdentityEntity{
		Key:          s.namespacedKey(KindIdentity, uuid.NewString()),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.insert(ctx, entity, s.namespacedKey(KindUsername, username))
	if errors.Is(err, errTaken) {
		return nil, secrets.ErrDuplicateIdentity
	} else if err != nil {
		return nil, err
	}
	return entity.ToIdentity(), nil
}

func (s *IdentityStore) FindByUsername(ctx context.Context, username string) (*secrets.Identity, error) {
	return s.lookup(ctx, s.namespacedKey(KindUsername, username))
}

func (s *IdentityStore) FindByID(ctx context.Context, id string) (*secrets.Identity, error) {
	var entity IdentityEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindIdentity, id), &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, secrets.ErrNotFound
		}
		return nil, err
	}
	return entity.ToIdentity(), nil
}

func (s *IdentityStore) FindOrCreateByFederatedID(ctx context.Context, federatedID string) (*secrets.Identity, bool, error) {
	indexKey := s.namespacedKey(KindFederatedID, federatedID)
	existing, err := s.lookup(ctx, indexKey)
	if err == nil {
		return existing, false, nil
	} else if !errors.Is(err, secrets.ErrNotFound) {
		return nil, false, err
	}

	now := time.Now()
	entity := &IdentityEntity{
		Key:         s.namespacedKey(KindIdentity, uuid.NewString()),
		FederatedID: federatedID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.insert(ctx, entity, indexKey)
	if errors.Is(err, errTaken) {
		existing, err = s.lookup(ctx, indexKey)
		if err != nil {
			return nil, false, secrets.ErrConflict
		}
		return existing, false, nil
	} else if errors.Is(err, datastore.ErrConcurrentTransaction) {
		return nil, false, secrets.ErrConflict
	} else if err != nil {
		return nil, false, err
	}
	return entity.ToIdentity(), true, nil
}

func (s *IdentityStore) SetProtectedContent(ctx context.Context, id, content string) error {
	key := s.namespacedKey(KindIdentity, id)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity IdentityEntity
		if err := tx.Get(key, &entity); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return secrets.ErrNotFound
			}
			return err
		}
		entity.HasSecret = true
		entity.Secret = content
		entity.UpdatedAt = time.Now()
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}

func (s *IdentityStore) ListWithProtectedContent(ctx context.Context) ([]*secrets.Identity, error) {
	query := datastore.NewQuery(KindIdentity).
		FilterField("has_secret", "=", true)
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	identities := []*secrets.Identity{}
	it := s.client.Run(ctx, query)
	for {
		var entity IdentityEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		identities = append(identities, entity.ToIdentity())
	}
	sort.Slice(identities, func(i, j int) bool { return identities[i].CreatedAt.Before(identities[j].CreatedAt) })
	return identities, nil
}

// insert puts entity and its index entry in one transaction, failing with
// errTaken if the index entry exists.
func (s *IdentityStore) insert(ctx context.Context, entity *IdentityEntity, indexKey *datastore.Key) error {
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var index IndexEntity
		err := tx.Get(indexKey, &index)
		if err == nil {
			return errTaken
		} else if err != datastore.ErrNoSuchEntity {
			return err
		}

		index = IndexEntity{IdentityID: entity.Key.Name, CreatedAt: entity.CreatedAt}
		if _, err := tx.Put(indexKey, &index); err != nil {
			return err
		}
		_, err = tx.Put(entity.Key, entity)
		return err
	})
	if err != nil && !errors.Is(err, errTaken) {
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	return err
}

func (s *IdentityStore) lookup(ctx context.Context, indexKey *datastore.Key) (*secrets.Identity, error) {
	var index IndexEntity
	if err := s.client.Get(ctx, indexKey, &index); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, secrets.ErrNotFound
		}
		return nil, err
	}
	return s.FindByID(ctx, index.IdentityID)
}
