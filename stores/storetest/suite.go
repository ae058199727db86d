// Package storetest holds the behaviour every IdentityStore must share.
// Backends embed IdentityStoreSuite in their own tests and set NewStore.
package storetest

import (
	"context"
	"sync"

	secrets "github.com/panyam/secrets"
	"github.com/stretchr/testify/suite"
)

type IdentityStoreSuite struct {
	suite.Suite

	// NewStore returns an empty store. Called before every test.
	NewStore func() secrets.IdentityStore

	Store secrets.IdentityStore
	ctx   context.Context
}

func (s *IdentityStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.Store = s.NewStore()
}

func (s *IdentityStoreSuite) TestCreateLocalAndFind() {
	created, err := s.Store.CreateLocal(s.ctx, "alice", "hash-a")
	s.Require().NoError(err)
	s.NotEmpty(created.ID)
	s.Equal("alice", created.Username)
	s.Equal("hash-a", created.PasswordHash)
	s.False(created.HasSecret())

	byName, err := s.Store.FindByUsername(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(created.ID, byName.ID)
	s.Equal("hash-a", byName.PasswordHash)

	byID, err := s.Store.FindByID(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal("alice", byID.Username)
}

func (s *IdentityStoreSuite) TestDuplicateUsername() {
	_, err := s.Store.CreateLocal(s.ctx, "bob", "hash-1")
	s.Require().NoError(err)

	_, err = s.Store.CreateLocal(s.ctx, "bob", "hash-2")
	s.ErrorIs(err, secrets.ErrDuplicateIdentity)

	existing, err := s.Store.FindByUsername(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal("hash-1", existing.PasswordHash, "the first credential must survive")
}

func (s *IdentityStoreSuite) TestNotFound() {
	_, err := s.Store.FindByUsername(s.ctx, "nobody")
	s.ErrorIs(err, secrets.ErrNotFound)

	_, err = s.Store.FindByID(s.ctx, "no-such-id")
	s.ErrorIs(err, secrets.ErrNotFound)

	err = s.Store.SetProtectedContent(s.ctx, "no-such-id", "x")
	s.ErrorIs(err, secrets.ErrNotFound)
}

func (s *IdentityStoreSuite) TestFindOrCreateByFederatedID() {
	key := secrets.FederatedKey("google", "109876")

	first, created, err := s.Store.FindOrCreateByFederatedID(s.ctx, key)
	s.Require().NoError(err)
	s.True(created)
	s.Equal(key, first.FederatedID)
	s.Empty(first.Username)
	s.False(first.HasLocalCredential())

	second, created, err := s.Store.FindOrCreateByFederatedID(s.ctx, key)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.ID, second.ID)

	other, created, err := s.Store.FindOrCreateByFederatedID(s.ctx, secrets.FederatedKey("github", "109876"))
	s.Require().NoError(err)
	s.True(created)
	s.NotEqual(first.ID, other.ID, "ids from different providers are different identities")
}

func (s *IdentityStoreSuite) TestConcurrentFederatedCreate() {
	key := secrets.FederatedKey("google", "race")
	const workers = 8

	var wg sync.WaitGroup
	ids := make([]string, workers)
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Stores may report a lost race as ErrConflict; a retry must settle it.
			for attempt := 0; attempt < 3; attempt++ {
				identity, _, err := s.Store.FindOrCreateByFederatedID(s.ctx, key)
				errs[i] = err
				if err == nil {
					ids[i] = identity.ID
					return
				}
			}
		}(i)
	}
	wg.Wait()

	for i := range workers {
		s.Require().NoError(errs[i])
		s.Equal(ids[0], ids[i])
	}
}

func (s *IdentityStoreSuite) TestProtectedContent() {
	alice, err := s.Store.CreateLocal(s.ctx, "alice", "hash-a")
	s.Require().NoError(err)
	_, err = s.Store.CreateLocal(s.ctx, "carol", "hash-c")
	s.Require().NoError(err)

	listed, err := s.Store.ListWithProtectedContent(s.ctx)
	s.Require().NoError(err)
	s.Empty(listed)

	s.Require().NoError(s.Store.SetProtectedContent(s.ctx, alice.ID, "first"))
	s.Require().NoError(s.Store.SetProtectedContent(s.ctx, alice.ID, "I like cats"))

	reloaded, err := s.Store.FindByID(s.ctx, alice.ID)
	s.Require().NoError(err)
	s.Require().True(reloaded.HasSecret())
	s.Equal("I like cats", *reloaded.Secret)
	s.Equal("hash-a", reloaded.PasswordHash, "setting content must not touch the credential")

	listed, err = s.Store.ListWithProtectedContent(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(alice.ID, listed[0].ID)
	s.Equal("I like cats", *listed[0].Secret)
}

func (s *IdentityStoreSuite) TestEmptyContentIsListed() {
	alice, err := s.Store.CreateLocal(s.ctx, "alice", "hash-a")
	s.Require().NoError(err)
	s.Require().NoError(s.Store.SetProtectedContent(s.ctx, alice.ID, ""))

	listed, err := s.Store.ListWithProtectedContent(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal("", *listed[0].Secret)
}
