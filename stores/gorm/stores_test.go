//go:build !wasm
// +build !wasm

package gorm

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	secrets "github.com/panyam/secrets"
	"github.com/panyam/secrets/stores/storetest"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// SQLite allows one writer; a single connection queues writers instead of
	// failing them with SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

func TestIdentityStore(t *testing.T) {
	suite.Run(t, &storetest.IdentityStoreSuite{
		NewStore: func() secrets.IdentityStore { return NewIdentityStore(setupTestDB(t)) },
	})
}

func TestNullableUniqueColumns(t *testing.T) {
	store := NewIdentityStore(setupTestDB(t))
	ctx := t.Context()

	// Federated only identities have no username; several must coexist
	for _, id := range []string{"google:1", "google:2", "google:3"} {
		_, created, err := store.FindOrCreateByFederatedID(ctx, id)
		require.NoError(t, err)
		require.True(t, created)
	}
	// And local ones have no federated id
	_, err := store.CreateLocal(ctx, "alice", "h1")
	require.NoError(t, err)
	_, err = store.CreateLocal(ctx, "bob", "h2")
	require.NoError(t, err)
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore(setupTestDB(t))
	ctx := t.Context()

	require.NoError(t, store.CommitCtx(ctx, "tok", []byte("one"), time.Now().Add(time.Hour)))
	data, found, err := store.FindCtx(ctx, "tok")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("one"), data)

	// Commit replaces the data of an existing token
	require.NoError(t, store.Commit("tok", []byte("two"), time.Now().Add(time.Hour)))
	data, found, err = store.Find("tok")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("two"), data)

	require.NoError(t, store.Delete("tok"))
	_, found, err = store.Find("tok")
	require.NoError(t, err)
	require.False(t, found)

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, store.Commit("old", []byte("x"), time.Now().Add(-time.Minute)))
		require.NoError(t, store.Commit("live", []byte("x"), time.Now().Add(time.Hour)))

		_, found, err := store.Find("old")
		require.NoError(t, err)
		require.False(t, found, "expired sessions are not returned")

		removed, err := store.DeleteExpired(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1), removed)

		_, found, err = store.Find("live")
		require.NoError(t, err)
		require.True(t, found)
	})
}
