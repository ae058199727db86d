package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	secrets "github.com/panyam/secrets"
	"github.com/panyam/secrets/config"
	"github.com/panyam/secrets/stores/fs"
	"github.com/panyam/secrets/stores/gae"
	gormstore "github.com/panyam/secrets/stores/gorm"
	"github.com/panyam/secrets/stores/memory"
	redisstore "github.com/panyam/secrets/stores/redis"
)

// backends holds what the stores opened so main can close it on shutdown
type backends struct {
	db      *gorm.DB
	closers []func() error
}

func (b *backends) openDB(cfg *config.Config) (*gorm.DB, error) {
	if b.db != nil {
		return b.db, nil
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		b.closers = append(b.closers, sqlDB.Close)
	}
	b.db = db
	return db, nil
}

func (b *backends) identityStore(ctx context.Context, cfg *config.Config) (secrets.IdentityStore, error) {
	switch cfg.IdentityStore {
	case "memory":
		slog.Warn("identities are kept in memory and lost on restart")
		return memory.NewIdentityStore(), nil
	case "postgres":
		db, err := b.openDB(cfg)
		if err != nil {
			return nil, err
		}
		return gormstore.NewIdentityStore(db), nil
	case "datastore":
		client, err := datastore.NewClient(ctx, cfg.DatastoreProject)
		if err != nil {
			return nil, fmt.Errorf("failed to create datastore client: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		return gae.NewIdentityStore(client, cfg.DatastoreNamespace), nil
	default:
		return fs.NewIdentityStore(cfg.StoragePath), nil
	}
}

// expirer is implemented by session stores that need periodic cleanup
type expirer func(ctx context.Context) error

func (b *backends) sessionStore(ctx context.Context, cfg *config.Config) (scs.Store, expirer, error) {
	switch cfg.SessionStore {
	case "fs":
		store := fs.NewSessionStore(filepath.Clean(cfg.StoragePath))
		return store, func(ctx context.Context) error { return store.DeleteExpired() }, nil
	case "redis":
		client, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		b.closers = append(b.closers, client.Close)
		return redisstore.NewSessionStore(client), nil, nil
	case "postgres":
		db, err := b.openDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		store := gormstore.NewSessionStore(db)
		return store, func(ctx context.Context) error {
			n, err := store.DeleteExpired(ctx)
			if n > 0 {
				slog.Debug("expired sessions removed", "count", n)
			}
			return err
		}, nil
	default:
		return memstore.New(), nil, nil
	}
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			slog.Warn("error closing backend", "err", err)
		}
	}
}

// runExpirer calls expire every interval until ctx is done
func runExpirer(ctx context.Context, expire expirer, interval time.Duration) {
	if expire == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := expire(ctx); err != nil {
				slog.Warn("session cleanup failed", "err", err)
			}
		}
	}
}
