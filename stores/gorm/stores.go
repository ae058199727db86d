//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	secrets "github.com/panyam/secrets"
)

// AutoMigrate runs database migrations for all tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&IdentityModel{},
		&SessionModel{},
	)
}

// =============================================================================
// IdentityStore
// =============================================================================

// IdentityStore implements secrets.IdentityStore using GORM. Uniqueness of
// usernames and federated ids is left to the database's unique indexes.
type IdentityStore struct {
	db *gorm.DB
}

func NewIdentityStore(db *gorm.DB) *IdentityStore {
	return &IdentityStore{db: db}
}

func (s *IdentityStore) CreateLocal(ctx context.Context, username, passwordHash string) (*secrets.Identity, error) {
	model := &IdentityModel{
		ID:           uuid.NewString(),
		Username:     &username,
		PasswordHash: passwordHash,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		// Drivers report unique violations differently, so check what is there
		if _, findErr := s.FindByUsername(ctx, username); findErr == nil {
			return nil, secrets.ErrDuplicateIdentity
		}
		return nil, err
	}
	return model.ToIdentity(), nil
}

func (s *IdentityStore) FindByUsername(ctx context.Context, username string) (*secrets.Identity, error) {
	return s.first(ctx, "username = ?", username)
}

func (s *IdentityStore) FindByID(ctx context.Context, id string) (*secrets.Identity, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *IdentityStore) FindOrCreateByFederatedID(ctx context.Context, federatedID string) (*secrets.Identity, bool, error) {
	existing, err := s.first(ctx, "federated_id = ?", federatedID)
	if err == nil {
		return existing, false, nil
	} else if !errors.Is(err, secrets.ErrNotFound) {
		return nil, false, err
	}

	model := &IdentityModel{
		ID:          uuid.NewString(),
		FederatedID: &federatedID,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		// Someone else created it between our read and insert
		existing, findErr := s.first(ctx, "federated_id = ?", federatedID)
		if findErr == nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", secrets.ErrConflict, err)
	}
	return model.ToIdentity(), true, nil
}

func (s *IdentityStore) SetProtectedContent(ctx context.Context, id, content string) error {
	result := s.db.WithContext(ctx).Model(&IdentityModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"secret": content, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return secrets.ErrNotFound
	}
	return nil
}

func (s *IdentityStore) ListWithProtectedContent(ctx context.Context) ([]*secrets.Identity, error) {
	var models []IdentityModel
	if err := s.db.WithContext(ctx).Where("secret IS NOT NULL").Order("created_at").Find(&models).Error; err != nil {
		return nil, err
	}

	identities := make([]*secrets.Identity, len(models))
	for i := range models {
		identities[i] = models[i].ToIdentity()
	}
	return identities, nil
}

func (s *IdentityStore) first(ctx context.Context, query string, args ...any) (*secrets.Identity, error) {
	var model IdentityModel
	err := s.db.WithContext(ctx).Where(query, args...).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, secrets.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToIdentity(), nil
}

// =============================================================================
// SessionStore
// =============================================================================

// SessionStore implements scs.Store and scs.CtxStore using GORM
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Find(token string) ([]byte, bool, error) {
	return s.FindCtx(context.Background(), token)
}

func (s *SessionStore) Commit(token string, b []byte, expiry time.Time) error {
	return s.CommitCtx(context.Background(), token, b, expiry)
}

func (s *SessionStore) Delete(token string) error {
	return s.DeleteCtx(context.Background(), token)
}

// FindCtx returns the data for a session that exists and has not expired
func (s *SessionStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	var model SessionModel
	err := s.db.WithContext(ctx).Where("token = ? AND expiry > ?", token, time.Now()).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return model.Data, true, nil
}

func (s *SessionStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	return s.db.WithContext(ctx).Save(&SessionModel{Token: token, Data: b, Expiry: expiry}).Error
}

func (s *SessionStore) DeleteCtx(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Delete(&SessionModel{}, "token = ?", token).Error
}

// DeleteExpired removes expired sessions and returns how many were removed
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Delete(&SessionModel{}, "expiry <= ?", time.Now())
	return result.RowsAffected, result.Error
}
