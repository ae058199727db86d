//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	secrets "github.com/panyam/secrets"
)

// IdentityModel is the GORM model for identities
type IdentityModel struct {
	ID           string    `gorm:"primaryKey;size:64"`
	Username     *string   `gorm:"size:255;uniqueIndex"`
	PasswordHash string    `gorm:"size:255"`
	FederatedID  *string   `gorm:"size:320;uniqueIndex"`
	Secret       *string   `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (IdentityModel) TableName() string {
	return "identities"
}

func (m *IdentityModel) ToIdentity() *secrets.Identity {
	out := &secrets.Identity{
		ID:           m.ID,
		PasswordHash: m.PasswordHash,
		Secret:       m.Secret,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.Username != nil {
		out.Username = *m.Username
	}
	if m.FederatedID != nil {
		out.FederatedID = *m.FederatedID
	}
	return out
}

// SessionModel is the GORM model for sessions, laid out like the table the
// scs SQL stores use.
type SessionModel struct {
	Token  string    `gorm:"primaryKey;size:64"`
	Data   []byte    `gorm:"not null"`
	Expiry time.Time `gorm:"index;not null"`
}

func (SessionModel) TableName() string {
	return "sessions"
}
