package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// SessionStore is an scs.Store keeping one JSON file per session. Files are
// named after a hash of the token, so the directory listing does not leak
// usable tokens.
type SessionStore struct {
	StoragePath string
}

type sessionFile struct {
	Data   []byte    `json:"data"`
	Expiry time.Time `json:"expiry"`
}

func NewSessionStore(storagePath string) *SessionStore {
	return &SessionStore{StoragePath: storagePath}
}

func (s *SessionStore) sessionPath(token string) string {
	sum := sha256.Sum256([]byte(token))
	return filepath.Join(s.StoragePath, "sessions", hex.EncodeToString(sum[:])+".json")
}

// Find returns the session data for token. Expired sessions are reported as
// missing and left on disk for DeleteExpired, so a read never writes.
func (s *SessionStore) Find(token string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.sessionPath(token))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var session sessionFile
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, false, err
	}
	if time.Now().After(session.Expiry) {
		return nil, false, nil
	}
	return session.Data, true, nil
}

func (s *SessionStore) Commit(token string, b []byte, expiry time.Time) error {
	data, err := json.Marshal(sessionFile{Data: b, Expiry: expiry})
	if err != nil {
		return err
	}
	path := s.sessionPath(token)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}

func (s *SessionStore) Delete(token string) error {
	err := os.Remove(s.sessionPath(token))
	if os.IsNotExist(err) {
		return nil // Already deleted
	}
	return err
}

// DeleteExpired removes every expired session file
func (s *SessionStore) DeleteExpired() error {
	dir := filepath.Join(s.StoragePath, "sessions")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var session sessionFile
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}
		if now.After(session.Expiry) {
			_ = os.Remove(path)
		}
	}
	return nil
}
