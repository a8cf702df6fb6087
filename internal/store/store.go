package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mmcdole/handy/internal/domain"
	bolt "go.etcd.io/bbolt"
)

var bucketSession = []byte("session")

// Fixed key names inside the session bucket
const (
	KeyAuthToken   = "auth_token"
	KeyUserProfile = "user_profile"
)

// SessionStore implements domain.SessionStore using BoltDB. Reads are
// served from memory after the first load; the request-signing client
// calls Token on every request.
type SessionStore struct {
	db *bolt.DB

	mu     sync.RWMutex
	values map[string][]byte
}

var _ domain.SessionStore = (*SessionStore)(nil)

// NewSessionStore opens (or creates) the session database at path.
// An empty path keeps the session in memory only.
func NewSessionStore(path string) (*SessionStore, error) {
	s := &SessionStore{values: make(map[string][]byte)}
	if path == "" {
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketSession)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			s.values[string(k)] = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	s.db = db
	return s, nil
}

func (s *SessionStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SessionStore) get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Token returns the bearer token
func (s *SessionStore) Token() (string, bool) {
	v, ok := s.get(KeyAuthToken)
	if !ok || len(v) == 0 {
		return "", false
	}
	return string(v), true
}

// Profile returns the stored user profile
func (s *SessionStore) Profile() (*domain.User, bool) {
	v, ok := s.get(KeyUserProfile)
	if !ok {
		return nil, false
	}
	var u domain.User
	if err := json.Unmarshal(v, &u); err != nil {
		return nil, false
	}
	return &u, true
}

// Save stores token and profile in one transaction
func (s *SessionStore) Save(token string, user domain.User) error {
	profile, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		err := s.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketSession)
			if err := b.Put([]byte(KeyAuthToken), []byte(token)); err != nil {
				return err
			}
			return b.Put([]byte(KeyUserProfile), profile)
		})
		if err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
	}
	s.values[KeyAuthToken] = []byte(token)
	s.values[KeyUserProfile] = profile
	return nil
}

// Clear removes everything in the session bucket
func (s *SessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		err := s.db.Update(func(tx *bolt.Tx) error {
			if err := tx.DeleteBucket(bucketSession); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
			_, err := tx.CreateBucket(bucketSession)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to clear session: %w", err)
		}
	}
	s.values = make(map[string][]byte)
	return nil
}
