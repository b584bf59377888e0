package storage

import (
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lehigh-university-libraries/imagepicker/internal/models"
)

// DefaultCapacity bounds the number of live sessions.
const DefaultCapacity = 1024

// SessionStore holds the live picker sessions. The least recently used
// session is evicted when the store is full; evicted and deleted sessions
// are closed so their object URLs are released.
type SessionStore struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, *models.PickerSession]
}

func New(capacity int) (*SessionStore, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.NewWithEvict(capacity, func(id string, session *models.PickerSession) {
		slog.Debug("Closing session", "session_id", id)
		session.Resolver.Close()
	})
	if err != nil {
		return nil, err
	}
	return &SessionStore{sessions: cache}, nil
}

func (s *SessionStore) Get(sessionID string) (*models.PickerSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Get(sessionID)
}

func (s *SessionStore) Set(sessionID string, session *models.PickerSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Add(sessionID, session)
}

func (s *SessionStore) GetAll() map[string]*models.PickerSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.sessions.Keys()
	result := make(map[string]*models.PickerSession, len(keys))
	for _, k := range keys {
		if v, ok := s.sessions.Peek(k); ok {
			result[k] = v
		}
	}
	return result
}

func (s *SessionStore) Delete(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Remove(sessionID)
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Len()
}

// Purge closes and removes every session.
func (s *SessionStore) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Purge()
}
