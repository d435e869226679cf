package server

import (
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gyeh/readmitstats/internal/analysis"
)

// DefaultSessionLimit bounds the number of sessions kept in memory.
const DefaultSessionLimit = 1024

// SessionStore keeps analysis sessions keyed by id. The least recently used
// session is evicted once the limit is reached; an evicted session starts over
// with universal scope.
type SessionStore struct {
	cache *lru.Cache[uuid.UUID, analysis.Session]
}

// NewSessionStore returns a store holding at most limit sessions.
func NewSessionStore(limit int) (*SessionStore, error) {
	if limit <= 0 {
		limit = DefaultSessionLimit
	}
	cache, err := lru.New[uuid.UUID, analysis.Session](limit)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}
	return &SessionStore{cache: cache}, nil
}

// Load returns the session for id. Unknown ids get a fresh session that keeps
// the id.
func (s *SessionStore) Load(id uuid.UUID) analysis.Session {
	if id == uuid.Nil {
		return analysis.NewSession()
	}
	if sess, ok := s.cache.Get(id); ok {
		return sess
	}
	return analysis.Session{ID: id}
}

// Save stores sess under its id.
func (s *SessionStore) Save(sess analysis.Session) {
	s.cache.Add(sess.ID, sess)
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int { return s.cache.Len() }
