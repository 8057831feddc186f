package server

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dharmatimeline/dharmatimeline/internal/observability"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// Store keeps chart sessions in memory. Sessions expire after ttl without
// use and the least recently used one is dropped once size is reached.
type Store struct {
	sessions *expirable.LRU[string, *Session]
	live     atomic.Int64
	metrics  *observability.Collector
}

func NewStore(size int, ttl time.Duration, metrics *observability.Collector) *Store {
	st := &Store{metrics: metrics}
	// The eviction callback runs under the cache lock, so it must not call
	// back into the cache.
	st.sessions = expirable.NewLRU[string, *Session](size, func(_ string, s *Session) {
		s.close()
		st.metrics.SetActiveSessions(int(st.live.Add(-1)))
	}, ttl)
	return st
}

// Create builds a session under a fresh id and stores it.
func (st *Store) Create(build func(id string) *Session) *Session {
	s := build(uuid.NewString())
	st.metrics.SetActiveSessions(int(st.live.Add(1)))
	st.sessions.Add(s.ID, s)
	return s
}

// Get returns the session and refreshes its expiry.
func (st *Store) Get(id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}
	s, ok := st.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	// Re-adding an existing key restarts its ttl without eviction.
	st.sessions.Add(id, s)
	return s, nil
}

func (st *Store) Delete(id string) bool { return st.sessions.Remove(id) }

func (st *Store) Len() int { return st.sessions.Len() }
