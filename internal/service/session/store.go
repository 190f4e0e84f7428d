package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/askmore/backend/internal/metrics"
	"github.com/zhouzirui/askmore/backend/internal/model/session"
)

// DefaultTTL is how long a session accepts answers after creation.
const DefaultTTL = 24 * time.Hour

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionExists   = errors.New("session already exists")
)

// Store keeps sessions in memory and evicts them once their TTL has elapsed.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithStoreLogger sets the logger used by the janitor.
func WithStoreLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore builds an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		sessions: make(map[string]session.Session),
		ttl:      DefaultTTL,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured session lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Now returns the store clock reading.
func (s *Store) Now() time.Time { return s.now() }

// Insert adds a new session.
func (s *Store) Insert(sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; ok {
		return ErrSessionExists
	}
	s.sessions[sess.ID] = sess.Clone()
	metrics.SessionsActive.Set(float64(len(s.sessions)))
	return nil
}

// Get returns a copy of the session. An expired entry is evicted and reported
// as ErrSessionExpired together with its final snapshot in StatusExpired;
// later lookups then see ErrSessionNotFound.
func (s *Store) Get(id string) (session.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return session.Session{}, ErrSessionNotFound
	}
	if sess.ExpiredAt(s.now(), s.ttl) {
		s.mu.Lock()
		s.evictLocked(id)
		s.mu.Unlock()
		expired := sess.Clone()
		expired.Status = session.StatusExpired
		return expired, ErrSessionExpired
	}
	return sess.Clone(), nil
}

// Update applies fn to a copy of the session under the store lock and stores
// the result when fn returns nil. The returned session is what was stored.
func (s *Store) Update(id string, fn func(*session.Session) error) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return session.Session{}, ErrSessionNotFound
	}
	if sess.ExpiredAt(s.now(), s.ttl) {
		s.evictLocked(id)
		return session.Session{}, ErrSessionExpired
	}

	working := sess.Clone()
	if err := fn(&working); err != nil {
		return session.Session{}, err
	}
	s.sessions[id] = working
	return working.Clone(), nil
}

// Delete removes a session. It reports whether one was present.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	metrics.SessionsActive.Set(float64(len(s.sessions)))
	return true
}

// Len returns the number of stored sessions, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep evicts every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.ExpiredAt(now, s.ttl) {
			s.evictLocked(id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx ends. A non-positive interval
// returns immediately.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Info("expired sessions swept", zap.Int("removed", n), zap.Int("remaining", s.Len()))
			}
		}
	}
}

func (s *Store) evictLocked(id string) {
	if _, ok := s.sessions[id]; !ok {
		return
	}
	delete(s.sessions, id)
	metrics.SessionsExpired.Inc()
	metrics.SessionsActive.Set(float64(len(s.sessions)))
}
