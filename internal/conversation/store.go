package conversation

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultSessionTTL is how long an idle session survives before the store
// evicts it. A conversation abandoned mid-workflow simply expires; the next
// input gets a "no active conversation" reply.
const DefaultSessionTTL = 30 * time.Minute

// SessionStore holds live sessions keyed by conversation identity, with TTL
// eviction for abandoned conversations, and hands out the per-identity turn
// lock that serializes turns within one conversation.
//
// Safe for concurrent use across identities.
type SessionStore struct {
	sessions *gocache.Cache

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSessionStore creates a store whose sessions expire after ttl of
// inactivity. ttl <= 0 uses DefaultSessionTTL.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		sessions: gocache.New(ttl, ttl),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Get returns the live session for id, or nil when none exists.
func (s *SessionStore) Get(id string) *Session {
	v, ok := s.sessions.Get(id)
	if !ok {
		return nil
	}
	return v.(*Session)
}

// Put stores sess under its identity, replacing any existing session and
// refreshing its TTL.
func (s *SessionStore) Put(sess *Session) {
	s.sessions.Set(sess.ID, sess, gocache.DefaultExpiration)
}

// Delete removes the session for id, if any.
func (s *SessionStore) Delete(id string) {
	s.sessions.Delete(id)
}

// Lock acquires the turn lock for one conversation identity and returns the
// unlock function. Turns for the same identity are processed strictly one at
// a time; distinct identities never contend.
//
// Lock entries are retained for the life of the process. They are a mutex
// each and conversation identities are few.
func (s *SessionStore) Lock(id string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
