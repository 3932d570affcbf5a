// Package spacecache provides the process-wide caches spec.md §5 calls for:
// a Space cache and a User cache, refreshed by invalidating the touched key
// after a successful write, plus an opportunistic read-through cache for
// sessions. Each cache below is concrete to its own value type rather than
// a shared generic primitive: Spaces and Users are small write-invalidated
// maps with a TTL backstop, while Sessions additionally bounds its size and
// evicts the entry closest to expiry, since session tokens are bearer
// credentials an unbounded process cache should not accumulate forever.
package spacecache

import (
	"sync"
	"time"

	"github.com/spacenote/spacenote/internal/domain"
)

const (
	spaceTTL          = 5 * time.Minute
	userTTL           = 5 * time.Minute
	sessionTTL        = domain.SessionTTL
	sessionMaxEntries = 10000
)

type spaceEntry struct {
	value     *domain.Space
	expiresAt time.Time
}

// Spaces caches domain.Space by slug. Invalidate must be called immediately
// after any write to a space's stored document; TTL expiry is a backstop,
// not the primary correctness mechanism (see package doc).
type Spaces struct {
	mu      sync.RWMutex
	entries map[string]spaceEntry
	stopCh  chan struct{}
}

func NewSpaces() *Spaces {
	s := &Spaces{entries: make(map[string]spaceEntry), stopCh: make(chan struct{})}
	go s.cleanup()
	return s
}

func (s *Spaces) Get(slug string) (*domain.Space, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[slug]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (s *Spaces) Set(sp *domain.Space) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sp.Slug] = spaceEntry{value: sp, expiresAt: time.Now().Add(spaceTTL)}
}

func (s *Spaces) Invalidate(slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, slug)
}

func (s *Spaces) Stop() { close(s.stopCh) }

func (s *Spaces) cleanup() {
	ticker := time.NewTicker(spaceTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			for slug, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, slug)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

type userEntry struct {
	value     *domain.User
	expiresAt time.Time
}

// Users caches domain.User by username. Most lookups are for access checks
// (ensure_space_member walks Space.Members against usernames), so the cache
// is keyed the same way the access guards address users.
type Users struct {
	mu      sync.RWMutex
	entries map[string]userEntry
	stopCh  chan struct{}
}

func NewUsers() *Users {
	u := &Users{entries: make(map[string]userEntry), stopCh: make(chan struct{})}
	go u.cleanup()
	return u
}

func (u *Users) Get(username string) (*domain.User, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	e, ok := u.entries[username]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (u *Users) Set(user *domain.User) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.entries[user.Username] = userEntry{value: user, expiresAt: time.Now().Add(userTTL)}
}

func (u *Users) Invalidate(username string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.entries, username)
}

func (u *Users) Stop() { close(u.stopCh) }

func (u *Users) cleanup() {
	ticker := time.NewTicker(userTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			u.mu.Lock()
			now := time.Now()
			for username, e := range u.entries {
				if now.After(e.expiresAt) {
					delete(u.entries, username)
				}
			}
			u.mu.Unlock()
		case <-u.stopCh:
			return
		}
	}
}

type sessionEntry struct {
	value     *domain.Session
	expiresAt time.Time
}

// Sessions is a read-through cache over session lookups: a miss calls load
// and caches a found result, so repeated requests bearing the same token
// skip the document store until the entry's TTL lapses or Invalidate is
// called on logout. Unlike Spaces/Users it bounds its size, evicting the
// entry closest to expiry once full.
type Sessions struct {
	mu      sync.Mutex
	entries map[string]sessionEntry
	stopCh  chan struct{}
}

func NewSessions() *Sessions {
	s := &Sessions{entries: make(map[string]sessionEntry), stopCh: make(chan struct{})}
	go s.cleanup()
	return s
}

func (s *Sessions) GetOrLoad(token string, load func() (*domain.Session, bool, error)) (*domain.Session, bool, error) {
	s.mu.Lock()
	if e, ok := s.entries[token]; ok && time.Now().Before(e.expiresAt) {
		s.mu.Unlock()
		return e.value, true, nil
	}
	s.mu.Unlock()

	v, found, err := load()
	if err != nil {
		return nil, false, err
	}
	if found {
		s.mu.Lock()
		if len(s.entries) >= sessionMaxEntries {
			if _, exists := s.entries[token]; !exists {
				s.evictOldestLocked()
			}
		}
		s.entries[token] = sessionEntry{value: v, expiresAt: time.Now().Add(sessionTTL)}
		s.mu.Unlock()
	}
	return v, found, nil
}

// evictOldestLocked removes the entry closest to expiry. Caller must hold mu.
func (s *Sessions) evictOldestLocked() {
	var oldestToken string
	var oldestExpiry time.Time
	for token, e := range s.entries {
		if oldestToken == "" || e.expiresAt.Before(oldestExpiry) {
			oldestToken = token
			oldestExpiry = e.expiresAt
		}
	}
	if oldestToken != "" {
		delete(s.entries, oldestToken)
	}
}

func (s *Sessions) Invalidate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
}

func (s *Sessions) Stop() { close(s.stopCh) }

func (s *Sessions) cleanup() {
	ticker := time.NewTicker(sessionTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			for token, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, token)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}
