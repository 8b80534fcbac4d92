// Package dedup implements a TTL-bounded seen-store over post
// fingerprints. Reposts and cross-source duplicates inside the TTL are
// dropped before classification.
package dedup

import (
	"sync"
	"time"
)

// Store tracks recently seen fingerprint keys. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxKeys int
	seen    map[string]time.Time // key -> expiry
	now     func() time.Time
}

// NewStore creates a Store. Non-positive arguments fall back to defaults
// of 10000 keys and 24h.
func NewStore(maxKeys int, ttl time.Duration) *Store {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		ttl:     ttl,
		maxKeys: maxKeys,
		seen:    make(map[string]time.Time, maxKeys),
		now:     time.Now,
	}
}

// Seen reports whether key was marked within the TTL. Expired entries are
// removed on probe.
func (s *Store) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.seen[key]
	if !ok {
		return false
	}
	if s.now().After(exp) {
		delete(s.seen, key)
		return false
	}
	return true
}

// Mark records key for the TTL, extending it if already present. When the
// store is over capacity, expired entries are swept first and the entries
// closest to expiry are evicted if sweeping is not enough.
func (s *Store) Mark(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.seen[key] = now.Add(s.ttl)

	if len(s.seen) <= s.maxKeys {
		return
	}

	// Sweep expired entries.
	for k, exp := range s.seen {
		if now.After(exp) {
			delete(s.seen, k)
		}
	}

	// Still over cap: evict the soonest-to-expire entries. Map iteration
	// order is fine here; we only need the store bounded, not exact LRU.
	for len(s.seen) > s.maxKeys {
		var oldestKey string
		var oldestExp time.Time
		for k, exp := range s.seen {
			if oldestKey == "" || exp.Before(oldestExp) {
				oldestKey, oldestExp = k, exp
			}
		}
		delete(s.seen, oldestKey)
	}
}

// Len returns the number of tracked keys, including not-yet-swept expired
// entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
