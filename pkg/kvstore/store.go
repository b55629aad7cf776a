// Package kvstore implements the in-memory key-value store with
// per-entry TTLs that backs both the router's affinity map and the
// standalone session store. Each owner holds its own Store instance.
package kvstore

import (
	"sync"
	"time"
)

// Store is a mutex-guarded map whose entries expire after a TTL.
// Expired entries are dropped lazily on read and in bulk by Sweep.
type Store struct {
	entries map[string]entry
	mu      sync.RWMutex
}

type entry struct {
	value      interface{}
	expiration time.Time
}

// expired reports whether the entry is past its deadline. A zero
// expiration means the entry never expires.
func (e entry) expired(now time.Time) bool {
	return !e.expiration.IsZero() && now.After(e.expiration)
}

// deadline converts a TTL into an absolute expiration; non-positive
// TTLs mean no expiration
func deadline(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// New creates an empty store
func New() *Store {
	return &Store{
		entries: make(map[string]entry),
	}
}

// Put stores a value under key, replacing any prior entry. The TTL
// runs from now; a non-positive TTL stores the entry without expiration.
func (s *Store) Put(key string, value interface{}, ttl time.Duration) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{
		value:      value,
		expiration: deadline(now, ttl),
	}
}

// Get retrieves a live value. An expired entry is deleted and reported
// as absent. The entry's expiration is not changed.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists {
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(s.entries, key)
		return nil, false
	}
	return e.value, true
}

// GetTouch retrieves a live value and slides its expiration to
// now+ttl in the same critical section, so concurrent renewals
// cannot lose updates.
func (s *Store) GetTouch(key string, ttl time.Duration) (interface{}, bool) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists {
		return nil, false
	}
	if e.expired(now) {
		delete(s.entries, key)
		return nil, false
	}
	e.expiration = deadline(now, ttl)
	s.entries[key] = e
	return e.value, true
}

// Touch slides a live entry's expiration to now+ttl without reading it
func (s *Store) Touch(key string, ttl time.Duration) bool {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists || e.expired(now) {
		return false
	}
	e.expiration = deadline(now, ttl)
	s.entries[key] = e
	return true
}

// Delete removes an entry, returning whether it was present and live
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists {
		return false
	}
	delete(s.entries, key)
	return !e.expired(time.Now())
}

// DeleteFunc removes every live entry the predicate matches and
// returns the number removed
func (s *Store) DeleteFunc(match func(key string, value interface{}) bool) int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			continue
		}
		if match(k, e.value) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Range calls fn for every live entry. Returning false stops the walk.
// Expired entries encountered along the way are removed.
func (s *Store) Range(fn func(key string, value interface{}) bool) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			continue
		}
		if !fn(k, e.value) {
			return
		}
	}
}

// Sweep removes every expired entry and returns the number removed
func (s *Store) Sweep() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries
func (s *Store) Len() int {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Clear removes all entries
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry)
}
