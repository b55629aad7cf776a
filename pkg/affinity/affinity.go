// Package affinity keeps the router's sticky-session map. Entries are
// written with a fixed TTL and are never extended by reads; a key is
// re-bound only when fresh routing replaces its mapping.
package affinity

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/loadpilot/loadpilot/pkg/kvstore"
)

// Store maps session keys to instance ids with TTL eviction
type Store struct {
	kv  *kvstore.Store
	ttl time.Duration
}

// NewStore creates an affinity store whose bindings live for ttl
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{
		kv:  kvstore.New(),
		ttl: ttl,
	}
}

// Bind maps the session key to the instance, restarting the TTL
func (s *Store) Bind(sessionKey, instanceID string) {
	s.kv.Put(sessionKey, instanceID, s.ttl)
}

// Lookup returns the bound instance id, if any. The binding's
// expiration is left untouched.
func (s *Store) Lookup(sessionKey string) (string, bool) {
	v, ok := s.kv.Get(sessionKey)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Evict drops the binding for a session key
func (s *Store) Evict(sessionKey string) {
	s.kv.Delete(sessionKey)
}

// EvictInstance drops every binding pointing at the instance and
// returns the number removed
func (s *Store) EvictInstance(instanceID string) int {
	removed := s.kv.DeleteFunc(func(key string, value interface{}) bool {
		return value.(string) == instanceID
	})
	if removed > 0 {
		log.WithFields(log.Fields{
			"instance": instanceID,
			"bindings": removed,
		}).Debug("Evicted affinity bindings for instance")
	}
	return removed
}

// Len returns the number of live bindings
func (s *Store) Len() int {
	return s.kv.Len()
}
