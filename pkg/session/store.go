// Package session implements the standalone session store: TTL keyed
// records under a hard capacity ceiling, with sliding expiration on
// reads and a passive sweep for expired entries.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/loadpilot/loadpilot/pkg/kvstore"
	"github.com/loadpilot/loadpilot/pkg/schedule"
	"github.com/loadpilot/loadpilot/pkg/types"
)

// sessionRecordBytes is the fixed per-record estimate used for the
// approximate memory usage figure
const sessionRecordBytes = 1024

// Config configures the session store
type Config struct {
	MaxSessions     int           `json:"max_sessions" yaml:"max_sessions"`
	SessionTimeout  time.Duration `json:"session_timeout" yaml:"session_timeout"`
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
}

// DefaultConfig returns the default session store configuration
func DefaultConfig() Config {
	return Config{
		MaxSessions:     10000,
		SessionTimeout:  30 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Store tracks sessions. The capacity ceiling is hard: when the store
// is full a create attempt sweeps expired records once and then fails,
// it never evicts a live session.
type Store struct {
	cfg       Config
	kv        *kvstore.Store
	created   []time.Time
	sweepTask *schedule.Task
	mu        sync.Mutex
}

// NewStore creates a session store
func NewStore(cfg Config) *Store {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 10000
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 30 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	s := &Store{
		cfg: cfg,
		kv:  kvstore.New(),
	}
	s.sweepTask = schedule.NewTask("session-sweep", cfg.CleanupInterval, func() {
		s.Sweep()
	})
	return s
}

// Start begins the passive sweep loop
func (s *Store) Start() {
	s.sweepTask.Start()
}

// Stop halts the sweep loop
func (s *Store) Stop() {
	s.sweepTask.Stop()
}

// Create makes a new session. At capacity it sweeps expired records
// first and fails with ErrSessionCapacity if the store is still full.
func (s *Store) Create(userID, ipAddress, userAgent string) (*types.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kv.Len() >= s.cfg.MaxSessions {
		s.kv.Sweep()
		if s.kv.Len() >= s.cfg.MaxSessions {
			return nil, types.ErrSessionCapacity
		}
	}

	now := time.Now()
	record := &types.SessionRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		Data:       make(map[string]interface{}),
		CreatedAt:  now,
		LastAccess: now,
		ExpiresAt:  now.Add(s.cfg.SessionTimeout),
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
	}
	s.kv.Put(record.ID, record, s.cfg.SessionTimeout)

	s.pruneCreatedLocked(now)
	s.created = append(s.created, now)

	return record.Clone(), nil
}

// Get returns a live session and slides its expiration forward.
// Continual reads keep a session alive indefinitely.
func (s *Store) Get(id string) (*types.SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.getTouchLocked(id)
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// Update shallow-merges the patch into the session's data, sliding
// its expiration like a read
func (s *Store) Update(id string, patch map[string]interface{}) (*types.SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.getTouchLocked(id)
	if !ok {
		return nil, false
	}
	for k, v := range patch {
		record.Data[k] = v
	}
	return record.Clone(), true
}

// getTouchLocked fetches a live record and renews both the container
// entry and the record's own timestamps. Caller holds s.mu.
func (s *Store) getTouchLocked(id string) (*types.SessionRecord, bool) {
	v, ok := s.kv.GetTouch(id, s.cfg.SessionTimeout)
	if !ok {
		return nil, false
	}
	record := v.(*types.SessionRecord)
	now := time.Now()
	record.LastAccess = now
	record.ExpiresAt = now.Add(s.cfg.SessionTimeout)
	return record, true
}

// Delete removes a session, reporting whether a live one existed
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Delete(id)
}

// DeleteUserSessions removes every session belonging to the user and
// returns the number removed
func (s *Store) DeleteUserSessions(userID string) int {
	if userID == "" {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.kv.DeleteFunc(func(key string, value interface{}) bool {
		return value.(*types.SessionRecord).UserID == userID
	})
	if removed > 0 {
		log.WithFields(log.Fields{
			"user":     userID,
			"sessions": removed,
		}).Info("User sessions deleted")
	}
	return removed
}

// Sweep removes all expired sessions and returns the number removed
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.kv.Sweep()
	s.pruneCreatedLocked(time.Now())
	if removed > 0 {
		log.WithFields(log.Fields{"removed": removed}).Debug("Expired sessions swept")
	}
	return removed
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Len()
}

// Metrics derives the store's statistics from its live contents
func (s *Store) Metrics() types.SessionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	active := 0
	var ageSum float64
	s.kv.Range(func(key string, value interface{}) bool {
		record := value.(*types.SessionRecord)
		active++
		ageSum += float64(now.Sub(record.CreatedAt)) / float64(time.Millisecond)
		return true
	})

	m := types.SessionMetrics{
		ActiveSessions:   active,
		MemoryUsageBytes: int64(active) * sessionRecordBytes,
	}
	if active > 0 {
		m.AverageSessionDuration = ageSum / float64(active)
	}

	s.pruneCreatedLocked(now)
	m.SessionsPerMinute = len(s.created)
	return m
}

// Export snapshots all non-expired sessions
func (s *Store) Export() []*types.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.SessionRecord, 0, s.kv.Len())
	s.kv.Range(func(key string, value interface{}) bool {
		out = append(out, value.(*types.SessionRecord).Clone())
		return true
	})
	return out
}

// Import restores exported sessions. Expired records are skipped and
// the capacity ceiling still holds; the number imported is returned.
func (s *Store) Import(records []*types.SessionRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	imported := 0
	for _, record := range records {
		if record == nil || record.ID == "" || record.Expired(now) {
			continue
		}
		if s.kv.Len() >= s.cfg.MaxSessions {
			break
		}
		s.kv.Put(record.ID, record.Clone(), record.ExpiresAt.Sub(now))
		imported++
	}

	log.WithFields(log.Fields{
		"imported": imported,
		"offered":  len(records),
	}).Info("Sessions imported")
	return imported
}

// pruneCreatedLocked drops creation timestamps older than one minute.
// Caller holds s.mu.
func (s *Store) pruneCreatedLocked(now time.Time) {
	cutoff := now.Add(-time.Minute)
	idx := 0
	for idx < len(s.created) && !s.created[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		s.created = append(s.created[:0], s.created[idx:]...)
	}
}
