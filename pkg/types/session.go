package types

import (
	"time"
)

// SessionRecord represents one tracked session
type SessionRecord struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"user_id,omitempty"`
	Data       map[string]interface{} `json:"data"`
	CreatedAt  time.Time              `json:"created_at"`
	LastAccess time.Time              `json:"last_access"`
	ExpiresAt  time.Time              `json:"expires_at"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
}

// Expired reports whether the record is past its expiry at the given time
func (s *SessionRecord) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Clone returns a copy of the record with its own data map
func (s *SessionRecord) Clone() *SessionRecord {
	c := *s
	c.Data = make(map[string]interface{}, len(s.Data))
	for k, v := range s.Data {
		c.Data[k] = v
	}
	return &c
}

// SessionMetrics holds derived session-store statistics
type SessionMetrics struct {
	ActiveSessions         int     `json:"active_sessions"`
	AverageSessionDuration float64 `json:"average_session_duration_ms"`
	SessionsPerMinute      int     `json:"sessions_per_minute"`
	MemoryUsageBytes       int64   `json:"memory_usage_bytes"`
}
