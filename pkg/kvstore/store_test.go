package kvstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	s := New()

	s.Put("a", 1, 0)
	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestExpiration(t *testing.T) {
	s := New()

	s.Put("a", "x", 30*time.Millisecond)
	_, ok := s.Get("a")
	require.True(t, ok, "entry should be live before its TTL elapses")

	time.Sleep(60 * time.Millisecond)
	_, ok = s.Get("a")
	assert.False(t, ok, "entry should expire after its TTL")
}

func TestNoTTLNeverExpires(t *testing.T) {
	s := New()

	s.Put("a", "x", 0)
	time.Sleep(30 * time.Millisecond)
	_, ok := s.Get("a")
	assert.True(t, ok)
}

func TestGetTouchSlidesExpiration(t *testing.T) {
	s := New()

	s.Put("a", "x", 60*time.Millisecond)

	// Renew at half the TTL; the entry must outlive its original deadline.
	time.Sleep(30 * time.Millisecond)
	_, ok := s.GetTouch("a", 60*time.Millisecond)
	require.True(t, ok)

	time.Sleep(45 * time.Millisecond)
	_, ok = s.Get("a")
	assert.True(t, ok, "renewed entry should survive past the original deadline")

	time.Sleep(60 * time.Millisecond)
	_, ok = s.Get("a")
	assert.False(t, ok, "renewed entry should still expire after the new deadline")
}

func TestGetTouchMissing(t *testing.T) {
	s := New()

	_, ok := s.GetTouch("missing", time.Minute)
	assert.False(t, ok)
}

func TestTouch(t *testing.T) {
	s := New()

	s.Put("a", "x", 40*time.Millisecond)
	time.Sleep(25 * time.Millisecond)
	require.True(t, s.Touch("a", 100*time.Millisecond))

	time.Sleep(40 * time.Millisecond)
	_, ok := s.Get("a")
	assert.True(t, ok)

	assert.False(t, s.Touch("missing", time.Minute))
}

func TestDelete(t *testing.T) {
	s := New()

	s.Put("a", 1, 0)
	assert.True(t, s.Delete("a"))
	assert.False(t, s.Delete("a"), "second delete should report the key was gone")

	_, ok := s.Get("a")
	assert.False(t, ok)
}

func TestDeleteExpiredReportsGone(t *testing.T) {
	s := New()

	s.Put("a", 1, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.False(t, s.Delete("a"), "deleting an expired entry should report it was already gone")
}

func TestDeleteFunc(t *testing.T) {
	s := New()

	s.Put("user:1", "a", 0)
	s.Put("user:2", "b", 0)
	s.Put("other", "c", 0)

	removed := s.DeleteFunc(func(key string, value interface{}) bool {
		return key == "user:1" || key == "user:2"
	})
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, s.Len())
}

func TestRange(t *testing.T) {
	s := New()

	s.Put("a", 1, 0)
	s.Put("b", 2, 0)
	s.Put("expired", 3, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	seen := map[string]interface{}{}
	s.Range(func(key string, value interface{}) bool {
		seen[key] = value
		return true
	})
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, seen, "expired entries must not be visited")
}

func TestRangeStopsEarly(t *testing.T) {
	s := New()

	s.Put("a", 1, 0)
	s.Put("b", 2, 0)
	s.Put("c", 3, 0)

	visits := 0
	s.Range(func(key string, value interface{}) bool {
		visits++
		return false
	})
	assert.Equal(t, 1, visits)
}

func TestSweep(t *testing.T) {
	s := New()

	s.Put("a", 1, 10*time.Millisecond)
	s.Put("b", 2, 10*time.Millisecond)
	s.Put("keep", 3, 0)
	time.Sleep(30 * time.Millisecond)

	removed := s.Sweep()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, s.Len())
}

func TestLenCountsOnlyLive(t *testing.T) {
	s := New()

	s.Put("a", 1, 10*time.Millisecond)
	s.Put("b", 2, 0)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, 1, s.Len())
}

func TestClear(t *testing.T) {
	s := New()

	s.Put("a", 1, 0)
	s.Put("b", 2, 0)
	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestPutOverwritesTTL(t *testing.T) {
	s := New()

	s.Put("a", 1, 10*time.Millisecond)
	s.Put("a", 2, 0)
	time.Sleep(30 * time.Millisecond)

	v, ok := s.Get("a")
	require.True(t, ok, "rewrite with no TTL should clear the old deadline")
	assert.Equal(t, 2, v)
}
