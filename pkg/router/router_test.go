package router

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadpilot/loadpilot/pkg/health"
	"github.com/loadpilot/loadpilot/pkg/notify"
	"github.com/loadpilot/loadpilot/pkg/registry"
	"github.com/loadpilot/loadpilot/pkg/types"
)

// newTestRouter builds a router over a fresh pool with a recording
// sink. The checker is real but never started.
func newTestRouter(t *testing.T, cfg Config) (*Router, *registry.Pool, *notify.Recorder) {
	t.Helper()
	pool := registry.NewPool()
	checker := health.NewChecker(pool, health.NewStaticProber(), health.CheckerConfig{
		Interval: time.Hour,
		Timeout:  time.Second,
	})
	rec := notify.NewRecorder()
	return New(cfg, pool, checker, rec, nil), pool, rec
}

func markUnhealthy(t *testing.T, pool *registry.Pool, id string) {
	t.Helper()
	_, ok := pool.ApplyProbe(id, registry.ProbeResult{
		Healthy:   false,
		CheckedAt: time.Now(),
	})
	require.True(t, ok)
}

func TestNewAppliesDefaults(t *testing.T) {
	r, _, _ := newTestRouter(t, Config{})

	assert.Equal(t, 30*time.Second, r.cfg.MonitoringInterval)
	assert.Equal(t, 1, r.cfg.MinInstances)
	assert.Equal(t, 1, r.cfg.MaxInstances)
	assert.Equal(t, 5*time.Minute, r.cfg.ScaleCooldown)
	assert.Equal(t, 10*time.Second, r.cfg.NotifyTimeout)
	assert.Equal(t, "round-robin", r.Strategy())
}

func TestNewWithNilNotifier(t *testing.T) {
	pool := registry.NewPool()
	r := New(Config{}, pool, nil, nil, nil)

	assert.IsType(t, notify.Nop{}, r.notifier)
}

func TestNewSelectsStrategy(t *testing.T) {
	r, _, _ := newTestRouter(t, Config{Strategy: "ip-hash"})
	assert.Equal(t, "ip-hash", r.Strategy())
}

func TestAddInstanceReturnsCopy(t *testing.T) {
	r, pool, _ := newTestRouter(t, Config{})

	inst := r.AddInstance("web-1", "10.0.0.1", 8080, 2)
	require.NotNil(t, inst)
	assert.Equal(t, "web-1", inst.ID)
	assert.Equal(t, "10.0.0.1", inst.Host)
	assert.Equal(t, 8080, inst.Port)
	assert.Equal(t, 2, inst.Weight)
	assert.True(t, inst.Healthy)

	inst.Weight = 99
	stored, ok := pool.Get("web-1")
	require.True(t, ok)
	assert.Equal(t, 2, stored.Weight)
}

func TestRemoveInstancePurgesBindings(t *testing.T) {
	r, _, _ := newTestRouter(t, Config{AffinityEnabled: true})
	r.AddInstance("web-1", "10.0.0.1", 8080, 1)

	inst, ok := r.NextInstance("sess-1")
	require.True(t, ok)
	require.Equal(t, "web-1", inst.ID)
	require.Equal(t, 1, r.AffinityBindings())

	assert.True(t, r.RemoveInstance("web-1"))
	assert.Equal(t, 0, r.AffinityBindings())
	assert.False(t, r.RemoveInstance("web-1"))
}

func TestNextInstanceEmptyPool(t *testing.T) {
	r, _, _ := newTestRouter(t, Config{})

	inst, ok := r.NextInstance("sess-1")
	assert.False(t, ok)
	assert.Nil(t, inst)
}

func TestNextInstanceAllUnhealthy(t *testing.T) {
	r, pool, _ := newTestRouter(t, Config{})
	r.AddInstance("web-1", "10.0.0.1", 8080, 1)
	markUnhealthy(t, pool, "web-1")

	// No healthy instance means no answer, never a stale one.
	inst, ok := r.NextInstance("sess-1")
	assert.False(t, ok)
	assert.Nil(t, inst)
}

func TestNextInstanceRoundRobin(t *testing.T) {
	r, _, _ := newTestRouter(t, Config{})
	r.AddInstance("web-1", "10.0.0.1", 8080, 1)
	r.AddInstance("web-2", "10.0.0.2", 8080, 1)

	var picks []string
	for i := 0; i < 4; i++ {
		inst, ok := r.NextInstance("")
		require.True(t, ok)
		picks = append(picks, inst.ID)
	}
	assert.Equal(t, []string{"web-1", "web-2", "web-1", "web-2"}, picks)
}

func TestNextInstanceStickyAffinity(t *testing.T) {
	r, _, _ := newTestRouter(t, Config{AffinityEnabled: true})
	r.AddInstance("web-1", "10.0.0.1", 8080, 1)
	r.AddInstance("web-2", "10.0.0.2", 8080, 1)

	first, ok := r.NextInstance("sess-1")
	require.True(t, ok)

	// Round-robin would alternate; the binding pins the session.
	for i := 0; i < 3; i++ {
		inst, ok := r.NextInstance("sess-1")
		require.True(t, ok)
		assert.Equal(t, first.ID, inst.ID)
	}
	assert.Equal(t, 1, r.AffinityBindings())
}

func TestNextInstanceRebindsWhenTargetUnhealthy(t *testing.T) {
	r, pool, _ := newTestRouter(t, Config{AffinityEnabled: true})
	r.AddInstance("web-1", "10.0.0.1", 8080, 1)
	r.AddInstance("web-2", "10.0.0.2", 8080, 1)

	first, ok := r.NextInstance("sess-1")
	require.True(t, ok)
	markUnhealthy(t, pool, first.ID)

	second, ok := r.NextInstance("sess-1")
	require.True(t, ok)
	assert.NotEqual(t, first.ID, second.ID)

	// The session now sticks to the replacement.
	third, ok := r.NextInstance("sess-1")
	require.True(t, ok)
	assert.Equal(t, second.ID, third.ID)
}

func TestNextInstanceWithoutSessionKeySkipsAffinity(t *testing.T) {
	r, _, _ := newTestRouter(t, Config{AffinityEnabled: true})
	r.AddInstance("web-1", "10.0.0.1", 8080, 1)

	_, ok := r.NextInstance("")
	require.True(t, ok)
	assert.Equal(t, 0, r.AffinityBindings())
}

func TestNextInstanceAffinityDisabled(t *testing.T) {
	r, _, _ := newTestRouter(t, Config{AffinityEnabled: false})
	r.AddInstance("web-1", "10.0.0.1", 8080, 1)

	_, ok := r.NextInstance("sess-1")
	require.True(t, ok)
	assert.Equal(t, 0, r.AffinityBindings())
}

func TestRecordRequestPassthrough(t *testing.T) {
	r, pool, _ := newTestRouter(t, Config{})
	r.AddInstance("web-1", "10.0.0.1", 8080, 1)

	assert.True(t, r.RecordRequest("web-1", 100, true))
	assert.False(t, r.RecordRequest("ghost", 100, true))

	inst, ok := pool.Get("web-1")
	require.True(t, ok)
	assert.Equal(t, 50.0, inst.ResponseTime)
	assert.Equal(t, int64(1), inst.TotalRequests)
}

func TestUpdateConnectionsPassthrough(t *testing.T) {
	r, pool, _ := newTestRouter(t, Config{})
	r.AddInstance("web-1", "10.0.0.1", 8080, 1)

	assert.True(t, r.UpdateConnections("web-1", 5))
	assert.False(t, r.UpdateConnections("ghost", 5))

	inst, ok := pool.Get("web-1")
	require.True(t, ok)
	assert.Equal(t, 5, inst.Connections)
}

func TestMonitorTickScalesUp(t *testing.T) {
	r, _, rec := newTestRouter(t, Config{
		AutoScale:          true,
		ScaleUpThreshold:   0.8,
		ScaleDownThreshold: 0.3,
		MinInstances:       1,
		MaxInstances:       10,
		ScaleCooldown:      time.Hour,
	})
	r.AddInstance("web-1", "10.0.0.1", 8080, 1)
	r.AddInstance("web-2", "10.0.0.2", 8080, 1)

	// 180 connections over 2 healthy instances is a load of 0.9.
	require.True(t, r.UpdateConnections("web-1", 100))
	require.True(t, r.UpdateConnections("web-2", 80))

	r.monitorTick()

	intents := rec.Intents()
	require.Len(t, intents, 1)
	assert.Equal(t, types.ActionScaleUp, intents[0].Action)
	assert.Equal(t, 3, intents[0].TargetInstances)
	assert.False(t, intents[0].Timestamp.IsZero())

	// The cooldown suppresses an immediate refire.
	r.monitorTick()
	assert.Len(t, rec.Intents(), 1)
}

func TestMonitorTickScalesDown(t *testing.T) {
	r, _, rec := newTestRouter(t, Config{
		AutoScale:          true,
		ScaleUpThreshold:   0.8,
		ScaleDownThreshold: 0.3,
		MinInstances:       1,
		MaxInstances:       10,
		ScaleCooldown:      time.Hour,
	})
	r.AddInstance("web-1", "10.0.0.1", 8080, 1)
	r.AddInstance("web-2", "10.0.0.2", 8080, 1)

	r.monitorTick()

	intents := rec.Intents()
	require.Len(t, intents, 1)
	assert.Equal(t, types.ActionScaleDown, intents[0].Action)
	assert.Equal(t, 1, intents[0].TargetInstances)
}

func TestScaleUpStopsAtMax(t *testing.T) {
	r, _, rec := newTestRouter(t, Config{
		AutoScale:          true,
		ScaleUpThreshold:   0.8,
		ScaleDownThreshold: 0.3,
		MinInstances:       1,
		MaxInstances:       2,
		ScaleCooldown:      time.Hour,
	})
	r.AddInstance("web-1", "10.0.0.1", 8080, 1)
	r.AddInstance("web-2", "10.0.0.2", 8080, 1)
	require.True(t, r.UpdateConnections("web-1", 200))

	r.monitorTick()
	assert.Empty(t, rec.Intents())
}

func TestScaleDownStopsAtMin(t *testing.T) {
	r, _, rec := newTestRouter(t, Config{
		AutoScale:          true,
		ScaleUpThreshold:   0.8,
		ScaleDownThreshold: 0.3,
		MinInstances:       2,
		MaxInstances:       10,
		ScaleCooldown:      time.Hour,
	})
	r.AddInstance("web-1", "10.0.0.1", 8080, 1)
	r.AddInstance("web-2", "10.0.0.2", 8080, 1)

	r.monitorTick()
	assert.Empty(t, rec.Intents())
}

func TestAutoScaleDisabled(t *testing.T) {
	r, _, rec := newTestRouter(t, Config{
		AutoScale:          false,
		ScaleUpThreshold:   0.8,
		ScaleDownThreshold: 0.3,
		MaxInstances:       10,
		ScaleCooldown:      time.Hour,
	})
	r.AddInstance("web-1", "10.0.0.1", 8080, 1)
	require.True(t, r.UpdateConnections("web-1", 200))

	r.monitorTick()
	assert.Empty(t, rec.Intents())
}

func TestFailedDeliveryDoesNotStartCooldown(t *testing.T) {
	r, _, rec := newTestRouter(t, Config{
		AutoScale:          true,
		ScaleUpThreshold:   0.8,
		ScaleDownThreshold: 0.3,
		MinInstances:       1,
		MaxInstances:       10,
		ScaleCooldown:      time.Hour,
	})
	r.AddInstance("web-1", "10.0.0.1", 8080, 1)
	require.True(t, r.UpdateConnections("web-1", 200))

	rec.SetError(errors.New("sink down"))
	r.monitorTick()
	assert.Empty(t, rec.Intents())
	assert.True(t, r.lastScale.IsZero())

	// Once delivery recovers the same condition fires immediately.
	rec.SetError(nil)
	r.monitorTick()
	require.Len(t, rec.Intents(), 1)
	assert.Equal(t, types.ActionScaleUp, rec.Intents()[0].Action)
	assert.False(t, r.lastScale.IsZero())
}

func TestStatsReflectsPool(t *testing.T) {
	r, _, _ := newTestRouter(t, Config{})
	r.AddInstance("web-1", "10.0.0.1", 8080, 1)
	r.AddInstance("web-2", "10.0.0.2", 8080, 1)
	require.True(t, r.UpdateConnections("web-1", 100))

	stats := r.Stats()
	assert.Equal(t, 2, stats.TotalInstances)
	assert.Equal(t, 2, stats.HealthyInstances)
	assert.Equal(t, 100, stats.TotalConnections)
	assert.Equal(t, 0.5, stats.CurrentLoad)

	assert.Len(t, r.Instances(), 2)
}

func TestStartStop(t *testing.T) {
	r, _, _ := newTestRouter(t, Config{})
	r.Start()
	r.Stop()
	r.Stop()
}
