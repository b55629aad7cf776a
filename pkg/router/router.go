// Package router composes the instance pool, the routing strategies,
// the affinity store and the health checker into the load router.
package router

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/loadpilot/loadpilot/pkg/affinity"
	"github.com/loadpilot/loadpilot/pkg/health"
	"github.com/loadpilot/loadpilot/pkg/notify"
	"github.com/loadpilot/loadpilot/pkg/registry"
	"github.com/loadpilot/loadpilot/pkg/schedule"
	"github.com/loadpilot/loadpilot/pkg/strategy"
	"github.com/loadpilot/loadpilot/pkg/telemetry"
	"github.com/loadpilot/loadpilot/pkg/types"
)

// Config configures the load router
type Config struct {
	Strategy           string        `json:"strategy" yaml:"strategy"`
	AffinityEnabled    bool          `json:"affinity_enabled" yaml:"affinity_enabled"`
	AffinityTTL        time.Duration `json:"affinity_ttl" yaml:"affinity_ttl"`
	MonitoringInterval time.Duration `json:"monitoring_interval" yaml:"monitoring_interval"`
	AutoScale          bool          `json:"auto_scale" yaml:"auto_scale"`
	ScaleUpThreshold   float64       `json:"scale_up_threshold" yaml:"scale_up_threshold"`
	ScaleDownThreshold float64       `json:"scale_down_threshold" yaml:"scale_down_threshold"`
	MinInstances       int           `json:"min_instances" yaml:"min_instances"`
	MaxInstances       int           `json:"max_instances" yaml:"max_instances"`
	ScaleCooldown      time.Duration `json:"scale_cooldown" yaml:"scale_cooldown"`
	NotifyTimeout      time.Duration `json:"notify_timeout" yaml:"notify_timeout"`
}

// DefaultConfig returns the default router configuration
func DefaultConfig() Config {
	return Config{
		Strategy:           strategy.NameRoundRobin,
		AffinityEnabled:    true,
		AffinityTTL:        30 * time.Minute,
		MonitoringInterval: 30 * time.Second,
		AutoScale:          true,
		ScaleUpThreshold:   0.8,
		ScaleDownThreshold: 0.3,
		MinInstances:       1,
		MaxInstances:       10,
		ScaleCooldown:      5 * time.Minute,
		NotifyTimeout:      10 * time.Second,
	}
}

// Router is the public routing entry point. Its monitoring loop also
// runs a simple load-threshold scaling rule with its own cooldown,
// deliberately independent of the policy engine.
type Router struct {
	cfg      Config
	pool     *registry.Pool
	strat    strategy.Strategy
	affinity *affinity.Store
	checker  *health.Checker
	notifier notify.Notifier
	tel      *telemetry.Metrics

	monitorTask *schedule.Task
	lastScale   time.Time
	mu          sync.Mutex
}

// New creates a router over the given pool and checker
func New(cfg Config, pool *registry.Pool, checker *health.Checker, notifier notify.Notifier, tel *telemetry.Metrics) *Router {
	if cfg.Strategy == "" {
		cfg.Strategy = strategy.NameRoundRobin
	}
	if cfg.MonitoringInterval <= 0 {
		cfg.MonitoringInterval = 30 * time.Second
	}
	if cfg.MinInstances < 1 {
		cfg.MinInstances = 1
	}
	if cfg.MaxInstances < cfg.MinInstances {
		cfg.MaxInstances = cfg.MinInstances
	}
	if cfg.ScaleCooldown <= 0 {
		cfg.ScaleCooldown = 5 * time.Minute
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}

	r := &Router{
		cfg:      cfg,
		pool:     pool,
		strat:    strategy.New(cfg.Strategy),
		affinity: affinity.NewStore(cfg.AffinityTTL),
		checker:  checker,
		notifier: notifier,
		tel:      tel,
	}
	r.monitorTask = schedule.NewTask("router-monitor", cfg.MonitoringInterval, r.monitorTick)
	return r
}

// Start launches the health-check and monitoring loops
func (r *Router) Start() {
	if r.checker != nil {
		r.checker.Start()
	}
	r.monitorTask.Start()
	log.WithFields(log.Fields{
		"strategy": r.strat.Name(),
		"affinity": r.cfg.AffinityEnabled,
	}).Info("Load router started")
}

// Stop halts both loops. In-flight probes and deliveries finish on
// their own schedule.
func (r *Router) Stop() {
	r.monitorTask.Stop()
	if r.checker != nil {
		r.checker.Stop()
	}
	log.Info("Load router stopped")
}

// AddInstance registers an instance with healthy state and zeroed
// counters. Re-registering an id overwrites the prior record.
func (r *Router) AddInstance(id, host string, port, weight int) *types.Instance {
	inst := types.NewInstance(id, host, port, weight)
	r.pool.Register(inst)
	return inst.Clone()
}

// RemoveInstance deletes an instance and every affinity binding that
// points at it
func (r *Router) RemoveInstance(id string) bool {
	existed := r.pool.Deregister(id)
	r.affinity.EvictInstance(id)
	return existed
}

// NextInstance selects a target for a request. A live affinity binding
// to a still-healthy instance overrides the strategy; otherwise the
// configured strategy picks from the healthy subset and, when affinity
// is on, the choice is recorded under the session key. With no healthy
// instance it returns false, never a stale substitute.
func (r *Router) NextInstance(sessionKey string) (*types.Instance, bool) {
	healthy := r.pool.Healthy()
	if len(healthy) == 0 {
		r.tel.RouteMiss()
		return nil, false
	}

	if r.cfg.AffinityEnabled && sessionKey != "" {
		if id, ok := r.affinity.Lookup(sessionKey); ok {
			if inst, ok := r.pool.Get(id); ok && inst.Healthy {
				r.tel.RouteDecision(r.strat.Name(), true)
				return inst, true
			}
			r.affinity.Evict(sessionKey)
		}
	}

	inst, ok := r.strat.Pick(healthy, sessionKey)
	if !ok {
		r.tel.RouteMiss()
		return nil, false
	}
	if r.cfg.AffinityEnabled && sessionKey != "" {
		r.affinity.Bind(sessionKey, inst.ID)
	}
	r.tel.RouteDecision(r.strat.Name(), false)
	return inst, true
}

// RecordRequest folds a request outcome into the instance counters
func (r *Router) RecordRequest(id string, responseTime float64, success bool) bool {
	return r.pool.RecordRequest(id, responseTime, success)
}

// UpdateConnections adjusts an instance's connection count by delta,
// floored at zero
func (r *Router) UpdateConnections(id string, delta int) bool {
	return r.pool.UpdateConnections(id, delta)
}

// Stats returns the aggregate pool view
func (r *Router) Stats() types.RouterStats {
	return r.pool.Stats()
}

// Instances returns copies of all registered instances
func (r *Router) Instances() []*types.Instance {
	return r.pool.List()
}

// AffinityBindings returns the number of live sticky bindings
func (r *Router) AffinityBindings() int {
	return r.affinity.Len()
}

// Strategy returns the active strategy name
func (r *Router) Strategy() string {
	return r.strat.Name()
}

// monitorTick recomputes aggregates and runs the threshold rule
func (r *Router) monitorTick() {
	stats := r.pool.Stats()
	r.tel.SetPoolStats(stats)

	log.WithFields(log.Fields{
		"instances":    stats.TotalInstances,
		"healthy":      stats.HealthyInstances,
		"connections":  stats.TotalConnections,
		"current_load": stats.CurrentLoad,
	}).Debug("Pool monitored")

	if !r.cfg.AutoScale {
		return
	}
	r.evaluateThreshold(stats)
}

// evaluateThreshold applies the router's simple scale rule: one step
// up when load exceeds the upper threshold, one step down when it
// drops under the lower one, bounded by min/max and its own cooldown.
func (r *Router) evaluateThreshold(stats types.RouterStats) {
	now := time.Now()

	r.mu.Lock()
	if now.Sub(r.lastScale) < r.cfg.ScaleCooldown {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	current := stats.TotalInstances
	var action types.ScalingAction
	var target int

	switch {
	case stats.CurrentLoad > r.cfg.ScaleUpThreshold && current < r.cfg.MaxInstances:
		action = types.ActionScaleUp
		target = current + 1
	case stats.CurrentLoad < r.cfg.ScaleDownThreshold && current > r.cfg.MinInstances:
		action = types.ActionScaleDown
		target = current - 1
	default:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.NotifyTimeout)
	err := r.notifier.Notify(ctx, types.ScalingIntent{
		Action:          action,
		TargetInstances: target,
		Timestamp:       now,
	})
	cancel()

	r.tel.ScalingIntent("router", action, err)
	if err != nil {
		log.WithFields(log.Fields{
			"action": action,
			"target": target,
			"error":  err,
		}).Warn("Router scaling intent failed")
		return
	}

	r.mu.Lock()
	r.lastScale = now
	r.mu.Unlock()

	log.WithFields(log.Fields{
		"action":       action,
		"target":       target,
		"current_load": stats.CurrentLoad,
	}).Info("Router scaling intent emitted")
}
