// Package registry holds the pool of routable backend instances and
// their live counters. The pool preserves registration order so the
// routing strategies see a stable iteration order while the set
// composition is unchanged.
package registry

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/loadpilot/loadpilot/pkg/types"
)

// ProbeResult carries the outcome of one health probe against an instance
type ProbeResult struct {
	Healthy      bool
	ResponseTime float64
	CheckedAt    time.Time
}

// Pool is the in-memory instance registry. All reads return copies so
// callers never share memory with the pool's own records.
type Pool struct {
	instances map[string]*types.Instance
	order     []string
	mu        sync.RWMutex
}

// NewPool creates an empty pool
func NewPool() *Pool {
	return &Pool{
		instances: make(map[string]*types.Instance),
	}
}

// Register adds an instance to the pool. Re-registering an existing id
// overwrites the prior record and keeps its position in the iteration
// order.
func (p *Pool) Register(inst *types.Instance) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.instances[inst.ID]; !exists {
		p.order = append(p.order, inst.ID)
	}
	p.instances[inst.ID] = inst.Clone()

	log.WithFields(log.Fields{
		"instance": inst.ID,
		"addr":     inst.Addr(),
		"weight":   inst.Weight,
	}).Info("Instance registered")
}

// Deregister removes an instance, reporting whether it existed
func (p *Pool) Deregister(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.instances[id]; !exists {
		return false
	}
	delete(p.instances, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}

	log.WithFields(log.Fields{"instance": id}).Info("Instance removed")
	return true
}

// Get returns a copy of the instance with the given id
func (p *Pool) Get(id string) (*types.Instance, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	inst, exists := p.instances[id]
	if !exists {
		return nil, false
	}
	return inst.Clone(), true
}

// List returns copies of all instances in registration order
func (p *Pool) List() []*types.Instance {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*types.Instance, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.instances[id].Clone())
	}
	return out
}

// Healthy returns copies of the currently healthy instances in
// registration order
func (p *Pool) Healthy() []*types.Instance {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*types.Instance, 0, len(p.order))
	for _, id := range p.order {
		if inst := p.instances[id]; inst.Healthy {
			out = append(out, inst.Clone())
		}
	}
	return out
}

// IsHealthy reports whether the instance exists and is healthy
func (p *Pool) IsHealthy(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	inst, exists := p.instances[id]
	return exists && inst.Healthy
}

// UpdateConnections adjusts an instance's active connection count by
// delta, never letting it drop below zero
func (p *Pool) UpdateConnections(id string, delta int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, exists := p.instances[id]
	if !exists {
		return false
	}
	inst.Connections += delta
	if inst.Connections < 0 {
		inst.Connections = 0
	}
	return true
}

// RecordRequest folds one request outcome into the instance counters.
// The response time is averaged with equal weight against the prior
// value, which keeps the stored figure stable under bursts.
func (p *Pool) RecordRequest(id string, responseTime float64, success bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, exists := p.instances[id]
	if !exists {
		return false
	}
	inst.ResponseTime = (inst.ResponseTime + responseTime) / 2
	inst.TotalRequests++
	if !success {
		inst.ErrorCount++
	}
	return true
}

// ApplyProbe records a health-probe outcome. Response time and check
// timestamp are updated whether the probe succeeded or not; a failed
// probe also increments the error counter. The previous health state
// is returned so callers can log transitions edge-triggered.
func (p *Pool) ApplyProbe(id string, result ProbeResult) (prevHealthy bool, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, exists := p.instances[id]
	if !exists {
		return false, false
	}
	prevHealthy = inst.Healthy
	inst.Healthy = result.Healthy
	inst.ResponseTime = result.ResponseTime
	inst.LastHealthCheck = result.CheckedAt
	if !result.Healthy {
		inst.ErrorCount++
	}
	return prevHealthy, true
}

// Len returns the number of registered instances
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.instances)
}

// Stats computes the aggregate view of the pool. Load is total
// connections relative to healthy capacity at 100 connections per
// instance; it is zero when no instance is healthy.
func (p *Pool) Stats() types.RouterStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := types.RouterStats{TotalInstances: len(p.instances)}
	var totalErrors int64
	var responseSum float64
	for _, inst := range p.instances {
		if inst.Healthy {
			stats.HealthyInstances++
		}
		stats.TotalConnections += inst.Connections
		stats.TotalRequests += inst.TotalRequests
		totalErrors += inst.ErrorCount
		responseSum += inst.ResponseTime
	}
	if len(p.instances) > 0 {
		stats.AverageResponseTime = responseSum / float64(len(p.instances))
	}
	if stats.TotalRequests > 0 {
		stats.ErrorRate = float64(totalErrors) / float64(stats.TotalRequests) * 100
	}
	if stats.HealthyInstances > 0 {
		stats.CurrentLoad = float64(stats.TotalConnections) / float64(stats.HealthyInstances*100)
	}
	return stats
}
