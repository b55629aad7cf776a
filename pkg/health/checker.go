package health

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/loadpilot/loadpilot/pkg/registry"
	"github.com/loadpilot/loadpilot/pkg/schedule"
	"github.com/loadpilot/loadpilot/pkg/types"
)

// maxConcurrentProbes caps how many probes run at once per tick
const maxConcurrentProbes = 10

// InstancePool is the slice of the registry the checker needs
type InstancePool interface {
	List() []*types.Instance
	ApplyProbe(id string, result registry.ProbeResult) (prevHealthy bool, ok bool)
}

// CheckerConfig configures the periodic health checker
type CheckerConfig struct {
	Interval time.Duration `json:"interval" yaml:"interval"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultCheckerConfig returns the default checker configuration
func DefaultCheckerConfig() CheckerConfig {
	return CheckerConfig{
		Interval: 10 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// Checker probes every pooled instance on a fixed interval. Probes
// within one tick run concurrently, each bounded by its own timeout,
// so a hung instance cannot stall the batch.
type Checker struct {
	pool    InstancePool
	prober  Prober
	timeout time.Duration
	task    *schedule.Task

	// OnTransition, when set, is invoked for every health state change
	OnTransition func(instanceID string, healthy bool)
}

// NewChecker creates a checker over the pool using the given prober
func NewChecker(pool InstancePool, prober Prober, cfg CheckerConfig) *Checker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	c := &Checker{
		pool:    pool,
		prober:  prober,
		timeout: cfg.Timeout,
	}
	c.task = schedule.NewTask("health-check", cfg.Interval, func() {
		c.CheckAll(context.Background())
	})
	return c
}

// Start begins periodic checking with an immediate first pass
func (c *Checker) Start() {
	go c.CheckAll(context.Background())
	c.task.Start()
}

// Stop halts periodic checking. An in-flight pass completes.
func (c *Checker) Stop() {
	c.task.Stop()
}

// CheckAll probes every instance in the pool once
func (c *Checker) CheckAll(ctx context.Context) {
	instances := c.pool.List()
	if len(instances) == 0 {
		return
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, maxConcurrentProbes)

	for _, instance := range instances {
		wg.Add(1)
		go func(inst *types.Instance) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			c.checkInstance(ctx, inst)
		}(instance)
	}

	wg.Wait()
}

// checkInstance probes one instance and applies the outcome to the pool
func (c *Checker) checkInstance(ctx context.Context, inst *types.Instance) {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.prober.Probe(probeCtx, inst)
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)

	result := registry.ProbeResult{
		Healthy:      err == nil,
		ResponseTime: elapsed,
		CheckedAt:    time.Now(),
	}
	prevHealthy, ok := c.pool.ApplyProbe(inst.ID, result)
	if !ok {
		return
	}

	switch {
	case result.Healthy && !prevHealthy:
		log.WithFields(log.Fields{
			"instance":         inst.ID,
			"response_time_ms": elapsed,
		}).Info("Instance recovered")
	case !result.Healthy && prevHealthy:
		log.WithFields(log.Fields{
			"instance": inst.ID,
			"error":    err,
		}).Warn("Instance failed health check")
	case !result.Healthy:
		log.WithFields(log.Fields{
			"instance": inst.ID,
			"error":    err,
		}).Debug("Instance still unhealthy")
	}

	if prevHealthy != result.Healthy && c.OnTransition != nil {
		c.OnTransition(inst.ID, result.Healthy)
	}
}
