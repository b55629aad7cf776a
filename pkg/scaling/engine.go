package scaling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/loadpilot/loadpilot/pkg/metrics"
	"github.com/loadpilot/loadpilot/pkg/notify"
	"github.com/loadpilot/loadpilot/pkg/schedule"
	"github.com/loadpilot/loadpilot/pkg/types"
)

// EngineConfig configures the policy engine
type EngineConfig struct {
	CheckInterval    time.Duration `json:"check_interval" yaml:"check_interval"`
	MetricsWindow    time.Duration `json:"metrics_window" yaml:"metrics_window"`
	MaxEvents        int           `json:"max_events" yaml:"max_events"`
	NotifyTimeout    time.Duration `json:"notify_timeout" yaml:"notify_timeout"`
	InitialInstances int           `json:"initial_instances" yaml:"initial_instances"`
}

// DefaultEngineConfig returns the default engine configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		CheckInterval:    30 * time.Second,
		MetricsWindow:    5 * time.Minute,
		MaxEvents:        100,
		NotifyTimeout:    10 * time.Second,
		InitialInstances: 1,
	}
}

// Status is the engine's observable state for the dashboard
type Status struct {
	Enabled          bool                 `json:"enabled"`
	CurrentInstances int                  `json:"current_instances"`
	PolicyCount      int                  `json:"policy_count"`
	EventCount       int                  `json:"event_count"`
	WindowSpan       time.Duration        `json:"window_span"`
	SampleCount      int                  `json:"sample_count"`
	Cooldowns        map[string]time.Time `json:"cooldowns,omitempty"`
}

// Engine evaluates the policy set against the metrics window on a
// fixed interval. Policies are independent: each has its own cooldown
// clock, and a failure in one never blocks the others.
type Engine struct {
	cfg      EngineConfig
	window   *metrics.Window
	notifier notify.Notifier
	task     *schedule.Task

	policies         map[string]types.ScalingPolicy
	policyOrder      []string
	lastScaleTime    map[string]time.Time
	currentInstances int
	events           []types.ScalingEvent
	enabled          bool
	mu               sync.RWMutex

	// OnEvent, when set, observes every appended scaling event
	OnEvent func(event types.ScalingEvent)
}

// NewEngine creates an engine loaded with the default policies
func NewEngine(cfg EngineConfig, notifier notify.Notifier) *Engine {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.MetricsWindow <= 0 {
		cfg.MetricsWindow = 5 * time.Minute
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 100
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	if cfg.InitialInstances < 1 {
		cfg.InitialInstances = 1
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}

	e := &Engine{
		cfg:              cfg,
		window:           metrics.NewWindow(cfg.MetricsWindow),
		notifier:         notifier,
		policies:         make(map[string]types.ScalingPolicy),
		lastScaleTime:    make(map[string]time.Time),
		currentInstances: cfg.InitialInstances,
	}
	for _, p := range DefaultPolicies() {
		e.policies[p.Name] = p
		e.policyOrder = append(e.policyOrder, p.Name)
	}
	e.task = schedule.NewTask("policy-evaluation", cfg.CheckInterval, func() {
		e.EvaluateNow(context.Background())
	})
	return e
}

// AddPolicy installs or replaces a policy by name
func (e *Engine) AddPolicy(policy types.ScalingPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.policies[policy.Name]; !exists {
		e.policyOrder = append(e.policyOrder, policy.Name)
	}
	e.policies[policy.Name] = policy

	log.WithFields(log.Fields{
		"policy":    policy.Name,
		"metric":    policy.Metric,
		"threshold": policy.Threshold,
		"action":    policy.Action,
	}).Info("Scaling policy installed")
	return nil
}

// RemovePolicy deletes a policy and its cooldown state
func (e *Engine) RemovePolicy(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.policies[name]; !exists {
		return types.ErrPolicyNotFound
	}
	delete(e.policies, name)
	delete(e.lastScaleTime, name)
	for i, n := range e.policyOrder {
		if n == name {
			e.policyOrder = append(e.policyOrder[:i], e.policyOrder[i+1:]...)
			break
		}
	}

	log.WithFields(log.Fields{"policy": name}).Info("Scaling policy removed")
	return nil
}

// Policies returns the installed policies in installation order
func (e *Engine) Policies() []types.ScalingPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]types.ScalingPolicy, 0, len(e.policyOrder))
	for _, name := range e.policyOrder {
		out = append(out, e.policies[name])
	}
	return out
}

// RecordMetrics appends a sample to the window. The sample's
// active-instance count overwrites the engine's current count,
// last write wins.
func (e *Engine) RecordMetrics(sample types.MetricsSample) {
	e.window.Add(sample)

	e.mu.Lock()
	e.currentInstances = sample.ActiveInstances
	e.mu.Unlock()
}

// CurrentInstances returns the engine's notion of the instance count
func (e *Engine) CurrentInstances() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentInstances
}

// EvaluateNow runs one evaluation pass over all policies. Policies are
// evaluated sequentially; an error in one is contained and the rest
// still run.
func (e *Engine) EvaluateNow(ctx context.Context) {
	e.mu.RLock()
	order := make([]string, len(e.policyOrder))
	copy(order, e.policyOrder)
	e.mu.RUnlock()

	for _, name := range order {
		if err := e.evaluatePolicy(ctx, name); err != nil {
			log.WithFields(log.Fields{
				"policy": name,
				"error":  err,
			}).Error("Policy evaluation failed")
		}
	}
}

// evaluatePolicy runs the decision ladder for one policy
func (e *Engine) evaluatePolicy(ctx context.Context, name string) error {
	now := time.Now()

	e.mu.RLock()
	policy, exists := e.policies[name]
	lastScale := e.lastScaleTime[name]
	current := e.currentInstances
	e.mu.RUnlock()

	if !exists {
		return nil
	}
	if now.Sub(lastScale) < policy.CooldownPeriod {
		return nil
	}

	mean, ok := e.window.MetricMean(policy.Metric)
	if !ok {
		return nil
	}
	if !conditionMet(policy, mean) {
		return nil
	}

	target := targetFor(policy, current)
	if target == current {
		return nil
	}

	op := "above"
	if policy.Comparison == types.CompareLessThan {
		op = "below"
	}
	reason := fmt.Sprintf("%s %.2f %s threshold %.2f", policy.Metric, mean, op, policy.Threshold)

	event := types.ScalingEvent{
		ID:            uuid.NewString(),
		Timestamp:     now,
		PolicyName:    policy.Name,
		Action:        policy.Action,
		Reason:        reason,
		FromInstances: current,
		ToInstances:   target,
		Metrics:       e.window.Mean(),
	}

	notifyCtx, cancel := context.WithTimeout(ctx, e.cfg.NotifyTimeout)
	err := e.notifier.Notify(notifyCtx, types.ScalingIntent{
		Action:          policy.Action,
		TargetInstances: target,
		Timestamp:       now,
	})
	cancel()

	e.mu.Lock()
	if err != nil {
		event.Success = false
		event.Error = err.Error()
	} else {
		event.Success = true
		e.currentInstances = target
		e.lastScaleTime[policy.Name] = now
	}
	e.appendEventLocked(event)
	e.mu.Unlock()

	if err != nil {
		log.WithFields(log.Fields{
			"policy": policy.Name,
			"target": target,
			"error":  err,
		}).Warn("Scaling action failed")
		return nil
	}

	log.WithFields(log.Fields{
		"policy": policy.Name,
		"action": policy.Action,
		"from":   current,
		"to":     target,
		"reason": reason,
	}).Info("Scaling action emitted")
	return nil
}

// appendEventLocked appends to the capped event log. Caller holds the lock.
func (e *Engine) appendEventLocked(event types.ScalingEvent) {
	e.events = append(e.events, event)
	if len(e.events) > e.cfg.MaxEvents {
		e.events = append(e.events[:0], e.events[len(e.events)-e.cfg.MaxEvents:]...)
	}
	if e.OnEvent != nil {
		go e.OnEvent(event)
	}
}

// Events returns up to limit events, newest first. A non-positive
// limit returns all retained events.
func (e *Engine) Events(limit int) []types.ScalingEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()

	n := len(e.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]types.ScalingEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, e.events[i])
	}
	return out
}

// CurrentMetrics averages the samples from the trailing minute
func (e *Engine) CurrentMetrics() types.MetricsSummary {
	return e.window.MeanOver(time.Minute, time.Now())
}

// Status returns the engine's observable state
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := time.Now()
	cooldowns := make(map[string]time.Time)
	for name, last := range e.lastScaleTime {
		policy, exists := e.policies[name]
		if !exists {
			continue
		}
		if until := last.Add(policy.CooldownPeriod); until.After(now) {
			cooldowns[name] = until
		}
	}

	return Status{
		Enabled:          e.enabled,
		CurrentInstances: e.currentInstances,
		PolicyCount:      len(e.policies),
		EventCount:       len(e.events),
		WindowSpan:       e.window.Span(),
		SampleCount:      e.window.Len(),
		Cooldowns:        cooldowns,
	}
}

// SetEnabled starts or stops the evaluation loop
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	if e.enabled == enabled {
		e.mu.Unlock()
		return
	}
	e.enabled = enabled
	e.mu.Unlock()

	if enabled {
		e.task.Start()
		log.Info("Scaling engine enabled")
	} else {
		e.task.Stop()
		log.Info("Scaling engine disabled")
	}
}

// Enabled reports whether the evaluation loop is running
func (e *Engine) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// Shutdown stops the evaluation loop. In-flight notifications finish
// on their own schedule; they are not force-cancelled.
func (e *Engine) Shutdown() {
	e.SetEnabled(false)
}
