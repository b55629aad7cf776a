package types

import (
	"time"
)

// ScalingAction represents the direction of a scaling change
type ScalingAction string

const (
	ActionScaleUp   ScalingAction = "scale_up"
	ActionScaleDown ScalingAction = "scale_down"
)

// Comparison represents the operator a policy applies to its metric
type Comparison string

const (
	CompareGreaterThan Comparison = "gt"
	CompareLessThan    Comparison = "lt"
)

// PolicyMetric names a metric a scaling policy evaluates
type PolicyMetric string

const (
	MetricCPU               PolicyMetric = "cpu"
	MetricMemory            PolicyMetric = "memory"
	MetricConnections       PolicyMetric = "connections"
	MetricResponseTime      PolicyMetric = "response_time"
	MetricErrorRate         PolicyMetric = "error_rate"
	MetricRequestsPerSecond PolicyMetric = "requests_per_second"
)

// ScalingPolicy is a named rule evaluated against windowed metrics.
// Name is unique and keys the per-policy cooldown clock.
type ScalingPolicy struct {
	Name           string        `json:"name"`
	Metric         PolicyMetric  `json:"metric"`
	Threshold      float64       `json:"threshold"`
	Comparison     Comparison    `json:"comparison"`
	Action         ScalingAction `json:"action"`
	CooldownPeriod time.Duration `json:"cooldown_period"`
	MinInstances   int           `json:"min_instances"`
	MaxInstances   int           `json:"max_instances"`
	ScaleAmount    int           `json:"scale_amount"`
}

// Validate checks the policy for fields that would make it inert or unsafe
func (p *ScalingPolicy) Validate() error {
	if p.Name == "" {
		return ErrInvalidConfig("policy name is required")
	}
	if p.Metric == "" {
		return ErrInvalidConfig("policy %s has no metric", p.Name)
	}
	if p.Comparison != CompareGreaterThan && p.Comparison != CompareLessThan {
		return ErrInvalidConfig("policy %s has unknown comparison %q", p.Name, p.Comparison)
	}
	if p.Action != ActionScaleUp && p.Action != ActionScaleDown {
		return ErrInvalidConfig("policy %s has unknown action %q", p.Name, p.Action)
	}
	if p.ScaleAmount <= 0 {
		return ErrInvalidConfig("policy %s has non-positive scale amount", p.Name)
	}
	if p.MinInstances < 1 {
		p.MinInstances = 1
	}
	if p.MaxInstances < p.MinInstances {
		return ErrInvalidConfig("policy %s has max instances below min", p.Name)
	}
	return nil
}

// ScalingEvent records one attempted scaling action, successful or not
type ScalingEvent struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	PolicyName    string         `json:"policy_name"`
	Action        ScalingAction  `json:"action"`
	Reason        string         `json:"reason"`
	FromInstances int            `json:"from_instances"`
	ToInstances   int            `json:"to_instances"`
	Metrics       MetricsSummary `json:"metrics"`
	Success       bool           `json:"success"`
	Error         string         `json:"error,omitempty"`
}

// ScalingIntent is the wire form of a capacity-change request emitted to sinks
type ScalingIntent struct {
	Action          ScalingAction `json:"action"`
	TargetInstances int           `json:"targetInstances"`
	Timestamp       time.Time     `json:"timestamp"`
}
