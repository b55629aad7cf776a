// Package scaling evaluates named policies against the metrics window
// and emits scaling intents, tracking a cooldown clock per policy.
package scaling

import (
	"time"

	"github.com/loadpilot/loadpilot/pkg/types"
)

// Default bounds applied to the built-in policies
const (
	defaultMinInstances = 1
	defaultMaxInstances = 10
)

// DefaultPolicies returns the built-in rule set the engine starts with
func DefaultPolicies() []types.ScalingPolicy {
	return []types.ScalingPolicy{
		{
			Name:           "high-cpu-scale-up",
			Metric:         types.MetricCPU,
			Threshold:      80,
			Comparison:     types.CompareGreaterThan,
			Action:         types.ActionScaleUp,
			CooldownPeriod: 5 * time.Minute,
			MinInstances:   defaultMinInstances,
			MaxInstances:   defaultMaxInstances,
			ScaleAmount:    1,
		},
		{
			Name:           "low-cpu-scale-down",
			Metric:         types.MetricCPU,
			Threshold:      30,
			Comparison:     types.CompareLessThan,
			Action:         types.ActionScaleDown,
			CooldownPeriod: 10 * time.Minute,
			MinInstances:   defaultMinInstances,
			MaxInstances:   defaultMaxInstances,
			ScaleAmount:    1,
		},
		{
			Name:           "high-memory-scale-up",
			Metric:         types.MetricMemory,
			Threshold:      85,
			Comparison:     types.CompareGreaterThan,
			Action:         types.ActionScaleUp,
			CooldownPeriod: 5 * time.Minute,
			MinInstances:   defaultMinInstances,
			MaxInstances:   defaultMaxInstances,
			ScaleAmount:    1,
		},
		{
			Name:           "high-response-time-scale-up",
			Metric:         types.MetricResponseTime,
			Threshold:      2000,
			Comparison:     types.CompareGreaterThan,
			Action:         types.ActionScaleUp,
			CooldownPeriod: 3 * time.Minute,
			MinInstances:   defaultMinInstances,
			MaxInstances:   defaultMaxInstances,
			ScaleAmount:    2,
		},
		{
			Name:           "high-error-rate-scale-up",
			Metric:         types.MetricErrorRate,
			Threshold:      5,
			Comparison:     types.CompareGreaterThan,
			Action:         types.ActionScaleUp,
			CooldownPeriod: 2 * time.Minute,
			MinInstances:   defaultMinInstances,
			MaxInstances:   defaultMaxInstances,
			ScaleAmount:    2,
		},
	}
}

// conditionMet applies the policy operator to the windowed mean
func conditionMet(policy types.ScalingPolicy, mean float64) bool {
	switch policy.Comparison {
	case types.CompareGreaterThan:
		return mean > policy.Threshold
	case types.CompareLessThan:
		return mean < policy.Threshold
	default:
		return false
	}
}

// targetFor computes the clamped target instance count for a policy
func targetFor(policy types.ScalingPolicy, current int) int {
	if policy.Action == types.ActionScaleUp {
		return min(current+policy.ScaleAmount, policy.MaxInstances)
	}
	return max(current-policy.ScaleAmount, policy.MinInstances)
}

// Helper functions
func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
