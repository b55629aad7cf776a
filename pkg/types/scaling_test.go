package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPolicy() ScalingPolicy {
	return ScalingPolicy{
		Name:           "high-cpu-scale-up",
		Metric:         MetricCPU,
		Threshold:      80,
		Comparison:     CompareGreaterThan,
		Action:         ActionScaleUp,
		CooldownPeriod: 5 * time.Minute,
		MinInstances:   1,
		MaxInstances:   10,
		ScaleAmount:    1,
	}
}

func TestPolicyValidate(t *testing.T) {
	p := validPolicy()
	assert.NoError(t, p.Validate())
}

func TestPolicyValidateFixesMinInstances(t *testing.T) {
	p := validPolicy()
	p.MinInstances = 0

	require.NoError(t, p.Validate())
	assert.Equal(t, 1, p.MinInstances)
}

func TestPolicyValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*ScalingPolicy)
		wantErr string
	}{
		{
			name:    "missing name",
			mutate:  func(p *ScalingPolicy) { p.Name = "" },
			wantErr: "name is required",
		},
		{
			name:    "missing metric",
			mutate:  func(p *ScalingPolicy) { p.Metric = "" },
			wantErr: "has no metric",
		},
		{
			name:    "unknown comparison",
			mutate:  func(p *ScalingPolicy) { p.Comparison = "between" },
			wantErr: "unknown comparison",
		},
		{
			name:    "unknown action",
			mutate:  func(p *ScalingPolicy) { p.Action = "hold" },
			wantErr: "unknown action",
		},
		{
			name:    "zero scale amount",
			mutate:  func(p *ScalingPolicy) { p.ScaleAmount = 0 },
			wantErr: "non-positive scale amount",
		},
		{
			name:    "max below min",
			mutate:  func(p *ScalingPolicy) { p.MinInstances = 5; p.MaxInstances = 3 },
			wantErr: "max instances below min",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validPolicy()
			tc.mutate(&p)

			err := p.Validate()
			require.Error(t, err)
			assert.IsType(t, ConfigError{}, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
