package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadpilot/loadpilot/pkg/types"
)

func writePolicyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPolicies(t *testing.T) {
	path := writePolicyFile(t, `
policies:
  - name: burst-protect
    metric: error_rate
    threshold: 10
    comparison: gt
    action: scale_up
    scale_amount: 2
    min_instances: 2
    max_instances: 12
    cooldown: 90s
  - name: quiet-hours
    metric: connections
    threshold: 15.5
    comparison: lt
    action: scale_down
`)

	policies, err := LoadPolicies(path)
	require.NoError(t, err)
	require.Len(t, policies, 2)

	burst := policies[0]
	assert.Equal(t, "burst-protect", burst.Name)
	assert.Equal(t, types.MetricErrorRate, burst.Metric)
	assert.Equal(t, 10.0, burst.Threshold)
	assert.Equal(t, types.CompareGreaterThan, burst.Comparison)
	assert.Equal(t, types.ActionScaleUp, burst.Action)
	assert.Equal(t, 2, burst.ScaleAmount)
	assert.Equal(t, 2, burst.MinInstances)
	assert.Equal(t, 12, burst.MaxInstances)
	assert.Equal(t, 90*time.Second, burst.CooldownPeriod)

	// Unset fields come back as defaults.
	quiet := policies[1]
	assert.Equal(t, "quiet-hours", quiet.Name)
	assert.Equal(t, types.MetricConnections, quiet.Metric)
	assert.Equal(t, 15.5, quiet.Threshold)
	assert.Equal(t, types.CompareLessThan, quiet.Comparison)
	assert.Equal(t, types.ActionScaleDown, quiet.Action)
	assert.Equal(t, 1, quiet.ScaleAmount)
	assert.Equal(t, 1, quiet.MinInstances)
	assert.Equal(t, 10, quiet.MaxInstances)
	assert.Equal(t, time.Duration(0), quiet.CooldownPeriod)
}

func TestLoadPoliciesEmptyList(t *testing.T) {
	path := writePolicyFile(t, "policies: []\n")

	policies, err := LoadPolicies(path)
	require.NoError(t, err)
	assert.Empty(t, policies)
}

func TestLoadPoliciesFileMissing(t *testing.T) {
	_, err := LoadPolicies(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read policy file")
}

func TestLoadPoliciesMissingList(t *testing.T) {
	path := writePolicyFile(t, "settings:\n  interval: 10s\n")

	_, err := LoadPolicies(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing policies list")
}

func TestLoadPoliciesBadCooldown(t *testing.T) {
	path := writePolicyFile(t, `
policies:
  - name: bad-cooldown
    metric: cpu
    cooldown: never
`)

	_, err := LoadPolicies(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cooldown")
}

func TestLoadPoliciesRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown comparison",
			content: "policies:\n  - name: odd\n    metric: cpu\n    comparison: between\n",
			wantErr: "unknown comparison",
		},
		{
			name:    "missing name",
			content: "policies:\n  - metric: cpu\n",
			wantErr: "name is required",
		},
		{
			name:    "non-mapping entry",
			content: "policies:\n  - 42\n",
			wantErr: "invalid policy configuration",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writePolicyFile(t, tc.content)
			_, err := LoadPolicies(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
