package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loadpilot/loadpilot/pkg/types"
)

// LoadPolicies loads scaling policies from a YAML file
func LoadPolicies(path string) ([]types.ScalingPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	rawPolicies, ok := rawConfig["policies"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("policy file missing policies list")
	}

	policies := make([]types.ScalingPolicy, 0, len(rawPolicies))
	for i, raw := range rawPolicies {
		policy, err := parsePolicy(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse policy %d: %w", i, err)
		}
		policies = append(policies, policy)
	}

	return policies, nil
}

func parsePolicy(data interface{}) (types.ScalingPolicy, error) {
	policyMap, ok := data.(map[string]interface{})
	if !ok {
		return types.ScalingPolicy{}, fmt.Errorf("invalid policy configuration")
	}

	policy := types.ScalingPolicy{
		Name:         getStringOrDefault(policyMap, "name", ""),
		Metric:       types.PolicyMetric(getStringOrDefault(policyMap, "metric", "cpu")),
		Threshold:    getFloatOrDefault(policyMap, "threshold", 80),
		Comparison:   types.Comparison(getStringOrDefault(policyMap, "comparison", "gt")),
		Action:       types.ScalingAction(getStringOrDefault(policyMap, "action", "scale_up")),
		MinInstances: getIntOrDefault(policyMap, "min_instances", 1),
		MaxInstances: getIntOrDefault(policyMap, "max_instances", 10),
		ScaleAmount:  getIntOrDefault(policyMap, "scale_amount", 1),
	}

	if v, ok := policyMap["cooldown"].(string); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return types.ScalingPolicy{}, fmt.Errorf("invalid cooldown: %w", err)
		}
		policy.CooldownPeriod = d
	}

	if err := policy.Validate(); err != nil {
		return types.ScalingPolicy{}, err
	}

	return policy, nil
}

func getStringOrDefault(m map[string]interface{}, key, defaultValue string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return defaultValue
}

func getIntOrDefault(m map[string]interface{}, key string, defaultValue int) int {
	if v, ok := m[key].(int); ok {
		return v
	}
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return defaultValue
}

func getFloatOrDefault(m map[string]interface{}, key string, defaultValue float64) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	if v, ok := m[key].(int); ok {
		return float64(v)
	}
	return defaultValue
}
