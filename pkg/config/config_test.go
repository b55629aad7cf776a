package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper isolates each test from the package-global viper state.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loadpilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	assert.Equal(t, "round-robin", cfg.Router.Strategy)
	assert.True(t, cfg.Router.AffinityEnabled)
	assert.Equal(t, 30*time.Minute, cfg.Router.AffinityTTL)
	assert.Equal(t, 30*time.Second, cfg.Router.MonitoringInterval)
	assert.True(t, cfg.Router.AutoScale)
	assert.Equal(t, 0.8, cfg.Router.ScaleUpThreshold)
	assert.Equal(t, 0.3, cfg.Router.ScaleDownThreshold)
	assert.Equal(t, 1, cfg.Router.MinInstances)
	assert.Equal(t, 10, cfg.Router.MaxInstances)
	assert.Equal(t, 5*time.Minute, cfg.Router.ScaleCooldown)

	assert.Equal(t, 10*time.Second, cfg.Health.Interval)
	assert.Equal(t, 5*time.Second, cfg.Health.Timeout)
	assert.Equal(t, "http", cfg.Health.Scheme)
	assert.Equal(t, "/api/health", cfg.Health.Path)

	assert.Equal(t, 30*time.Second, cfg.Scaling.CheckInterval)
	assert.Equal(t, 5*time.Minute, cfg.Scaling.MetricsWindow)
	assert.Equal(t, 100, cfg.Scaling.MaxEvents)
	assert.Equal(t, 10*time.Second, cfg.Scaling.NotifyTimeout)
	assert.Equal(t, 1, cfg.Scaling.InitialInstances)
	assert.Empty(t, cfg.Scaling.PolicyFile)

	assert.Equal(t, 10000, cfg.Session.MaxSessions)
	assert.Equal(t, 30*time.Minute, cfg.Session.SessionTimeout)
	assert.Equal(t, time.Minute, cfg.Session.CleanupInterval)

	assert.Equal(t, ":8089", cfg.Ingest.Addr)
	assert.Equal(t, float64(1000), cfg.Ingest.RatePerSecond)
	assert.Equal(t, 2000, cfg.Ingest.Burst)
	assert.Equal(t, 1048576, cfg.Ingest.MaxBodyBytes)

	assert.Equal(t, ":8088", cfg.API.Addr)

	assert.Empty(t, cfg.Notify.WebhookURL)
	assert.Equal(t, 10*time.Second, cfg.Notify.WebhookTimeout)
	assert.Empty(t, cfg.Notify.KafkaBrokers)
	assert.Equal(t, "scaling-intents", cfg.Notify.KafkaTopic)

	assert.Empty(t, cfg.Audit.PostgresDSN)
}

func TestLoadFromFile(t *testing.T) {
	resetViper(t)

	path := writeConfigFile(t, `
log:
  level: debug
  format: json
router:
  strategy: least-connections
  affinity_ttl: 10m
  max_instances: 20
scaling:
  initial_instances: 3
  policy_file: configs/policies.yaml
ingest:
  rate_per_second: 50
notify:
  webhook_url: http://hooks.internal/scale
  kafka_brokers:
    - broker-1:9092
    - broker-2:9092
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "least-connections", cfg.Router.Strategy)
	assert.Equal(t, 10*time.Minute, cfg.Router.AffinityTTL)
	assert.Equal(t, 20, cfg.Router.MaxInstances)
	assert.Equal(t, 3, cfg.Scaling.InitialInstances)
	assert.Equal(t, "configs/policies.yaml", cfg.Scaling.PolicyFile)
	assert.Equal(t, float64(50), cfg.Ingest.RatePerSecond)
	assert.Equal(t, "http://hooks.internal/scale", cfg.Notify.WebhookURL)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Notify.KafkaBrokers)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Health.Interval)
	assert.Equal(t, ":8088", cfg.API.Addr)
	assert.True(t, cfg.Router.AffinityEnabled)
}

func TestLoadExplicitFileMissing(t *testing.T) {
	resetViper(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadMalformedFile(t *testing.T) {
	resetViper(t)

	path := writeConfigFile(t, "router: [broken\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadNormalizesBounds(t *testing.T) {
	resetViper(t)

	path := writeConfigFile(t, `
router:
  scale_up_threshold: 1.7
  scale_down_threshold: 0.9
  min_instances: 0
  max_instances: 0
scaling:
  initial_instances: 0
session:
  max_sessions: -5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.Router.ScaleUpThreshold)
	assert.Equal(t, 0.3, cfg.Router.ScaleDownThreshold)
	assert.Equal(t, 1, cfg.Router.MinInstances)
	assert.Equal(t, 1, cfg.Router.MaxInstances)
	assert.Equal(t, 1, cfg.Scaling.InitialInstances)
	assert.Equal(t, 10000, cfg.Session.MaxSessions)
}

func TestNormalizeKeepsValidValues(t *testing.T) {
	cfg := Config{}
	cfg.Router.ScaleUpThreshold = 0.75
	cfg.Router.ScaleDownThreshold = 0.25
	cfg.Router.MinInstances = 2
	cfg.Router.MaxInstances = 8
	cfg.Scaling.InitialInstances = 4
	cfg.Session.MaxSessions = 500

	cfg.normalize()

	assert.Equal(t, 0.75, cfg.Router.ScaleUpThreshold)
	assert.Equal(t, 0.25, cfg.Router.ScaleDownThreshold)
	assert.Equal(t, 2, cfg.Router.MinInstances)
	assert.Equal(t, 8, cfg.Router.MaxInstances)
	assert.Equal(t, 4, cfg.Scaling.InitialInstances)
	assert.Equal(t, 500, cfg.Session.MaxSessions)
}
