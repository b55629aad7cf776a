// Package config loads application configuration from file and
// environment, with defaults for every key.
package config

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the root application configuration
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Router  RouterConfig  `mapstructure:"router"`
	Health  HealthConfig  `mapstructure:"health"`
	Scaling ScalingConfig `mapstructure:"scaling"`
	Session SessionConfig `mapstructure:"session"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	API     APIConfig     `mapstructure:"api"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Audit   AuditConfig   `mapstructure:"audit"`
}

// LogConfig controls log output
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RouterConfig controls routing and the threshold scaler
type RouterConfig struct {
	Strategy           string        `mapstructure:"strategy"`
	AffinityEnabled    bool          `mapstructure:"affinity_enabled"`
	AffinityTTL        time.Duration `mapstructure:"affinity_ttl"`
	MonitoringInterval time.Duration `mapstructure:"monitoring_interval"`
	AutoScale          bool          `mapstructure:"auto_scale"`
	ScaleUpThreshold   float64       `mapstructure:"scale_up_threshold"`
	ScaleDownThreshold float64       `mapstructure:"scale_down_threshold"`
	MinInstances       int           `mapstructure:"min_instances"`
	MaxInstances       int           `mapstructure:"max_instances"`
	ScaleCooldown      time.Duration `mapstructure:"scale_cooldown"`
}

// HealthConfig controls instance health probing
type HealthConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Scheme   string        `mapstructure:"scheme"`
	Path     string        `mapstructure:"path"`
}

// ScalingConfig controls the policy engine
type ScalingConfig struct {
	CheckInterval    time.Duration `mapstructure:"check_interval"`
	MetricsWindow    time.Duration `mapstructure:"metrics_window"`
	MaxEvents        int           `mapstructure:"max_events"`
	NotifyTimeout    time.Duration `mapstructure:"notify_timeout"`
	InitialInstances int           `mapstructure:"initial_instances"`
	PolicyFile       string        `mapstructure:"policy_file"`
}

// SessionConfig controls the session store
type SessionConfig struct {
	MaxSessions     int           `mapstructure:"max_sessions"`
	SessionTimeout  time.Duration `mapstructure:"session_timeout"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// IngestConfig controls the data-plane listener
type IngestConfig struct {
	Addr          string  `mapstructure:"addr"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
	MaxBodyBytes  int     `mapstructure:"max_body_bytes"`
}

// APIConfig controls the admin HTTP server
type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

// NotifyConfig controls scaling intent delivery
type NotifyConfig struct {
	WebhookURL     string        `mapstructure:"webhook_url"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
	KafkaBrokers   []string      `mapstructure:"kafka_brokers"`
	KafkaTopic     string        `mapstructure:"kafka_topic"`
}

// AuditConfig controls scaling event persistence
type AuditConfig struct {
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// Load reads configuration. An explicit path names the config file to
// use; with an empty path the usual locations are searched and missing
// files fall back to defaults.
func Load(path string) (*Config, error) {
	setDefaults()

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("loadpilot")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("LOADPILOT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Info("No config file found, using defaults")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.normalize()
	return &config, nil
}

func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Router defaults
	viper.SetDefault("router.strategy", "round-robin")
	viper.SetDefault("router.affinity_enabled", true)
	viper.SetDefault("router.affinity_ttl", "30m")
	viper.SetDefault("router.monitoring_interval", "30s")
	viper.SetDefault("router.auto_scale", true)
	viper.SetDefault("router.scale_up_threshold", 0.8)
	viper.SetDefault("router.scale_down_threshold", 0.3)
	viper.SetDefault("router.min_instances", 1)
	viper.SetDefault("router.max_instances", 10)
	viper.SetDefault("router.scale_cooldown", "5m")

	// Health defaults
	viper.SetDefault("health.interval", "10s")
	viper.SetDefault("health.timeout", "5s")
	viper.SetDefault("health.scheme", "http")
	viper.SetDefault("health.path", "/api/health")

	// Scaling defaults
	viper.SetDefault("scaling.check_interval", "30s")
	viper.SetDefault("scaling.metrics_window", "5m")
	viper.SetDefault("scaling.max_events", 100)
	viper.SetDefault("scaling.notify_timeout", "10s")
	viper.SetDefault("scaling.initial_instances", 1)
	viper.SetDefault("scaling.policy_file", "")

	// Session defaults
	viper.SetDefault("session.max_sessions", 10000)
	viper.SetDefault("session.session_timeout", "30m")
	viper.SetDefault("session.cleanup_interval", "1m")

	// Ingest defaults
	viper.SetDefault("ingest.addr", ":8089")
	viper.SetDefault("ingest.rate_per_second", 1000)
	viper.SetDefault("ingest.burst", 2000)
	viper.SetDefault("ingest.max_body_bytes", 1048576)

	// API defaults
	viper.SetDefault("api.addr", ":8088")

	// Notify defaults
	viper.SetDefault("notify.webhook_url", "")
	viper.SetDefault("notify.webhook_timeout", "10s")
	viper.SetDefault("notify.kafka_brokers", []string{})
	viper.SetDefault("notify.kafka_topic", "scaling-intents")

	// Audit defaults
	viper.SetDefault("audit.postgres_dsn", "")
}

// normalize replaces out-of-range values with their defaults
func (c *Config) normalize() {
	if c.Router.ScaleUpThreshold <= 0 || c.Router.ScaleUpThreshold > 1 {
		c.Router.ScaleUpThreshold = 0.8
	}
	if c.Router.ScaleDownThreshold < 0 || c.Router.ScaleDownThreshold >= c.Router.ScaleUpThreshold {
		c.Router.ScaleDownThreshold = 0.3
	}
	if c.Router.MinInstances < 1 {
		c.Router.MinInstances = 1
	}
	if c.Router.MaxInstances < c.Router.MinInstances {
		c.Router.MaxInstances = c.Router.MinInstances
	}
	if c.Scaling.InitialInstances < 1 {
		c.Scaling.InitialInstances = 1
	}
	if c.Session.MaxSessions < 1 {
		c.Session.MaxSessions = 10000
	}
}
