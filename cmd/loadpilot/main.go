package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/loadpilot/loadpilot/pkg/api"
	"github.com/loadpilot/loadpilot/pkg/audit"
	"github.com/loadpilot/loadpilot/pkg/config"
	"github.com/loadpilot/loadpilot/pkg/health"
	"github.com/loadpilot/loadpilot/pkg/ingest"
	"github.com/loadpilot/loadpilot/pkg/notify"
	"github.com/loadpilot/loadpilot/pkg/registry"
	"github.com/loadpilot/loadpilot/pkg/router"
	"github.com/loadpilot/loadpilot/pkg/scaling"
	"github.com/loadpilot/loadpilot/pkg/schedule"
	"github.com/loadpilot/loadpilot/pkg/session"
	"github.com/loadpilot/loadpilot/pkg/telemetry"
	"github.com/loadpilot/loadpilot/pkg/types"
)

// Set via -ldflags at build time
var (
	version = "dev"
	commit  = "none"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config file")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	setupLogging(cfg.Log)

	log.WithFields(log.Fields{
		"version": version,
		"commit":  commit,
	}).Info("loadpilot starting")

	tel := telemetry.New()

	// Scaling intent sinks. The Kafka sink degrades to log-only when no
	// brokers are configured, so there is always at least one sink.
	notifier := buildNotifier(cfg.Notify)
	defer notifier.Close()

	auditor, err := audit.Open(cfg.Audit.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to open audit store: %v", err)
	}
	defer auditor.Close()
	if auditor.Enabled() {
		schemaCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := auditor.EnsureSchema(schemaCtx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to ensure audit schema: %v", err)
		}
	}

	// Instance pool and health checking
	pool := registry.NewPool()
	prober := health.NewHTTPProber(cfg.Health.Scheme, cfg.Health.Path, nil)
	checker := health.NewChecker(pool, prober, health.CheckerConfig{
		Interval: cfg.Health.Interval,
		Timeout:  cfg.Health.Timeout,
	})
	checker.OnTransition = func(instanceID string, healthy bool) {
		tel.HealthTransition(healthy)
	}

	rt := router.New(router.Config{
		Strategy:           cfg.Router.Strategy,
		AffinityEnabled:    cfg.Router.AffinityEnabled,
		AffinityTTL:        cfg.Router.AffinityTTL,
		MonitoringInterval: cfg.Router.MonitoringInterval,
		AutoScale:          cfg.Router.AutoScale,
		ScaleUpThreshold:   cfg.Router.ScaleUpThreshold,
		ScaleDownThreshold: cfg.Router.ScaleDownThreshold,
		MinInstances:       cfg.Router.MinInstances,
		MaxInstances:       cfg.Router.MaxInstances,
		ScaleCooldown:      cfg.Router.ScaleCooldown,
		NotifyTimeout:      cfg.Scaling.NotifyTimeout,
	}, pool, checker, notifier, tel)

	// Policy engine
	engine := scaling.NewEngine(scaling.EngineConfig{
		CheckInterval:    cfg.Scaling.CheckInterval,
		MetricsWindow:    cfg.Scaling.MetricsWindow,
		MaxEvents:        cfg.Scaling.MaxEvents,
		NotifyTimeout:    cfg.Scaling.NotifyTimeout,
		InitialInstances: cfg.Scaling.InitialInstances,
	}, notifier)
	engine.OnEvent = func(event types.ScalingEvent) {
		tel.ScalingIntent("engine", event.Action, eventErr(event))

		recordCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		auditor.Record(recordCtx, event)
	}

	if cfg.Scaling.PolicyFile != "" {
		policies, err := config.LoadPolicies(cfg.Scaling.PolicyFile)
		if err != nil {
			log.Fatalf("Failed to load policy file: %v", err)
		}
		for _, policy := range policies {
			if err := engine.AddPolicy(policy); err != nil {
				log.Fatalf("Failed to install policy %s: %v", policy.Name, err)
			}
		}
	}

	// Session store
	sessions := session.NewStore(session.Config{
		MaxSessions:     cfg.Session.MaxSessions,
		SessionTimeout:  cfg.Session.SessionTimeout,
		CleanupInterval: cfg.Session.CleanupInterval,
	})

	// Servers
	ingestSrv := ingest.NewServer(ingest.Config{
		Addr:          cfg.Ingest.Addr,
		RatePerSecond: cfg.Ingest.RatePerSecond,
		Burst:         cfg.Ingest.Burst,
		MaxBodyBytes:  cfg.Ingest.MaxBodyBytes,
	}, engine, rt, tel)
	apiSrv := api.NewServer(cfg.API.Addr, api.NewHandler(rt, engine, sessions, tel), tel)

	// Start everything
	rt.Start()
	engine.SetEnabled(true)
	sessions.Start()

	gaugeTask := schedule.NewTask("telemetry-refresh", 15*time.Second, func() {
		tel.SetActiveSessions(sessions.Len())
	})
	gaugeTask.Start()

	go func() {
		if err := ingestSrv.Start(); err != nil {
			log.Fatalf("Ingest listener failed: %v", err)
		}
	}()
	go func() {
		if err := apiSrv.Start(); err != nil {
			log.Fatalf("Admin API failed: %v", err)
		}
	}()

	log.WithFields(log.Fields{
		"api":      cfg.API.Addr,
		"ingest":   cfg.Ingest.Addr,
		"strategy": cfg.Router.Strategy,
		"audit":    auditor.Enabled(),
	}).Info("loadpilot started")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down loadpilot...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ingestSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Error during ingest shutdown: %v", err)
	}
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Error during API shutdown: %v", err)
	}
	gaugeTask.Stop()
	engine.Shutdown()
	rt.Stop()
	sessions.Stop()

	log.Info("loadpilot stopped")
}

// setupLogging applies log level and format from config
func setupLogging(cfg config.LogConfig) {
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// buildNotifier assembles the sink fan-out from config
func buildNotifier(cfg config.NotifyConfig) *notify.Multi {
	sinks := []notify.Notifier{}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout))
	}
	sinks = append(sinks, notify.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic))
	return notify.NewMulti(sinks...)
}

// eventErr reconstructs the delivery error carried by a failed event
func eventErr(event types.ScalingEvent) error {
	if event.Success {
		return nil
	}
	return errors.New(event.Error)
}
