// Package telemetry exposes Prometheus collectors for the routing,
// scaling and session surfaces. A nil *Metrics disables all
// instrumentation, so components can hold one unconditionally.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loadpilot/loadpilot/pkg/types"
)

const namespace = "loadpilot"

// Metrics bundles the registered collectors
type Metrics struct {
	registry *prometheus.Registry

	routingDecisions *prometheus.CounterVec
	routingMisses    prometheus.Counter
	healthFlips      *prometheus.CounterVec
	scalingIntents   *prometheus.CounterVec
	instances        prometheus.Gauge
	healthyInstances prometheus.Gauge
	currentLoad      prometheus.Gauge
	activeSessions   prometheus.Gauge
	ingestSamples    prometheus.Counter
	apiDuration      *prometheus.HistogramVec
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		routingDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Routing decisions by strategy and affinity outcome",
		}, []string{"strategy", "sticky"}),
		routingMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_misses_total",
			Help:      "Routing calls that found no healthy instance",
		}),
		healthFlips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_transitions_total",
			Help:      "Instance health state transitions",
		}, []string{"to"}),
		scalingIntents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scaling_intents_total",
			Help:      "Scaling intents emitted by source, action and outcome",
		}, []string{"source", "action", "outcome"}),
		instances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instances",
			Help:      "Registered instances",
		}),
		healthyInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "healthy_instances",
			Help:      "Healthy instances",
		}),
		currentLoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_load",
			Help:      "Connections relative to healthy capacity",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Live sessions in the session store",
		}),
		ingestSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_samples_total",
			Help:      "Metrics samples accepted by the ingest listener",
		}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Admin API request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		m.routingDecisions,
		m.routingMisses,
		m.healthFlips,
		m.scalingIntents,
		m.instances,
		m.healthyInstances,
		m.currentLoad,
		m.activeSessions,
		m.ingestSamples,
		m.apiDuration,
	)
	return m
}

// Registry returns the private registry for the /metrics handler
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// RouteDecision counts one routing decision
func (m *Metrics) RouteDecision(strategy string, sticky bool) {
	if m == nil {
		return
	}
	label := "no"
	if sticky {
		label = "yes"
	}
	m.routingDecisions.WithLabelValues(strategy, label).Inc()
}

// RouteMiss counts a routing call with no healthy instance
func (m *Metrics) RouteMiss() {
	if m == nil {
		return
	}
	m.routingMisses.Inc()
}

// HealthTransition counts an instance health flip
func (m *Metrics) HealthTransition(healthy bool) {
	if m == nil {
		return
	}
	to := "unhealthy"
	if healthy {
		to = "healthy"
	}
	m.healthFlips.WithLabelValues(to).Inc()
}

// ScalingIntent counts an emitted intent and its delivery outcome
func (m *Metrics) ScalingIntent(source string, action types.ScalingAction, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.scalingIntents.WithLabelValues(source, string(action), outcome).Inc()
}

// SetPoolStats updates the pool gauges from an aggregate snapshot
func (m *Metrics) SetPoolStats(stats types.RouterStats) {
	if m == nil {
		return
	}
	m.instances.Set(float64(stats.TotalInstances))
	m.healthyInstances.Set(float64(stats.HealthyInstances))
	m.currentLoad.Set(stats.CurrentLoad)
}

// SetActiveSessions updates the session gauge
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// IngestSamples counts accepted ingest samples
func (m *Metrics) IngestSamples(n int) {
	if m == nil {
		return
	}
	m.ingestSamples.Add(float64(n))
}

// ObserveAPIRequest records one admin API request duration
func (m *Metrics) ObserveAPIRequest(method, path string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.apiDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
