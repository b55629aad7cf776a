// Package metrics provides the rolling sample window that scaling
// decisions are evaluated against.
package metrics

import (
	"sync"
	"time"

	"github.com/loadpilot/loadpilot/pkg/types"
)

// Window retains metrics samples for a bounded trailing time span.
// Samples older than the span are pruned on every insertion, so the
// buffer never grows beyond what one span of pushes produces.
type Window struct {
	span    time.Duration
	samples []types.MetricsSample
	mu      sync.RWMutex
}

// NewWindow creates a window retaining samples for the given span
func NewWindow(span time.Duration) *Window {
	if span <= 0 {
		span = 5 * time.Minute
	}
	return &Window{
		span:    span,
		samples: make([]types.MetricsSample, 0, 64),
	}
}

// Add timestamps the sample if needed, appends it and prunes expired entries
func (w *Window) Add(sample types.MetricsSample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	w.samples = append(w.samples, sample)
	w.prune(sample.Timestamp)
}

// prune drops samples older than the window span. Caller holds the lock.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	idx := 0
	for idx < len(w.samples) && !w.samples[idx].Timestamp.After(cutoff) {
		idx++
	}
	if idx > 0 {
		w.samples = append(w.samples[:0], w.samples[idx:]...)
	}
}

// Len returns the number of retained samples
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.samples)
}

// Span returns the configured retention span
func (w *Window) Span() time.Duration {
	return w.span
}

// Samples returns a copy of the retained samples in insertion order
func (w *Window) Samples() []types.MetricsSample {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]types.MetricsSample, len(w.samples))
	copy(out, w.samples)
	return out
}

// Mean averages all retained samples
func (w *Window) Mean() types.MetricsSummary {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return summarize(w.samples)
}

// MeanOver averages the samples within the trailing span from now
func (w *Window) MeanOver(span time.Duration, now time.Time) types.MetricsSummary {
	w.mu.RLock()
	defer w.mu.RUnlock()

	cutoff := now.Add(-span)
	recent := w.samples
	for len(recent) > 0 && !recent[0].Timestamp.After(cutoff) {
		recent = recent[1:]
	}
	return summarize(recent)
}

// MetricMean returns the mean of one named metric over all retained samples
func (w *Window) MetricMean(metric types.PolicyMetric) (float64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.samples) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range w.samples {
		sum += metricValue(s, metric)
	}
	return sum / float64(len(w.samples)), true
}

func summarize(samples []types.MetricsSample) types.MetricsSummary {
	summary := types.MetricsSummary{SampleCount: len(samples)}
	if len(samples) == 0 {
		return summary
	}
	for _, s := range samples {
		summary.CPU += s.CPU
		summary.Memory += s.Memory
		summary.Connections += float64(s.Connections)
		summary.ResponseTime += s.ResponseTime
		summary.ErrorRate += s.ErrorRate
		summary.RequestsPerSecond += s.RequestsPerSecond
	}
	n := float64(len(samples))
	summary.CPU /= n
	summary.Memory /= n
	summary.Connections /= n
	summary.ResponseTime /= n
	summary.ErrorRate /= n
	summary.RequestsPerSecond /= n
	return summary
}

func metricValue(s types.MetricsSample, metric types.PolicyMetric) float64 {
	switch metric {
	case types.MetricCPU:
		return s.CPU
	case types.MetricMemory:
		return s.Memory
	case types.MetricConnections:
		return float64(s.Connections)
	case types.MetricResponseTime:
		return s.ResponseTime
	case types.MetricErrorRate:
		return s.ErrorRate
	case types.MetricRequestsPerSecond:
		return s.RequestsPerSecond
	default:
		return 0
	}
}
