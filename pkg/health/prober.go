// Package health probes registered instances and feeds the outcomes
// back into the pool.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/loadpilot/loadpilot/pkg/types"
)

// Prober issues a single liveness probe against an instance
type Prober interface {
	Probe(ctx context.Context, inst *types.Instance) error
}

// HTTPProber probes instances over HTTP. Any response outside 2xx,
// a timeout or a transport error counts as a failed probe.
type HTTPProber struct {
	client    *http.Client
	scheme    string
	path      string
	userAgent string
}

// NewHTTPProber creates a prober hitting scheme://host:port{path}
func NewHTTPProber(scheme, path string, client *http.Client) *HTTPProber {
	if scheme == "" {
		scheme = "http"
	}
	if path == "" {
		path = "/api/health"
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPProber{
		client:    client,
		scheme:    scheme,
		path:      path,
		userAgent: "loadpilot-health/1.0",
	}
}

// Probe performs the HTTP liveness check
func (p *HTTPProber) Probe(ctx context.Context, inst *types.Instance) error {
	probeURL := fmt.Sprintf("%s://%s:%d%s", p.scheme, inst.Host, inst.Port, p.path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unhealthy status code: %d", resp.StatusCode)
	}
	return nil
}

// StaticProber is a test double whose outcomes are set per instance id
type StaticProber struct {
	healthy map[string]bool
	mu      sync.RWMutex
}

// NewStaticProber creates a prober that reports every instance healthy
// until told otherwise
func NewStaticProber() *StaticProber {
	return &StaticProber{
		healthy: make(map[string]bool),
	}
}

// Probe reports the configured outcome for the instance
func (s *StaticProber) Probe(ctx context.Context, inst *types.Instance) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if healthy, ok := s.healthy[inst.ID]; ok && !healthy {
		return fmt.Errorf("instance marked as unhealthy")
	}
	return nil
}

// SetHealthy sets the probe outcome for an instance id
func (s *StaticProber) SetHealthy(instanceID string, healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy[instanceID] = healthy
}
