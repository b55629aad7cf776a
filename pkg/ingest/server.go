// Package ingest runs the data-plane listener the application layer
// pushes metrics samples and request outcomes into. The hot path uses
// pooled parsers and per-source rate limiting.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fastjson"
	"golang.org/x/time/rate"

	"github.com/loadpilot/loadpilot/pkg/telemetry"
	"github.com/loadpilot/loadpilot/pkg/types"
)

var parserPool = sync.Pool{
	New: func() interface{} {
		return &fastjson.Parser{}
	},
}

// MetricsSink receives parsed metrics samples
type MetricsSink interface {
	RecordMetrics(sample types.MetricsSample)
}

// RequestSink receives parsed request outcome reports
type RequestSink interface {
	RecordRequest(id string, responseTime float64, success bool) bool
}

// Config configures the ingest listener
type Config struct {
	Addr          string  `json:"addr" yaml:"addr"`
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second"`
	Burst         int     `json:"burst" yaml:"burst"`
	MaxBodyBytes  int     `json:"max_body_bytes" yaml:"max_body_bytes"`
}

// DefaultConfig returns the default ingest configuration
func DefaultConfig() Config {
	return Config{
		Addr:          ":8089",
		RatePerSecond: 1000,
		Burst:         2000,
		MaxBodyBytes:  1024 * 1024,
	}
}

// Server is the fasthttp ingest listener
type Server struct {
	cfg     Config
	metrics MetricsSink
	reqs    RequestSink
	tel     *telemetry.Metrics
	server  *fasthttp.Server

	limiters map[string]*rate.Limiter
	limMu    sync.Mutex
}

// NewServer creates the listener over the given sinks
func NewServer(cfg Config, metrics MetricsSink, reqs RequestSink, tel *telemetry.Metrics) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8089"
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1000
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RatePerSecond * 2)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1024 * 1024
	}

	s := &Server{
		cfg:      cfg,
		metrics:  metrics,
		reqs:     reqs,
		tel:      tel,
		limiters: make(map[string]*rate.Limiter),
	}
	s.server = &fasthttp.Server{
		Handler:               s.Handle,
		Name:                  "loadpilot-ingest",
		MaxRequestBodySize:    cfg.MaxBodyBytes,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
		IdleTimeout:           60 * time.Second,
		NoDefaultServerHeader: true,
	}
	return s
}

// Start begins serving. It blocks until shutdown, so callers run it
// in a goroutine.
func (s *Server) Start() error {
	log.WithFields(log.Fields{"addr": s.cfg.Addr}).Info("Ingest listener starting")
	return s.server.ListenAndServe(s.cfg.Addr)
}

// Shutdown drains and stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.ShutdownWithContext(ctx)
}

// Handle dispatches one request
func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		ctx.SetBodyString(`{"error":"POST only"}`)
		return
	}

	if !s.allow(ctx.RemoteIP().String()) {
		ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
		ctx.Response.Header.Set("Retry-After", "1")
		ctx.SetBodyString(`{"error":"Rate limit exceeded"}`)
		return
	}

	switch string(ctx.Path()) {
	case "/v1/metrics":
		s.handleMetrics(ctx)
	case "/v1/requests":
		s.handleRequests(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString(`{"error":"Not found"}`)
	}
}

// handleMetrics parses one sample or a batch under "samples" and
// feeds them to the metrics sink
func (s *Server) handleMetrics(ctx *fasthttp.RequestCtx) {
	parser := parserPool.Get().(*fastjson.Parser)
	defer parserPool.Put(parser)

	v, err := parser.ParseBytes(ctx.PostBody())
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"error":"Invalid JSON"}`)
		return
	}

	samples := []*fastjson.Value{v}
	if v.Exists("samples") {
		samples = v.GetArray("samples")
	}

	accepted := 0
	for _, sv := range samples {
		sample, ok := parseSample(sv)
		if !ok {
			continue
		}
		s.metrics.RecordMetrics(sample)
		accepted++
	}
	if accepted == 0 {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"error":"No valid samples"}`)
		return
	}

	s.tel.IngestSamples(accepted)
	ctx.SetStatusCode(fasthttp.StatusAccepted)
	ctx.SetContentType("application/json")
	fmt.Fprintf(ctx, `{"accepted":%d}`, accepted)
}

// handleRequests parses request outcome reports under "reports" and
// folds them into the router's counters
func (s *Server) handleRequests(ctx *fasthttp.RequestCtx) {
	parser := parserPool.Get().(*fastjson.Parser)
	defer parserPool.Put(parser)

	v, err := parser.ParseBytes(ctx.PostBody())
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"error":"Invalid JSON"}`)
		return
	}

	reports := []*fastjson.Value{v}
	if v.Exists("reports") {
		reports = v.GetArray("reports")
	}

	accepted, unknown := 0, 0
	for _, rv := range reports {
		id := string(rv.GetStringBytes("instance_id"))
		if id == "" {
			continue
		}
		responseTime := rv.GetFloat64("response_time_ms")
		success := rv.GetBool("success")
		if s.reqs.RecordRequest(id, responseTime, success) {
			accepted++
		} else {
			unknown++
		}
	}
	if accepted == 0 && unknown == 0 {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"error":"No valid reports"}`)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusAccepted)
	ctx.SetContentType("application/json")
	fmt.Fprintf(ctx, `{"accepted":%d,"unknown":%d}`, accepted, unknown)
}

var sampleFields = []string{
	"cpu", "memory", "connections", "response_time_ms",
	"error_rate", "requests_per_second", "active_instances", "timestamp",
}

// parseSample reads one metrics sample object. A sample with no
// recognized fields is rejected.
func parseSample(v *fastjson.Value) (types.MetricsSample, bool) {
	if v == nil || v.Type() != fastjson.TypeObject {
		return types.MetricsSample{}, false
	}
	known := false
	for _, field := range sampleFields {
		if v.Exists(field) {
			known = true
			break
		}
	}
	if !known {
		return types.MetricsSample{}, false
	}

	sample := types.MetricsSample{
		CPU:               v.GetFloat64("cpu"),
		Memory:            v.GetFloat64("memory"),
		Connections:       v.GetInt("connections"),
		ResponseTime:      v.GetFloat64("response_time_ms"),
		ErrorRate:         v.GetFloat64("error_rate"),
		RequestsPerSecond: v.GetFloat64("requests_per_second"),
		ActiveInstances:   v.GetInt("active_instances"),
	}
	if ts := v.GetInt64("timestamp"); ts > 0 {
		sample.Timestamp = time.UnixMilli(ts)
	} else {
		sample.Timestamp = time.Now()
	}
	return sample, true
}

// allow applies the per-source token bucket
func (s *Server) allow(remote string) bool {
	s.limMu.Lock()
	limiter, exists := s.limiters[remote]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RatePerSecond), s.cfg.Burst)
		s.limiters[remote] = limiter
	}
	s.limMu.Unlock()
	return limiter.Allow()
}
