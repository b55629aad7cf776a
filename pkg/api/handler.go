// Package api exposes the admin HTTP surface: pool membership,
// routing state, scaling policies and events, and session management.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loadpilot/loadpilot/pkg/router"
	"github.com/loadpilot/loadpilot/pkg/scaling"
	"github.com/loadpilot/loadpilot/pkg/session"
	"github.com/loadpilot/loadpilot/pkg/telemetry"
	"github.com/loadpilot/loadpilot/pkg/types"
)

// Handler handles admin API requests
type Handler struct {
	router   *router.Router
	engine   *scaling.Engine
	sessions *session.Store
	tel      *telemetry.Metrics
}

// NewHandler creates a new API handler
func NewHandler(rt *router.Router, engine *scaling.Engine, sessions *session.Store, tel *telemetry.Metrics) *Handler {
	return &Handler{
		router:   rt,
		engine:   engine,
		sessions: sessions,
		tel:      tel,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Instance pool
	r.HandleFunc("/api/v1/instances", h.ListInstances).Methods("GET")
	r.HandleFunc("/api/v1/instances", h.AddInstance).Methods("POST")
	r.HandleFunc("/api/v1/instances/{id}", h.RemoveInstance).Methods("DELETE")

	// Routing
	r.HandleFunc("/api/v1/route", h.Route).Methods("GET")
	r.HandleFunc("/api/v1/stats", h.GetStats).Methods("GET")

	// Scaling
	r.HandleFunc("/api/v1/policies", h.ListPolicies).Methods("GET")
	r.HandleFunc("/api/v1/policies", h.AddPolicy).Methods("POST")
	r.HandleFunc("/api/v1/policies/{name}", h.RemovePolicy).Methods("DELETE")
	r.HandleFunc("/api/v1/scaling/events", h.GetEvents).Methods("GET")
	r.HandleFunc("/api/v1/scaling/status", h.GetScalingStatus).Methods("GET")
	r.HandleFunc("/api/v1/scaling/enabled", h.SetScalingEnabled).Methods("PUT")
	r.HandleFunc("/api/v1/scaling/evaluate", h.Evaluate).Methods("POST")
	r.HandleFunc("/api/v1/metrics/current", h.GetCurrentMetrics).Methods("GET")

	// Sessions
	r.HandleFunc("/api/v1/sessions", h.CreateSession).Methods("POST")
	r.HandleFunc("/api/v1/sessions/stats", h.GetSessionStats).Methods("GET")
	r.HandleFunc("/api/v1/sessions/export", h.ExportSessions).Methods("GET")
	r.HandleFunc("/api/v1/sessions/import", h.ImportSessions).Methods("POST")
	r.HandleFunc("/api/v1/sessions/{id}", h.GetSession).Methods("GET")
	r.HandleFunc("/api/v1/sessions/{id}", h.UpdateSession).Methods("PATCH")
	r.HandleFunc("/api/v1/sessions/{id}", h.DeleteSession).Methods("DELETE")
	r.HandleFunc("/api/v1/users/{userId}/sessions", h.DeleteUserSessions).Methods("DELETE")

	// Health check
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/ready", h.Ready).Methods("GET")

	// Metrics for Prometheus
	if h.tel != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.tel.Registry(), promhttp.HandlerOpts{})).Methods("GET")
	}
}

// ListInstances returns every registered instance
func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	instances := h.router.Instances()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(instances)
}

// AddInstance registers a backend instance with the pool
func (h *Handler) AddInstance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string `json:"id"`
		Host   string `json:"host"`
		Port   int    `json:"port"`
		Weight *int   `json:"weight"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" || req.Host == "" || req.Port <= 0 {
		http.Error(w, "id, host and port are required", http.StatusBadRequest)
		return
	}

	weight := 1
	if req.Weight != nil {
		weight = *req.Weight
	}
	inst := h.router.AddInstance(req.ID, req.Host, req.Port, weight)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(inst)
}

// RemoveInstance drops an instance and its affinity bindings
func (h *Handler) RemoveInstance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if !h.router.RemoveInstance(vars["id"]) {
		http.Error(w, "Instance not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"success": true,
		"id":      vars["id"],
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Route resolves the next instance for an optional session key
func (h *Handler) Route(w http.ResponseWriter, r *http.Request) {
	sessionKey := r.URL.Query().Get("session")

	inst, ok := h.router.NextInstance(sessionKey)
	if !ok {
		http.Error(w, "No healthy instances available", http.StatusServiceUnavailable)
		return
	}

	response := map[string]interface{}{
		"instance": inst,
		"address":  inst.Addr(),
		"strategy": h.router.Strategy(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetStats returns aggregate pool statistics
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := h.router.Stats()

	response := map[string]interface{}{
		"total_instances":       stats.TotalInstances,
		"healthy_instances":     stats.HealthyInstances,
		"total_connections":     stats.TotalConnections,
		"total_requests":        stats.TotalRequests,
		"average_response_time": stats.AverageResponseTime,
		"error_rate":            stats.ErrorRate,
		"current_load":          stats.CurrentLoad,
		"affinity_bindings":     h.router.AffinityBindings(),
		"strategy":              h.router.Strategy(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ListPolicies returns installed scaling policies in installation order
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies := h.engine.Policies()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(policies)
}

// AddPolicy installs or replaces a scaling policy
func (h *Handler) AddPolicy(w http.ResponseWriter, r *http.Request) {
	var policy types.ScalingPolicy

	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.engine.AddPolicy(policy); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response := map[string]interface{}{
		"success": true,
		"name":    policy.Name,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

// RemovePolicy uninstalls a scaling policy by name
func (h *Handler) RemovePolicy(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.engine.RemovePolicy(vars["name"]); err != nil {
		if errors.Is(err, types.ErrPolicyNotFound) {
			http.Error(w, "Policy not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"success": true,
		"name":    vars["name"],
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetEvents returns recent scaling events, newest first
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	events := h.engine.Events(limit)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

// GetScalingStatus returns the engine's current view
func (h *Handler) GetScalingStatus(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Status()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// SetScalingEnabled toggles automatic policy evaluation
func (h *Handler) SetScalingEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	h.engine.SetEnabled(req.Enabled)

	response := map[string]interface{}{
		"success": true,
		"enabled": req.Enabled,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Evaluate forces one pass over all policies
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	h.engine.EvaluateNow(r.Context())

	response := map[string]interface{}{
		"success":           true,
		"current_instances": h.engine.CurrentInstances(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetCurrentMetrics returns metric means over the trailing minute
func (h *Handler) GetCurrentMetrics(w http.ResponseWriter, r *http.Request) {
	summary := h.engine.CurrentMetrics()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// CreateSession creates a session for a user
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string                 `json:"user_id"`
		Data      map[string]interface{} `json:"data"`
		IPAddress string                 `json:"ip_address"`
		UserAgent string                 `json:"user_agent"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	record, err := h.sessions.Create(req.UserID, req.IPAddress, req.UserAgent)
	if err != nil {
		if errors.Is(err, types.ErrSessionCapacity) {
			http.Error(w, "Session capacity reached", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(req.Data) > 0 {
		if merged, ok := h.sessions.Update(record.ID, req.Data); ok {
			record = merged
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(record)
}

// GetSession fetches a session and slides its expiry
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	record, ok := h.sessions.Get(vars["id"])
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

// UpdateSession merges data into a session and slides its expiry
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var patch map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, ok := h.sessions.Update(vars["id"], patch)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

// DeleteSession removes a session
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if !h.sessions.Delete(vars["id"]) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"success": true,
		"id":      vars["id"],
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// DeleteUserSessions removes every session held by a user
func (h *Handler) DeleteUserSessions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	removed := h.sessions.DeleteUserSessions(vars["userId"])

	response := map[string]interface{}{
		"success":       true,
		"user_id":       vars["userId"],
		"removed_count": removed,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetSessionStats returns aggregate session metrics
func (h *Handler) GetSessionStats(w http.ResponseWriter, r *http.Request) {
	metrics := h.sessions.Metrics()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(metrics)
}

// ExportSessions dumps every live session
func (h *Handler) ExportSessions(w http.ResponseWriter, r *http.Request) {
	records := h.sessions.Export()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// ImportSessions loads previously exported sessions
func (h *Handler) ImportSessions(w http.ResponseWriter, r *http.Request) {
	var records []*types.SessionRecord

	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	imported := h.sessions.Import(records)

	response := map[string]interface{}{
		"success":        true,
		"imported_count": imported,
		"skipped_count":  len(records) - imported,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	stats := h.router.Stats()

	health := map[string]interface{}{
		"status":            "healthy",
		"service":           "loadpilot",
		"uptime":            time.Since(startTime).Seconds(),
		"healthy_instances": stats.HealthyInstances,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// Ready reports whether the router can serve traffic yet
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	stats := h.router.Stats()
	if stats.HealthyInstances == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "error": "no healthy instances"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

var startTime = time.Now()
