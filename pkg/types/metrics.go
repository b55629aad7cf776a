package types

import (
	"time"
)

// MetricsSample is a point-in-time measurement pushed by the application layer
type MetricsSample struct {
	CPU               float64   `json:"cpu"`
	Memory            float64   `json:"memory"`
	Connections       int       `json:"connections"`
	ResponseTime      float64   `json:"response_time_ms"`
	ErrorRate         float64   `json:"error_rate"`
	RequestsPerSecond float64   `json:"requests_per_second"`
	ActiveInstances   int       `json:"active_instances"`
	Timestamp         time.Time `json:"timestamp"`
}

// MetricsSummary holds windowed means of the sampled metrics
type MetricsSummary struct {
	CPU               float64 `json:"cpu"`
	Memory            float64 `json:"memory"`
	Connections       float64 `json:"connections"`
	ResponseTime      float64 `json:"response_time_ms"`
	ErrorRate         float64 `json:"error_rate"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	SampleCount       int     `json:"sample_count"`
}

// RouterStats is the aggregate view of the instance pool
type RouterStats struct {
	TotalInstances      int     `json:"total_instances"`
	HealthyInstances    int     `json:"healthy_instances"`
	TotalConnections    int     `json:"total_connections"`
	TotalRequests       int64   `json:"total_requests"`
	AverageResponseTime float64 `json:"average_response_time_ms"`
	ErrorRate           float64 `json:"error_rate"`
	CurrentLoad         float64 `json:"current_load"`
}
