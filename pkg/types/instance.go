package types

import (
	"fmt"
	"time"
)

// Instance represents a routable backend instance in the pool
type Instance struct {
	ID              string    `json:"id"`
	Host            string    `json:"host"`
	Port            int       `json:"port"`
	Weight          int       `json:"weight"`
	Healthy         bool      `json:"healthy"`
	Connections     int       `json:"connections"`
	LastHealthCheck time.Time `json:"last_health_check,omitempty"`
	ResponseTime    float64   `json:"response_time_ms"`
	ErrorCount      int64     `json:"error_count"`
	TotalRequests   int64     `json:"total_requests"`
}

// NewInstance creates an instance with healthy state and zeroed counters
func NewInstance(id, host string, port, weight int) *Instance {
	return &Instance{
		ID:      id,
		Host:    host,
		Port:    port,
		Weight:  weight,
		Healthy: true,
	}
}

// Addr returns the host:port address of the instance
func (i *Instance) Addr() string {
	return fmt.Sprintf("%s:%d", i.Host, i.Port)
}

// Clone returns a copy of the instance
func (i *Instance) Clone() *Instance {
	c := *i
	return &c
}
