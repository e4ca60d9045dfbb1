package models

// Health status values, ordered from best to worst.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ComponentHealth is the probe result for one collaborator.
type ComponentHealth struct {
	Status    string  `json:"status"`
	Connected bool    `json:"connected,omitempty"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Health aggregates component probes for the administrative surface.
// A cache outage degrades the system; a pipeline outage makes it unhealthy,
// since answers can no longer be produced.
type Health struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
}
