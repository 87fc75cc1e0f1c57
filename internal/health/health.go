// Package health provides engine health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the engine or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// BreakerHealth contains the state of a single circuit breaker.
type BreakerHealth struct {
	Component    string `json:"component"`
	State        string `json:"state"`
	FailureCount int    `json:"failure_count"`
}

// HealthReport contains the full engine health report.
type HealthReport struct {
	Status           SystemStatus     `json:"status"`
	Mode             string           `json:"mode"`
	TotalErrors      int64            `json:"total_errors"`
	ErrorsByCategory map[string]int64 `json:"errors_by_category"`
	Breakers         []BreakerHealth  `json:"breakers"`
}
