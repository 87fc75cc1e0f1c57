package domain

import "time"

// BreakerState is the circuit breaker state for one component.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerEvent is emitted on every breaker state transition.
type BreakerEvent struct {
	Component    string
	State        BreakerState
	FailureCount int
}

// BreakerSnapshot is a read-only view of one component's breaker record,
// used by health reporting and the status CLI.
type BreakerSnapshot struct {
	Component    string
	State        BreakerState
	FailureCount int
	LastFailure  time.Time
	OpenedAt     time.Time
}
