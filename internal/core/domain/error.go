package domain

import (
	"time"
)

// ErrorCategory groups raw failures into actionable buckets.
type ErrorCategory string

const (
	CategoryNetwork    ErrorCategory = "network"
	CategoryTransport  ErrorCategory = "transport" // WebSocket channel failures
	CategoryBackend    ErrorCategory = "backend"   // canister rejections, resource exhaustion
	CategoryAuth       ErrorCategory = "authentication"
	CategoryValidation ErrorCategory = "validation"
	CategorySystem     ErrorCategory = "system" // anything unmatched
)

// ErrorSeverity signals how loudly the failure should be surfaced.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// ErrorContext carries where and how a failure happened.
type ErrorContext struct {
	Component  string
	Operation  string
	Attempt    int
	CanisterID string            // forces CategoryBackend when set
	Fields     map[string]string // arbitrary extras for diagnostics
}

// ActionKind is the kind of recovery a consumer can offer.
type ActionKind string

const (
	ActionRetry     ActionKind = "retry"
	ActionReconnect ActionKind = "reconnect"
	ActionFallback  ActionKind = "fallback"
	ActionManual    ActionKind = "manual"
)

// RecoveryAction is a catalog entry consumers surface verbatim: either an
// invocable operation (Run) or a textual instruction for the user.
type RecoveryAction struct {
	Kind        ActionKind
	Label       string
	Run         func() error // nil for manual actions
	Instruction string
}

// ClassifiedError is a raw failure enriched with category, severity,
// retryability and recovery actions. Immutable once created; exactly one
// instance is produced per raw failure.
type ClassifiedError struct {
	ID              string
	Category        ErrorCategory
	Severity        ErrorSeverity
	Retryable       bool
	Context         ErrorContext
	RecoveryActions []RecoveryAction
	Timestamp       time.Time
	Err             error // original error for diagnostics
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return string(e.Category) + ": " + e.Err.Error()
	}
	return string(e.Category)
}

// Unwrap exposes the original error to errors.Is/As.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}
