package storage

import (
	"context"
	"time"
)

// ErrorRecord is a persisted classified error, kept for observability:
// error statistics that survive restarts and the status CLI.
type ErrorRecord struct {
	ID         string    `json:"id"`
	Category   string    `json:"category"`
	Severity   string    `json:"severity"`
	Component  string    `json:"component"`
	Operation  string    `json:"operation"`
	Retryable  bool      `json:"retryable"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ErrorJournal stores classified errors.
type ErrorJournal interface {
	// Append persists one record
	Append(ctx context.Context, rec *ErrorRecord) error

	// Recent returns up to limit records, newest first
	Recent(ctx context.Context, limit int) ([]*ErrorRecord, error)

	// CountByCategory returns total error counts per category
	CountByCategory(ctx context.Context) (map[string]int, error)
}
