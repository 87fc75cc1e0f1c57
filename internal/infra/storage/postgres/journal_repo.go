package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/livefeed/internal/infra/storage"
)

// ErrorJournal implements storage.ErrorJournal using PostgreSQL.
type ErrorJournal struct {
	db *DB
}

// NewErrorJournal creates a PostgreSQL-backed error journal.
func NewErrorJournal(db *DB) *ErrorJournal {
	return &ErrorJournal{db: db}
}

// Append persists one classified error.
func (j *ErrorJournal) Append(ctx context.Context, rec *storage.ErrorRecord) error {
	query := `
		INSERT INTO error_journal (id, category, severity, component, operation, retryable, message, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := j.db.ExecContext(
		ctx,
		query,
		rec.ID,
		rec.Category,
		rec.Severity,
		rec.Component,
		rec.Operation,
		rec.Retryable,
		rec.Message,
		rec.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append error record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (j *ErrorJournal) Recent(ctx context.Context, limit int) ([]*storage.ErrorRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, category, severity, component, operation, retryable, message, occurred_at
		FROM error_journal
		ORDER BY occurred_at DESC
		LIMIT $1
	`

	var rows []struct {
		ID         string    `db:"id"`
		Category   string    `db:"category"`
		Severity   string    `db:"severity"`
		Component  string    `db:"component"`
		Operation  string    `db:"operation"`
		Retryable  bool      `db:"retryable"`
		Message    string    `db:"message"`
		OccurredAt time.Time `db:"occurred_at"`
	}

	if err := j.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query error journal: %w", err)
	}

	out := make([]*storage.ErrorRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, &storage.ErrorRecord{
			ID:         r.ID,
			Category:   r.Category,
			Severity:   r.Severity,
			Component:  r.Component,
			Operation:  r.Operation,
			Retryable:  r.Retryable,
			Message:    r.Message,
			OccurredAt: r.OccurredAt,
		})
	}
	return out, nil
}

// CountByCategory returns total error counts per category.
func (j *ErrorJournal) CountByCategory(ctx context.Context) (map[string]int, error) {
	query := `SELECT category, COUNT(*) AS n FROM error_journal GROUP BY category`

	var rows []struct {
		Category string `db:"category"`
		N        int    `db:"n"`
	}

	if err := j.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count error journal: %w", err)
	}

	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Category] = r.N
	}
	return out, nil
}
