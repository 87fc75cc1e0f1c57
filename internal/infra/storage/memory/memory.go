package memory

import (
	"context"
	"sync"

	"github.com/vietddude/livefeed/internal/infra/storage"
)

const maxRecords = 1000

// ErrorJournal is an in-memory journal used when no database is
// configured. Keeps the newest maxRecords entries.
type ErrorJournal struct {
	mu      sync.RWMutex
	records []*storage.ErrorRecord
	counts  map[string]int
}

// NewErrorJournal creates an empty in-memory journal.
func NewErrorJournal() *ErrorJournal {
	return &ErrorJournal{
		counts: make(map[string]int),
	}
}

func (j *ErrorJournal) Append(ctx context.Context, rec *storage.ErrorRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.records = append(j.records, rec)
	if len(j.records) > maxRecords {
		j.records = j.records[len(j.records)-maxRecords:]
	}
	j.counts[rec.Category]++
	return nil
}

func (j *ErrorJournal) Recent(ctx context.Context, limit int) ([]*storage.ErrorRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if limit <= 0 || limit > len(j.records) {
		limit = len(j.records)
	}

	out := make([]*storage.ErrorRecord, 0, limit)
	for i := len(j.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.records[i])
	}
	return out, nil
}

func (j *ErrorJournal) CountByCategory(ctx context.Context) (map[string]int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make(map[string]int, len(j.counts))
	for k, v := range j.counts {
		out[k] = v
	}
	return out, nil
}
