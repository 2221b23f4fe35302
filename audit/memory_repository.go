// audit/memory_repository.go
package audit

import (
	"context"
	"sync"

	"github.com/veritaskey/arbiter/model"
)

// MemoryRepository keeps decision logs in memory. It backs tests and
// embedded engines that have no Elasticsearch.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []DecisionLogEntry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) IndexDecision(ctx context.Context, entry DecisionLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *MemoryRepository) QueryDecisions(ctx context.Context, filter LogFilter, limit, offset int) ([]DecisionLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]DecisionLogEntry, 0, len(r.entries))
	// Newest first.
	for i := len(r.entries) - 1; i >= 0; i-- {
		if entryMatches(r.entries[i], filter) {
			matched = append(matched, r.entries[i])
		}
	}

	if offset >= len(matched) {
		return []DecisionLogEntry{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *MemoryRepository) CountDecisions(ctx context.Context, filter LogFilter) (int64, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	scoped := filter
	scoped.Result = ""

	var allowed, denied int64
	for _, entry := range r.entries {
		if !entryMatches(entry, scoped) {
			continue
		}
		if entry.Result == model.EffectAllow {
			allowed++
		} else {
			denied++
		}
	}
	return allowed, denied, nil
}

// Len reports the number of stored entries.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func entryMatches(entry DecisionLogEntry, filter LogFilter) bool {
	if !filter.From.IsZero() && entry.Timestamp.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && entry.Timestamp.After(filter.To) {
		return false
	}
	if filter.Result != "" && entry.Result != filter.Result {
		return false
	}
	if filter.PolicyID != "" && entry.ControllingPolicyID != filter.PolicyID {
		return false
	}
	return true
}
