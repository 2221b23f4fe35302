// dao/memory_policy_store.go
package dao

import (
	"context"
	"sort"
	"sync"
	"time"

	arbiter_errors "github.com/veritaskey/arbiter/errors"
	"github.com/veritaskey/arbiter/model"
)

// MemoryPolicyStore is a mutex-guarded in-memory PolicyStore with the same
// semantics as the Neo4j store. It backs tests and embedded engines.
type MemoryPolicyStore struct {
	mu       sync.RWMutex
	policies map[string]*model.Policy
}

func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{
		policies: make(map[string]*model.Policy),
	}
}

func (s *MemoryPolicyStore) CreatePolicy(ctx context.Context, policy model.Policy, userID string) (*model.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.policies[policy.PolicyID]; exists {
		return nil, arbiter_errors.ErrDuplicatePolicy
	}

	now := time.Now()
	policy.Version = 1
	policy.EvaluationCount = 0
	policy.AllowCount = 0
	policy.DenyCount = 0
	policy.CreatedBy = userID
	policy.LastModifiedBy = userID
	policy.CreatedAt = now
	policy.UpdatedAt = now

	stored := policy
	s.policies[policy.PolicyID] = &stored

	result := stored
	return &result, nil
}

func (s *MemoryPolicyStore) UpdatePolicy(ctx context.Context, policyID string, patch model.PolicyPatch, expectedVersion int, userID string) (*model.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.policies[policyID]
	if !ok {
		return nil, arbiter_errors.ErrPolicyNotFound
	}
	if existing.Version != expectedVersion {
		return nil, arbiter_errors.ErrVersionConflict
	}

	updated := patch.Apply(*existing)
	updated.Version = existing.Version + 1
	updated.LastModifiedBy = userID
	updated.UpdatedAt = time.Now()

	s.policies[policyID] = &updated

	result := updated
	return &result, nil
}

func (s *MemoryPolicyStore) DeletePolicy(ctx context.Context, policyID string, userID string) error {
	if model.IsCorePolicy(policyID) {
		return arbiter_errors.ErrProtectedPolicy
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[policyID]; !ok {
		return arbiter_errors.ErrPolicyNotFound
	}
	delete(s.policies, policyID)
	return nil
}

func (s *MemoryPolicyStore) TogglePolicy(ctx context.Context, policyID string, userID string) (*model.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.policies[policyID]
	if !ok {
		return nil, arbiter_errors.ErrPolicyNotFound
	}

	toggled := *existing
	toggled.IsActive = !existing.IsActive
	toggled.Version = existing.Version + 1
	toggled.LastModifiedBy = userID
	toggled.UpdatedAt = time.Now()

	s.policies[policyID] = &toggled

	result := toggled
	return &result, nil
}

func (s *MemoryPolicyStore) GetPolicy(ctx context.Context, policyID string) (*model.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existing, ok := s.policies[policyID]
	if !ok {
		return nil, arbiter_errors.ErrPolicyNotFound
	}
	result := *existing
	return &result, nil
}

func (s *MemoryPolicyStore) ListPolicies(ctx context.Context, filter model.PolicyFilter, limit, offset int) ([]*model.Policy, error) {
	if limit < 0 || offset < 0 {
		return nil, arbiter_errors.ErrInvalidPagination
	}

	s.mu.RLock()
	matched := make([]*model.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		if matchesFilter(p, filter) {
			copied := *p
			matched = append(matched, &copied)
		}
	}
	s.mu.RUnlock()

	// Priority descending, PolicyID ascending for determinism.
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].PolicyID < matched[j].PolicyID
	})

	if offset >= len(matched) {
		return []*model.Policy{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryPolicyStore) IncrementCounters(ctx context.Context, policyID string, evaluations, allows, denies int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.policies[policyID]
	if !ok {
		return arbiter_errors.ErrPolicyNotFound
	}
	existing.EvaluationCount += evaluations
	existing.AllowCount += allows
	existing.DenyCount += denies
	return nil
}

func (s *MemoryPolicyStore) Ping(ctx context.Context) error {
	return nil
}

func matchesFilter(p *model.Policy, filter model.PolicyFilter) bool {
	if filter.Scope != "" && p.Scope != filter.Scope {
		return false
	}
	if filter.Category != "" && p.Category != filter.Category {
		return false
	}
	if filter.Effect != "" && p.Effect != filter.Effect {
		return false
	}
	if filter.IsActive != nil && p.IsActive != *filter.IsActive {
		return false
	}
	if filter.MinPriority != nil && p.Priority < *filter.MinPriority {
		return false
	}
	if filter.MaxPriority != nil && p.Priority > *filter.MaxPriority {
		return false
	}
	return true
}
