// dao/policy_store.go
package dao

import (
	"context"

	"github.com/veritaskey/arbiter/model"
)

// PolicyStore is the durable, versioned source of truth for policies.
//
// Update takes the version the caller read; a mismatch with the stored
// version fails with ErrVersionConflict so concurrent updates never clobber
// each other silently. Delete fails with ErrProtectedPolicy for core IDs.
type PolicyStore interface {
	CreatePolicy(ctx context.Context, policy model.Policy, userID string) (*model.Policy, error)
	UpdatePolicy(ctx context.Context, policyID string, patch model.PolicyPatch, expectedVersion int, userID string) (*model.Policy, error)
	DeletePolicy(ctx context.Context, policyID string, userID string) error
	TogglePolicy(ctx context.Context, policyID string, userID string) (*model.Policy, error)
	GetPolicy(ctx context.Context, policyID string) (*model.Policy, error)
	ListPolicies(ctx context.Context, filter model.PolicyFilter, limit, offset int) ([]*model.Policy, error)

	// IncrementCounters applies asynchronous usage-counter deltas. Counters
	// are best-effort and never decrease.
	IncrementCounters(ctx context.Context, policyID string, evaluations, allows, denies int64) error

	Ping(ctx context.Context) error
}
