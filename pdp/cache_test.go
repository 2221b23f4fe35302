package pdp

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritaskey/arbiter/dao"
	logger "github.com/veritaskey/arbiter/logging"
	"github.com/veritaskey/arbiter/model"
)

func seedPolicy(t *testing.T, store dao.PolicyStore, policy model.Policy) *model.Policy {
	t.Helper()
	created, err := store.CreatePolicy(context.Background(), policy, "test")
	require.NoError(t, err)
	return created
}

func TestCacheRebuildExcludesInactivePolicies(t *testing.T) {
	logger.InitTestLogger()
	store := dao.NewMemoryPolicyStore()
	seedPolicy(t, store, model.Policy{PolicyID: "POL_ACTIVE", Scope: model.ScopeTenant, Effect: model.EffectAllow, IsActive: true})
	seedPolicy(t, store, model.Policy{PolicyID: "POL_INACTIVE", Scope: model.ScopeTenant, Effect: model.EffectAllow, IsActive: false})

	cache := NewCache(store, 0)
	require.NoError(t, cache.Rebuild(context.Background()))

	snap, err := cache.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ActiveCount())
	assert.Equal(t, "POL_ACTIVE", snap.ordered[0].PolicyID)
}

func TestSnapshotLazyPopulation(t *testing.T) {
	logger.InitTestLogger()
	store := dao.NewMemoryPolicyStore()
	seedPolicy(t, store, model.Policy{PolicyID: "POL_1", Scope: model.ScopeTenant, Effect: model.EffectAllow, IsActive: true})

	cache := NewCache(store, 0)

	// First read populates, second read reuses the same snapshot.
	first, err := cache.Snapshot(context.Background())
	require.NoError(t, err)
	second, err := cache.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestCandidatesHintsOnlyPrune(t *testing.T) {
	logger.InitTestLogger()
	store := dao.NewMemoryPolicyStore()
	seedPolicy(t, store, model.Policy{PolicyID: "POL_PLATFORM", Scope: model.ScopePlatform, Category: "tenancy", Effect: model.EffectDeny, Priority: 1000, IsActive: true})
	seedPolicy(t, store, model.Policy{
		PolicyID: "POL_BILLING", Scope: model.ScopeTenant, Category: "billing", Effect: model.EffectAllow, Priority: 100, IsActive: true,
		ActionPredicates: []model.Predicate{{Attribute: "category", Operator: model.OpEquals, Value: "billing"}},
	})
	seedPolicy(t, store, model.Policy{
		PolicyID: "POL_REPORTS", Scope: model.ScopeTenant, Category: "reports", Effect: model.EffectAllow, Priority: 50, IsActive: true,
		ActionPredicates: []model.Predicate{{Attribute: "category", Operator: model.OpEquals, Value: "reports"}},
	})
	// Category set as metadata only, no predicate: the matcher would accept
	// any category, so no hint may prune it.
	seedPolicy(t, store, model.Policy{PolicyID: "POL_LABELED", Scope: model.ScopeTenant, Category: "reports", Effect: model.EffectDeny, Priority: 20, IsActive: true})
	seedPolicy(t, store, model.Policy{PolicyID: "POL_UNCATEGORIZED", Scope: model.ScopeTenant, Effect: model.EffectAllow, Priority: 10, IsActive: true})

	cache := NewCache(store, 0)
	require.NoError(t, cache.Rebuild(context.Background()))
	snap, err := cache.Snapshot(context.Background())
	require.NoError(t, err)

	// No hints: every active policy is a candidate, in evaluation order.
	all := snap.Candidates("", "")
	require.Len(t, all, 5)
	assert.Equal(t, "POL_PLATFORM", all[0].PolicyID)

	// A category hint prunes exactly the policies whose own equality
	// predicate on that attribute is guaranteed to fail. Metadata labels and
	// wildcard groups never prune.
	billing := snap.Candidates(model.ScopeTenant, "billing")
	ids := make([]string, 0, len(billing))
	for _, p := range billing {
		ids = append(ids, p.PolicyID)
	}
	assert.Equal(t, []string{"POL_PLATFORM", "POL_BILLING", "POL_LABELED", "POL_UNCATEGORIZED"}, ids)
}

func TestCacheConcurrentReadersDuringRebuild(t *testing.T) {
	logger.InitTestLogger()
	store := dao.NewMemoryPolicyStore()
	seedPolicy(t, store, model.Policy{PolicyID: "POL_1", Scope: model.ScopeTenant, Effect: model.EffectAllow, IsActive: true})

	cache := NewCache(store, 0)
	require.NoError(t, cache.Rebuild(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				snap, err := cache.Snapshot(context.Background())
				assert.NoError(t, err)
				assert.NotNil(t, snap)
				assert.Equal(t, 1, snap.ActiveCount())
			}
		}()
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, cache.Rebuild(context.Background()))
	}
	wg.Wait()
}
