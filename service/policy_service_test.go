package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritaskey/arbiter/dao"
	"github.com/veritaskey/arbiter/db"
	arbiter_errors "github.com/veritaskey/arbiter/errors"
	logger "github.com/veritaskey/arbiter/logging"
	"github.com/veritaskey/arbiter/model"
	"github.com/veritaskey/arbiter/util"
)

func newTestService(t *testing.T) (*PolicyService, *dao.MemoryPolicyStore) {
	t.Helper()
	logger.InitTestLogger()

	mr := miniredis.RunT(t)
	db.RedisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		db.RedisClient.Close()
		db.RedisClient = nil
	})

	store := dao.NewMemoryPolicyStore()
	svc := NewPolicyService(
		store,
		util.NewValidationUtil(),
		util.NewCacheService(),
		util.NewNotificationService(),
		util.NewEventBus(),
	)
	return svc, store
}

func testPolicy(policyID string) model.Policy {
	return model.Policy{
		PolicyID: policyID,
		Name:     "Test policy",
		Scope:    model.ScopeTenant,
		Effect:   model.EffectAllow,
		Priority: 100,
		IsActive: true,
	}
}

func TestCreatePolicyRejectsInvalidData(t *testing.T) {
	svc, _ := newTestService(t)

	invalid := testPolicy("POL_BAD")
	invalid.Effect = "PERMIT"

	_, err := svc.CreatePolicy(context.Background(), invalid, "admin")
	assert.ErrorIs(t, err, arbiter_errors.ErrInvalidPolicyData)
}

func TestCreatePolicyDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePolicy(ctx, testPolicy("POL_DUP"), "admin")
	require.NoError(t, err)

	_, err = svc.CreatePolicy(ctx, testPolicy("POL_DUP"), "admin")
	assert.ErrorIs(t, err, arbiter_errors.ErrDuplicatePolicy)
}

func TestUpdatePolicyVersionConflictPassesThrough(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreatePolicy(ctx, testPolicy("POL_OCC"), "admin")
	require.NoError(t, err)

	name := "Renamed"
	_, err = svc.UpdatePolicy(ctx, "POL_OCC", model.PolicyPatch{Name: &name}, created.Version+5, "admin")
	assert.ErrorIs(t, err, arbiter_errors.ErrVersionConflict)

	updated, err := svc.UpdatePolicy(ctx, "POL_OCC", model.PolicyPatch{Name: &name}, created.Version, "admin")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, created.Version+1, updated.Version)
}

func TestDeletePolicyProtected(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := store.CreatePolicy(ctx, testPolicy(model.CoreTenantIsolation), "system")
	require.NoError(t, err)

	err = svc.DeletePolicy(ctx, model.CoreTenantIsolation, "admin")
	assert.ErrorIs(t, err, arbiter_errors.ErrProtectedPolicy)
}

func TestGetPolicyServedFromMirrorAfterCreate(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreatePolicy(ctx, testPolicy("POL_MIRROR"), "admin")
	require.NoError(t, err)

	// Remove from the store; the Redis mirror still serves the read.
	store.DeletePolicy(ctx, "POL_MIRROR", "admin")

	got, err := svc.GetPolicy(ctx, "POL_MIRROR")
	require.NoError(t, err)
	assert.Equal(t, created.PolicyID, got.PolicyID)
	assert.Equal(t, created.Version, got.Version)
}

func TestTogglePolicy(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreatePolicy(ctx, testPolicy("POL_FLIP"), "admin")
	require.NoError(t, err)
	require.True(t, created.IsActive)

	toggled, err := svc.TogglePolicy(ctx, "POL_FLIP", "admin")
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)
	assert.Equal(t, created.Version+1, toggled.Version)
}

func TestBulkCreatePolicies(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	policies := make([]model.Policy, 5)
	for i := range policies {
		policies[i] = testPolicy(fmt.Sprintf("POL_BULK_%d", i))
	}

	ids, err := svc.BulkCreatePolicies(ctx, policies, "admin")
	require.NoError(t, err)
	require.Len(t, ids, 5)
	for i, id := range ids {
		assert.Equal(t, fmt.Sprintf("POL_BULK_%d", i), id)
	}

	stored, err := store.ListPolicies(ctx, model.PolicyFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, stored, 5)
}
