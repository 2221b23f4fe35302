package pdp

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritaskey/arbiter/dao"
	logger "github.com/veritaskey/arbiter/logging"
	"github.com/veritaskey/arbiter/metrics"
	"github.com/veritaskey/arbiter/model"
)

func TestStatsTrackerAppliesDeltasOnClose(t *testing.T) {
	logger.InitTestLogger()

	store := dao.NewMemoryPolicyStore()
	seedPolicy(t, store, model.Policy{PolicyID: "POL_STATS", Scope: model.ScopeTenant, Effect: model.EffectAllow, IsActive: true})

	tracker := NewStatsTracker(store, 16)
	tracker.RecordEvaluation("POL_STATS")
	tracker.RecordAllow("POL_STATS")
	tracker.Close()

	policy, err := store.GetPolicy(context.Background(), "POL_STATS")
	require.NoError(t, err)
	assert.Equal(t, int64(1), policy.EvaluationCount)
	assert.Equal(t, int64(1), policy.AllowCount)
	assert.Equal(t, int64(0), policy.DenyCount)
}

func TestStatsTrackerRecordAfterCloseIsDropped(t *testing.T) {
	logger.InitTestLogger()

	store := dao.NewMemoryPolicyStore()
	seedPolicy(t, store, model.Policy{PolicyID: "POL_LATE", Scope: model.ScopeTenant, Effect: model.EffectAllow, IsActive: true})

	tracker := NewStatsTracker(store, 4)
	tracker.Close()

	droppedBefore := testutil.ToFloat64(metrics.StatsDroppedTotal)

	// A late delta must be counted as dropped, not panic on the closed queue.
	tracker.RecordDeny("POL_LATE")

	assert.Equal(t, droppedBefore+1, testutil.ToFloat64(metrics.StatsDroppedTotal))

	policy, err := store.GetPolicy(context.Background(), "POL_LATE")
	require.NoError(t, err)
	assert.Equal(t, int64(0), policy.DenyCount)

	// Close is idempotent.
	tracker.Close()
}
