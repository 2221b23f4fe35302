package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logger "github.com/veritaskey/arbiter/logging"
	"github.com/veritaskey/arbiter/metrics"
	"github.com/veritaskey/arbiter/model"
)

func TestServiceRecordsAsynchronously(t *testing.T) {
	logger.InitTestLogger()

	repo := NewMemoryRepository()
	svc := NewService(repo, 16)

	for i := 0; i < 5; i++ {
		svc.Record(DecisionLogEntry{
			ID:        fmt.Sprintf("entry-%d", i),
			Timestamp: time.Now(),
			Result:    model.EffectAllow,
		})
	}

	// Close drains the queue; afterwards every entry is persisted.
	svc.Close()
	assert.Equal(t, 5, repo.Len())
}

func TestServiceQueryAndCount(t *testing.T) {
	logger.InitTestLogger()

	repo := NewMemoryRepository()
	svc := NewService(repo, 16)
	defer svc.Close()

	now := time.Now()
	svc.Record(DecisionLogEntry{ID: "a", Timestamp: now, Result: model.EffectAllow, ControllingPolicyID: "POL_1"})
	svc.Record(DecisionLogEntry{ID: "b", Timestamp: now, Result: model.EffectDeny, ControllingPolicyID: "POL_2"})

	require.Eventually(t, func() bool { return repo.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	denied, err := svc.QueryDecisions(context.Background(), LogFilter{Result: model.EffectDeny}, 10, 0)
	require.NoError(t, err)
	require.Len(t, denied, 1)
	assert.Equal(t, "b", denied[0].ID)

	allowed, deniedCount, err := svc.CountDecisions(context.Background(), LogFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), allowed)
	assert.Equal(t, int64(1), deniedCount)
}

func TestServiceDropsWhenQueueFull(t *testing.T) {
	logger.InitTestLogger()

	gate := make(chan struct{})
	repo := &gatedRepository{gate: gate, inner: NewMemoryRepository()}
	svc := NewService(repo, 1)

	droppedBefore := testutil.ToFloat64(metrics.AuditDroppedTotal)

	// First entry occupies the worker, second fills the queue, the rest are
	// dropped without blocking the caller.
	for i := 0; i < 6; i++ {
		svc.Record(DecisionLogEntry{ID: fmt.Sprintf("entry-%d", i), Result: model.EffectDeny})
	}

	close(gate)
	svc.Close()

	dropped := testutil.ToFloat64(metrics.AuditDroppedTotal) - droppedBefore
	assert.GreaterOrEqual(t, dropped, float64(3))
	assert.LessOrEqual(t, repo.inner.Len(), 3)
}

func TestServiceRecordAfterCloseIsDropped(t *testing.T) {
	logger.InitTestLogger()

	repo := NewMemoryRepository()
	svc := NewService(repo, 4)
	svc.Close()

	droppedBefore := testutil.ToFloat64(metrics.AuditDroppedTotal)

	// A late entry must be counted as dropped, not panic on the closed queue.
	svc.Record(DecisionLogEntry{ID: "late", Result: model.EffectDeny})

	assert.Equal(t, droppedBefore+1, testutil.ToFloat64(metrics.AuditDroppedTotal))
	assert.Equal(t, 0, repo.Len())

	// Close is idempotent.
	svc.Close()
}

// gatedRepository blocks writes until the gate closes.
type gatedRepository struct {
	gate  chan struct{}
	inner *MemoryRepository
}

func (r *gatedRepository) IndexDecision(ctx context.Context, entry DecisionLogEntry) error {
	<-r.gate
	return r.inner.IndexDecision(ctx, entry)
}

func (r *gatedRepository) QueryDecisions(ctx context.Context, filter LogFilter, limit, offset int) ([]DecisionLogEntry, error) {
	return r.inner.QueryDecisions(ctx, filter, limit, offset)
}

func (r *gatedRepository) CountDecisions(ctx context.Context, filter LogFilter) (int64, int64, error) {
	return r.inner.CountDecisions(ctx, filter)
}
