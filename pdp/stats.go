// pdp/stats.go
package pdp

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veritaskey/arbiter/dao"
	logger "github.com/veritaskey/arbiter/logging"
	"github.com/veritaskey/arbiter/metrics"
)

const statsWriteTimeout = 5 * time.Second

type counterDelta struct {
	policyID    string
	evaluations int64
	allows      int64
	denies      int64
}

// StatsTracker applies per-policy usage counters asynchronously. Counters
// are eventually consistent and best effort; the decision path never waits
// on them, and a full queue drops the delta with a telemetry signal.
type StatsTracker struct {
	store dao.PolicyStore
	queue chan counterDelta

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewStatsTracker(store dao.PolicyStore, queueSize int) *StatsTracker {
	if queueSize <= 0 {
		queueSize = 4096
	}
	t := &StatsTracker{
		store: store,
		queue: make(chan counterDelta, queueSize),
	}
	t.wg.Add(1)
	go t.run()
	return t
}

// RecordEvaluation counts one consideration of a policy by the matcher.
func (t *StatsTracker) RecordEvaluation(policyID string) {
	t.enqueue(counterDelta{policyID: policyID, evaluations: 1})
}

// RecordAllow counts a policy becoming the controlling reason of an ALLOW.
func (t *StatsTracker) RecordAllow(policyID string) {
	t.enqueue(counterDelta{policyID: policyID, allows: 1})
}

// RecordDeny counts a policy becoming the controlling reason of a DENY.
func (t *StatsTracker) RecordDeny(policyID string) {
	t.enqueue(counterDelta{policyID: policyID, denies: 1})
}

func (t *StatsTracker) enqueue(delta counterDelta) {
	// The read lock orders the closed check before Close's channel close, so
	// a delta racing shutdown is dropped instead of panicking.
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		metrics.StatsDroppedTotal.Inc()
		return
	}

	select {
	case t.queue <- delta:
	default:
		metrics.StatsDroppedTotal.Inc()
	}
}

func (t *StatsTracker) run() {
	defer t.wg.Done()

	for delta := range t.queue {
		ctx, cancel := context.WithTimeout(context.Background(), statsWriteTimeout)
		err := t.store.IncrementCounters(ctx, delta.policyID, delta.evaluations, delta.allows, delta.denies)
		cancel()

		if err != nil {
			logger.Warn("Failed to apply policy usage counters",
				zap.Error(err),
				zap.String("policyID", delta.policyID))
		}
	}
}

// Close drains pending deltas and stops the worker. Safe to call more than
// once and safe to race with the Record methods.
func (t *StatsTracker) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()
	t.wg.Wait()
}
