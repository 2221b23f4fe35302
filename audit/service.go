// audit/service.go
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	logger "github.com/veritaskey/arbiter/logging"
	"github.com/veritaskey/arbiter/metrics"
)

const writeTimeout = 5 * time.Second

// Service accepts decision log entries from the synchronous decision path
// and persists them from a background worker. Record never blocks: a full
// queue drops the entry and raises a telemetry counter instead of delaying
// or failing the caller.
type Service interface {
	Record(entry DecisionLogEntry)
	QueryDecisions(ctx context.Context, filter LogFilter, limit, offset int) ([]DecisionLogEntry, error)
	CountDecisions(ctx context.Context, filter LogFilter) (allowed int64, denied int64, err error)
	Close()
}

type service struct {
	repo  Repository
	queue chan DecisionLogEntry

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewService starts the background writer with a bounded queue.
func NewService(repo Repository, queueSize int) Service {
	if queueSize <= 0 {
		queueSize = 1024
	}
	s := &service{
		repo:  repo,
		queue: make(chan DecisionLogEntry, queueSize),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *service) Record(entry DecisionLogEntry) {
	// The read lock orders the closed check before Close's channel close, so
	// a Record racing shutdown drops the entry instead of panicking.
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		metrics.AuditDroppedTotal.Inc()
		return
	}

	select {
	case s.queue <- entry:
		metrics.AuditQueueDepth.Set(float64(len(s.queue)))
	default:
		metrics.AuditDroppedTotal.Inc()
		logger.Warn("Audit queue full, dropping decision log entry",
			zap.String("entryID", entry.ID),
			zap.String("result", string(entry.Result)))
	}
}

func (s *service) run() {
	defer s.wg.Done()

	for entry := range s.queue {
		metrics.AuditQueueDepth.Set(float64(len(s.queue)))

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := s.repo.IndexDecision(ctx, entry)
		cancel()

		if err != nil {
			// Failures surface to telemetry, never to the evaluation caller.
			metrics.AuditWriteFailuresTotal.Inc()
			logger.Error("Failed to persist decision log entry",
				zap.Error(err),
				zap.String("entryID", entry.ID))
		}
	}
}

func (s *service) QueryDecisions(ctx context.Context, filter LogFilter, limit, offset int) ([]DecisionLogEntry, error) {
	return s.repo.QueryDecisions(ctx, filter, limit, offset)
}

func (s *service) CountDecisions(ctx context.Context, filter LogFilter) (int64, int64, error) {
	return s.repo.CountDecisions(ctx, filter)
}

// Close drains the queue and stops the worker. Safe to call more than once
// and safe to race with Record.
func (s *service) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
