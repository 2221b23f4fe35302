// pdp/engine.go
package pdp

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veritaskey/arbiter/audit"
	"github.com/veritaskey/arbiter/dao"
	arbiter_errors "github.com/veritaskey/arbiter/errors"
	logger "github.com/veritaskey/arbiter/logging"
	"github.com/veritaskey/arbiter/metrics"
	"github.com/veritaskey/arbiter/model"
)

// Options tunes one Engine instance.
type Options struct {
	CacheLoadTimeout time.Duration
	StatsQueueSize   int
	TopPolicies      int
}

// Engine is the policy decision point: a read-mostly Evaluate over an
// immutable cache snapshot, plus the administrative surface that mutates
// policies and rebuilds the snapshot. Each Engine owns its cache and
// workers, so isolated instances can coexist in one process.
type Engine struct {
	store dao.PolicyStore
	cache *Cache
	audit audit.Service
	stats *StatsTracker
	topN  int
}

func NewEngine(store dao.PolicyStore, auditService audit.Service, opts Options) *Engine {
	topN := opts.TopPolicies
	if topN <= 0 {
		topN = 10
	}
	return &Engine{
		store: store,
		cache: NewCache(store, opts.CacheLoadTimeout),
		audit: auditService,
		stats: NewStatsTracker(store, opts.StatsQueueSize),
		topN:  topN,
	}
}

// Evaluate renders ALLOW or DENY for the context. The decision is computed
// synchronously from the current snapshot; the decision log entry and the
// usage counters are dispatched to background workers and never block or
// fail the caller. A cold cache that cannot be populated resolves to DENY,
// never to an error a caller might mishandle as permissive.
func (e *Engine) Evaluate(ctx context.Context, ectx model.EvaluationContext) (*model.Decision, error) {
	if !ectx.Complete() {
		return nil, arbiter_errors.ErrInvalidContext
	}

	start := time.Now()

	snapshot, err := e.cache.Snapshot(ctx)
	if err != nil {
		logger.Error("Cache population failed, failing closed", zap.Error(err))
		decision := &model.Decision{
			Result:      model.EffectDeny,
			Reason:      model.ReasonNoApplicablePolicy,
			EvaluatedAt: time.Now(),
		}
		e.finish(ectx, decision, start)
		return decision, nil
	}

	candidates := snapshot.Candidates(scopeHint(ectx), categoryHint(ectx))

	evaluations := make([]model.PolicyEvaluation, 0, len(candidates))
	applicable := make([]*model.Policy, 0, len(candidates))
	for _, policy := range candidates {
		matched, reason := Matches(policy, ectx)
		evaluations = append(evaluations, model.PolicyEvaluation{
			PolicyID: policy.PolicyID,
			Effect:   policy.Effect,
			Priority: policy.Priority,
			Matched:  matched,
			Reason:   reason,
		})
		if matched {
			applicable = append(applicable, policy)
		}
	}

	result, controlling, reason := combine(applicable)

	decision := &model.Decision{
		Result:          result,
		Reason:          reason,
		AppliedPolicies: evaluations,
		EvaluatedAt:     time.Now(),
	}
	if controlling != nil {
		decision.ControllingPolicyID = controlling.PolicyID
	}

	e.finish(ectx, decision, start)
	return decision, nil
}

// finish dispatches the audit entry and counter increments for a decision.
func (e *Engine) finish(ectx model.EvaluationContext, decision *model.Decision, start time.Time) {
	metrics.EvaluationsTotal.WithLabelValues(string(decision.Result)).Inc()
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())

	for _, evaluation := range decision.AppliedPolicies {
		e.stats.RecordEvaluation(evaluation.PolicyID)
	}
	if decision.ControllingPolicyID != "" {
		if decision.Result == model.EffectAllow {
			e.stats.RecordAllow(decision.ControllingPolicyID)
		} else {
			e.stats.RecordDeny(decision.ControllingPolicyID)
		}
	}

	e.audit.Record(audit.DecisionLogEntry{
		ID:                  uuid.New().String(),
		Timestamp:           decision.EvaluatedAt,
		Subject:             ectx.Subject,
		Action:              ectx.Action,
		Resource:            ectx.Resource,
		Environment:         ectx.Environment,
		Result:              decision.Result,
		ControllingPolicyID: decision.ControllingPolicyID,
		Reason:              decision.Reason,
		Considered:          decision.AppliedPolicies,
	})
}

// RefreshCache forces an immediate snapshot rebuild.
func (e *Engine) RefreshCache(ctx context.Context) error {
	return e.cache.Rebuild(ctx)
}

// InitializeCorePolicy creates a core policy from its built-in template if
// it does not exist yet. Calling it again is a no-op returning the existing
// record.
func (e *Engine) InitializeCorePolicy(ctx context.Context, policyID, actorID string) (*model.Policy, error) {
	template, err := CorePolicyTemplate(policyID)
	if err != nil {
		return nil, err
	}

	existing, err := e.store.GetPolicy(ctx, policyID)
	if err == nil {
		logger.Info("Core policy already initialized",
			zap.String("policyID", policyID),
			zap.String("actorID", actorID))
		return existing, nil
	}
	if !errors.Is(err, arbiter_errors.ErrPolicyNotFound) {
		return nil, err
	}

	created, err := e.store.CreatePolicy(ctx, template, actorID)
	if errors.Is(err, arbiter_errors.ErrDuplicatePolicy) {
		// Lost a race with another initializer; the policy exists now.
		return e.store.GetPolicy(ctx, policyID)
	}
	if err != nil {
		return nil, err
	}

	if err := e.cache.Rebuild(ctx); err != nil {
		logger.Warn("Cache rebuild after core policy initialization failed", zap.Error(err))
	}

	logger.Info("Core policy initialized",
		zap.String("policyID", policyID),
		zap.String("actorID", actorID))
	return created, nil
}

// GetStatistics summarizes evaluation traffic for the trailing window.
func (e *Engine) GetStatistics(ctx context.Context, timeRangeHours int) (*model.EngineStatistics, error) {
	if timeRangeHours <= 0 {
		timeRangeHours = 24
	}
	from := time.Now().Add(-time.Duration(timeRangeHours) * time.Hour)
	window := audit.LogFilter{From: from}

	allowed, denied, err := e.audit.CountDecisions(ctx, window)
	if err != nil {
		return nil, err
	}

	denials, err := e.audit.QueryDecisions(ctx, audit.LogFilter{From: from, Result: model.EffectDeny}, e.topN, 0)
	if err != nil {
		return nil, err
	}
	recentDenials := make([]model.DeniedDecision, 0, len(denials))
	for _, entry := range denials {
		recentDenials = append(recentDenials, model.DeniedDecision{
			Timestamp:           entry.Timestamp,
			ControllingPolicyID: entry.ControllingPolicyID,
			Reason:              entry.Reason,
		})
	}

	topPolicies, activeCount, err := e.topPoliciesByVolume(ctx)
	if err != nil {
		return nil, err
	}

	return &model.EngineStatistics{
		TimeRangeHours:   timeRangeHours,
		TotalEvaluations: allowed + denied,
		TotalAllowed:     allowed,
		TotalDenied:      denied,
		ActivePolicies:   activeCount,
		TopPolicies:      topPolicies,
		RecentDenials:    recentDenials,
	}, nil
}

func (e *Engine) topPoliciesByVolume(ctx context.Context) ([]model.PolicyUsage, int, error) {
	var all []*model.Policy
	for offset := 0; ; offset += rebuildPageSize {
		page, err := e.store.ListPolicies(ctx, model.PolicyFilter{}, rebuildPageSize, offset)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, page...)
		if len(page) < rebuildPageSize {
			break
		}
	}

	activeCount := 0
	for _, p := range all {
		if p.IsActive {
			activeCount++
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].EvaluationCount != all[j].EvaluationCount {
			return all[i].EvaluationCount > all[j].EvaluationCount
		}
		return all[i].PolicyID < all[j].PolicyID
	})
	if len(all) > e.topN {
		all = all[:e.topN]
	}

	usage := make([]model.PolicyUsage, 0, len(all))
	for _, p := range all {
		u := model.PolicyUsage{
			PolicyID:        p.PolicyID,
			Name:            p.Name,
			Effect:          p.Effect,
			EvaluationCount: p.EvaluationCount,
			AllowCount:      p.AllowCount,
			DenyCount:       p.DenyCount,
		}
		if decided := p.AllowCount + p.DenyCount; decided > 0 {
			u.AllowRate = float64(p.AllowCount) / float64(decided)
		}
		usage = append(usage, u)
	}
	return usage, activeCount, nil
}

// Close drains the background workers. Pending audit entries and counter
// deltas are flushed before it returns.
func (e *Engine) Close() {
	e.stats.Close()
	e.audit.Close()
}

func scopeHint(ectx model.EvaluationContext) model.Scope {
	if hint, ok := ectx.Resource["scope"].(string); ok {
		return model.Scope(hint)
	}
	return ""
}

func categoryHint(ectx model.EvaluationContext) string {
	if hint, ok := ectx.Action["category"].(string); ok {
		return hint
	}
	return ""
}
