// pdp/cache.go
package pdp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/veritaskey/arbiter/dao"
	logger "github.com/veritaskey/arbiter/logging"
	"github.com/veritaskey/arbiter/metrics"
	"github.com/veritaskey/arbiter/model"
)

const rebuildPageSize = 500

type bucketKey struct {
	scope    model.Scope
	category string
}

// Snapshot is an immutable view of all active policies. Readers share it
// without locking; mutations build a fresh one and swap the pointer.
type Snapshot struct {
	ordered []*model.Policy
	buckets map[bucketKey][]*model.Policy
	builtAt time.Time
}

// ActiveCount returns the number of active policies in the snapshot.
func (s *Snapshot) ActiveCount() int {
	return len(s.ordered)
}

// Candidates returns the policies worth matching for the given scope and
// category hints, in evaluation order. Pruning is conservative: a policy is
// skipped only when it carries a literal equality predicate on the hinted
// attribute that the matcher is guaranteed to fail. The hints come from the
// evaluation context, so they must never be able to change a decision; a
// wrong hint only wastes the pruning, it cannot hide an applicable policy.
func (s *Snapshot) Candidates(scope model.Scope, category string) []*model.Policy {
	if scope == "" && category == "" {
		return s.ordered
	}

	selected := make([]*model.Policy, 0, len(s.ordered))
	for _, policy := range s.ordered {
		if scope != "" && literalEqualityFails(policy.ResourcePredicates, "scope", string(scope)) {
			continue
		}
		if category != "" && literalEqualityFails(policy.ActionPredicates, "category", category) {
			continue
		}
		selected = append(selected, policy)
	}
	return selected
}

// literalEqualityFails reports whether one of the predicates is an equals
// check on attribute against a literal value that cannot equal the context
// value. Cross-attribute references and non-string values resolve at match
// time and are never pruned on.
func literalEqualityFails(predicates []model.Predicate, attribute, value string) bool {
	for _, predicate := range predicates {
		if predicate.Attribute != attribute || predicate.Operator != model.OpEquals {
			continue
		}
		literal, ok := predicate.Value.(string)
		if !ok || isContextReference(literal) {
			continue
		}
		if !valuesEqual(value, literal) {
			return true
		}
	}
	return false
}

// Bucket returns the active policies stored under one (scope, category) pair.
func (s *Snapshot) Bucket(scope model.Scope, category string) []*model.Policy {
	return s.buckets[bucketKey{scope: scope, category: category}]
}

// Cache holds the current snapshot behind an atomic pointer. One Cache
// belongs to one Engine; there is no process-global state, so isolated
// engines can coexist in the same process.
type Cache struct {
	store       dao.PolicyStore
	loadTimeout time.Duration

	snapshot atomic.Pointer[Snapshot]
	loadMu   sync.Mutex
}

func NewCache(store dao.PolicyStore, loadTimeout time.Duration) *Cache {
	if loadTimeout <= 0 {
		loadTimeout = 5 * time.Second
	}
	return &Cache{
		store:       store,
		loadTimeout: loadTimeout,
	}
}

// Snapshot returns the current snapshot, populating the cache on first use.
func (c *Cache) Snapshot(ctx context.Context) (*Snapshot, error) {
	if snap := c.snapshot.Load(); snap != nil {
		return snap, nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	// Another caller may have populated the cache while we waited.
	if snap := c.snapshot.Load(); snap != nil {
		return snap, nil
	}
	return c.rebuildLocked(ctx)
}

// Rebuild loads all active policies from the store and atomically swaps the
// snapshot. In-flight readers keep the old snapshot; nobody ever observes a
// partially built policy set.
func (c *Cache) Rebuild(ctx context.Context) error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	_, err := c.rebuildLocked(ctx)
	return err
}

func (c *Cache) rebuildLocked(ctx context.Context) (*Snapshot, error) {
	loadCtx, cancel := context.WithTimeout(ctx, c.loadTimeout)
	defer cancel()

	start := time.Now()
	active := true
	filter := model.PolicyFilter{IsActive: &active}

	var policies []*model.Policy
	for offset := 0; ; offset += rebuildPageSize {
		page, err := c.store.ListPolicies(loadCtx, filter, rebuildPageSize, offset)
		if err != nil {
			logger.Error("Policy cache rebuild failed",
				zap.Error(err),
				zap.Duration("duration", time.Since(start)))
			return nil, err
		}
		policies = append(policies, page...)
		if len(page) < rebuildPageSize {
			break
		}
	}

	snap := buildSnapshot(policies)
	c.snapshot.Store(snap)
	metrics.CacheRebuildsTotal.Inc()

	logger.Info("Policy cache rebuilt",
		zap.Int("activePolicies", snap.ActiveCount()),
		zap.Duration("duration", time.Since(start)))
	return snap, nil
}

func buildSnapshot(policies []*model.Policy) *Snapshot {
	ordered := make([]*model.Policy, len(policies))
	copy(ordered, policies)
	sortPolicies(ordered)

	buckets := make(map[bucketKey][]*model.Policy)
	for _, policy := range ordered {
		key := bucketKey{scope: policy.Scope, category: policy.Category}
		buckets[key] = append(buckets[key], policy)
	}

	return &Snapshot{
		ordered: ordered,
		buckets: buckets,
		builtAt: time.Now(),
	}
}
