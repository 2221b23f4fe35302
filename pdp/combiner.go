// pdp/combiner.go
package pdp

import (
	"fmt"
	"sort"

	"github.com/veritaskey/arbiter/model"
)

// sortPolicies orders policies by priority descending, PolicyID ascending.
// The tie-break keeps the decision deterministic across repeated runs.
func sortPolicies(policies []*model.Policy) {
	sort.Slice(policies, func(i, j int) bool {
		if policies[i].Priority != policies[j].Priority {
			return policies[i].Priority > policies[j].Priority
		}
		return policies[i].PolicyID < policies[j].PolicyID
	})
}

// combine applies deny-overrides to the applicable policies, which must
// already be in evaluation order. Any applicable DENY wins over every ALLOW;
// otherwise the highest-priority ALLOW controls; with nothing applicable the
// engine fails closed.
func combine(applicable []*model.Policy) (model.Effect, *model.Policy, string) {
	for _, policy := range applicable {
		if policy.Effect == model.EffectDeny {
			return model.EffectDeny, policy, fmt.Sprintf("denied by policy %s", policy.PolicyID)
		}
	}

	if len(applicable) > 0 {
		controlling := applicable[0]
		return model.EffectAllow, controlling, fmt.Sprintf("allowed by policy %s", controlling.PolicyID)
	}

	// Fail closed: absence of a rule never implies permission.
	return model.EffectDeny, nil, model.ReasonNoApplicablePolicy
}
