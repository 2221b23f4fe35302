// model/decision.go
package model

import "time"

// EvaluationContext is the four-part input to one evaluation. All four maps
// are required; an evaluation with any of them missing is rejected with
// ErrInvalidContext before any policy is consulted.
type EvaluationContext struct {
	Subject     map[string]interface{} `json:"subject"`
	Action      map[string]interface{} `json:"action"`
	Resource    map[string]interface{} `json:"resource"`
	Environment map[string]interface{} `json:"environment"`
}

// Complete reports whether all four attribute groups are present.
func (c EvaluationContext) Complete() bool {
	return c.Subject != nil && c.Action != nil && c.Resource != nil && c.Environment != nil
}

// PolicyEvaluation records how a single policy fared during one evaluation.
type PolicyEvaluation struct {
	PolicyID string `json:"policy_id"`
	Effect   Effect `json:"effect"`
	Priority int    `json:"priority"`
	Matched  bool   `json:"matched"`
	Reason   string `json:"reason,omitempty"`
}

// Decision is the synchronous result of Engine.Evaluate.
type Decision struct {
	Result              Effect             `json:"result"`
	ControllingPolicyID string             `json:"controlling_policy_id,omitempty"`
	Reason              string             `json:"reason"`
	AppliedPolicies     []PolicyEvaluation `json:"applied_policies"`
	EvaluatedAt         time.Time          `json:"evaluated_at"`
}

// ReasonNoApplicablePolicy is the fail-closed default reason returned when
// no active policy applies to a context.
const ReasonNoApplicablePolicy = "no applicable policy"
