// audit/model.go
package audit

import (
	"time"

	"github.com/veritaskey/arbiter/model"
)

// DecisionLogEntry is the immutable record of one evaluation. Exactly one is
// produced per Evaluate call; entries are append-only and never mutated.
type DecisionLogEntry struct {
	ID                  string                   `json:"id"`
	Timestamp           time.Time                `json:"timestamp"`
	Subject             map[string]interface{}   `json:"subject"`
	Action              map[string]interface{}   `json:"action"`
	Resource            map[string]interface{}   `json:"resource"`
	Environment         map[string]interface{}   `json:"environment"`
	Result              model.Effect             `json:"result"`
	ControllingPolicyID string                   `json:"controlling_policy_id,omitempty"`
	Reason              string                   `json:"reason"`
	Considered          []model.PolicyEvaluation `json:"considered"`
}

// LogFilter narrows a decision-log query.
type LogFilter struct {
	From     time.Time    `json:"from,omitempty"`
	To       time.Time    `json:"to,omitempty"`
	Result   model.Effect `json:"result,omitempty"`
	PolicyID string       `json:"policy_id,omitempty"`
}
