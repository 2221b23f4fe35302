// model/statistics.go
package model

import "time"

// PolicyUsage summarizes one policy's share of evaluation traffic.
type PolicyUsage struct {
	PolicyID        string  `json:"policy_id"`
	Name            string  `json:"name"`
	Effect          Effect  `json:"effect"`
	EvaluationCount int64   `json:"evaluation_count"`
	AllowCount      int64   `json:"allow_count"`
	DenyCount       int64   `json:"deny_count"`
	AllowRate       float64 `json:"allow_rate"`
}

// DeniedDecision is one recent DENY with its controlling reason.
type DeniedDecision struct {
	Timestamp           time.Time `json:"timestamp"`
	ControllingPolicyID string    `json:"controlling_policy_id,omitempty"`
	Reason              string    `json:"reason"`
}

// EngineStatistics is the overview returned by GetStatistics.
type EngineStatistics struct {
	TimeRangeHours   int              `json:"time_range_hours"`
	TotalEvaluations int64            `json:"total_evaluations"`
	TotalAllowed     int64            `json:"total_allowed"`
	TotalDenied      int64            `json:"total_denied"`
	ActivePolicies   int              `json:"active_policies"`
	TopPolicies      []PolicyUsage    `json:"top_policies"`
	RecentDenials    []DeniedDecision `json:"recent_denials"`
}
