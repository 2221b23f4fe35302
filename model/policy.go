// model/policy.go
package model

import (
	"time"
)

// Effect is the outcome a policy contributes when it applies.
type Effect string

const (
	EffectAllow Effect = "ALLOW"
	EffectDeny  Effect = "DENY"
)

// Scope describes how broadly a policy applies.
type Scope string

const (
	ScopePlatform Scope = "platform"
	ScopeTenant   Scope = "tenant"
	ScopeResource Scope = "resource"
)

// Operator is a closed set of predicate comparison operators. Unknown
// operators are rejected when a policy is created or updated, never at
// evaluation time.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "notEquals"
	OpIn             Operator = "in"
	OpNotIn          Operator = "notIn"
	OpGreaterThan    Operator = "greaterThan"
	OpLessThan       Operator = "lessThan"
	OpExists         Operator = "exists"
	OpMatchesPattern Operator = "matchesPattern"
)

// Valid reports whether op is one of the supported operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpIn, OpNotIn, OpGreaterThan, OpLessThan, OpExists, OpMatchesPattern:
		return true
	}
	return false
}

// Predicate is a single attribute condition. Value may reference another
// context attribute by prefix, e.g. "subject.tenantId".
type Predicate struct {
	Attribute string      `json:"attribute"`
	Operator  Operator    `json:"operator"`
	Value     interface{} `json:"value,omitempty"`
}

// Policy is one access-control rule. PolicyID is the immutable business key;
// an empty predicate list in a category is a wildcard for that category.
type Policy struct {
	PolicyID              string      `json:"policy_id"`
	Name                  string      `json:"name"`
	Description           string      `json:"description"`
	Scope                 Scope       `json:"scope"`
	Category              string      `json:"category"`
	Effect                Effect      `json:"effect"`
	Priority              int         `json:"priority"`
	SubjectPredicates     []Predicate `json:"subject_predicates"`
	ActionPredicates      []Predicate `json:"action_predicates"`
	ResourcePredicates    []Predicate `json:"resource_predicates"`
	EnvironmentPredicates []Predicate `json:"environment_predicates"`
	IsActive              bool        `json:"is_active"`
	Version               int         `json:"version"`
	EvaluationCount       int64       `json:"evaluation_count"`
	AllowCount            int64       `json:"allow_count"`
	DenyCount             int64       `json:"deny_count"`
	CreatedBy             string      `json:"created_by"`
	LastModifiedBy        string      `json:"last_modified_by"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// PolicyFilter narrows a policy listing.
type PolicyFilter struct {
	Scope       Scope  `json:"scope,omitempty"`
	Category    string `json:"category,omitempty"`
	Effect      Effect `json:"effect,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
	MinPriority *int   `json:"min_priority,omitempty"`
	MaxPriority *int   `json:"max_priority,omitempty"`
}

// PolicyPatch carries the mutable fields of a policy update. PolicyID itself
// can never change; nil fields are left untouched.
type PolicyPatch struct {
	Name                  *string      `json:"name,omitempty"`
	Description           *string      `json:"description,omitempty"`
	Scope                 *Scope       `json:"scope,omitempty"`
	Category              *string      `json:"category,omitempty"`
	Effect                *Effect      `json:"effect,omitempty"`
	Priority              *int         `json:"priority,omitempty"`
	SubjectPredicates     *[]Predicate `json:"subject_predicates,omitempty"`
	ActionPredicates      *[]Predicate `json:"action_predicates,omitempty"`
	ResourcePredicates    *[]Predicate `json:"resource_predicates,omitempty"`
	EnvironmentPredicates *[]Predicate `json:"environment_predicates,omitempty"`
}

// Apply returns a copy of p with the patch applied.
func (patch PolicyPatch) Apply(p Policy) Policy {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Scope != nil {
		p.Scope = *patch.Scope
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Effect != nil {
		p.Effect = *patch.Effect
	}
	if patch.Priority != nil {
		p.Priority = *patch.Priority
	}
	if patch.SubjectPredicates != nil {
		p.SubjectPredicates = *patch.SubjectPredicates
	}
	if patch.ActionPredicates != nil {
		p.ActionPredicates = *patch.ActionPredicates
	}
	if patch.ResourcePredicates != nil {
		p.ResourcePredicates = *patch.ResourcePredicates
	}
	if patch.EnvironmentPredicates != nil {
		p.EnvironmentPredicates = *patch.EnvironmentPredicates
	}
	return p
}
