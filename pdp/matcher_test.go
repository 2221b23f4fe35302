package pdp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veritaskey/arbiter/model"
)

func testContext() model.EvaluationContext {
	return model.EvaluationContext{
		Subject: map[string]interface{}{
			"id":       "user-1",
			"tenantId": "tenant-a",
			"role":     "operator",
			"level":    float64(5),
		},
		Action: map[string]interface{}{
			"type": "payout.approve",
		},
		Resource: map[string]interface{}{
			"tenantId": "tenant-a",
			"amount":   float64(250),
			"path":     "invoices/2026/08/inv-123",
		},
		Environment: map[string]interface{}{
			"businessHours": true,
		},
	}
}

func policyWithSubjectPredicate(p model.Predicate) *model.Policy {
	return &model.Policy{
		PolicyID:          "POL_TEST",
		Effect:            model.EffectAllow,
		SubjectPredicates: []model.Predicate{p},
	}
}

func TestMatchesOperators(t *testing.T) {
	tests := []struct {
		name      string
		predicate model.Predicate
		want      bool
	}{
		{"equals match", model.Predicate{Attribute: "role", Operator: model.OpEquals, Value: "operator"}, true},
		{"equals mismatch", model.Predicate{Attribute: "role", Operator: model.OpEquals, Value: "admin"}, false},
		{"notEquals match", model.Predicate{Attribute: "role", Operator: model.OpNotEquals, Value: "admin"}, true},
		{"notEquals mismatch", model.Predicate{Attribute: "role", Operator: model.OpNotEquals, Value: "operator"}, false},
		{"in match", model.Predicate{Attribute: "role", Operator: model.OpIn, Value: []interface{}{"admin", "operator"}}, true},
		{"in mismatch", model.Predicate{Attribute: "role", Operator: model.OpIn, Value: []interface{}{"admin", "auditor"}}, false},
		{"notIn match", model.Predicate{Attribute: "role", Operator: model.OpNotIn, Value: []interface{}{"admin"}}, true},
		{"notIn mismatch", model.Predicate{Attribute: "role", Operator: model.OpNotIn, Value: []interface{}{"operator"}}, false},
		{"greaterThan match", model.Predicate{Attribute: "level", Operator: model.OpGreaterThan, Value: float64(3)}, true},
		{"greaterThan mismatch", model.Predicate{Attribute: "level", Operator: model.OpGreaterThan, Value: float64(5)}, false},
		{"lessThan match", model.Predicate{Attribute: "level", Operator: model.OpLessThan, Value: float64(10)}, true},
		{"lessThan mismatch", model.Predicate{Attribute: "level", Operator: model.OpLessThan, Value: float64(5)}, false},
		{"exists present", model.Predicate{Attribute: "role", Operator: model.OpExists}, true},
		{"exists absent", model.Predicate{Attribute: "clearance", Operator: model.OpExists}, false},
		{"exists false on absent", model.Predicate{Attribute: "clearance", Operator: model.OpExists, Value: false}, true},
		{"exists false on present", model.Predicate{Attribute: "role", Operator: model.OpExists, Value: false}, false},
		{"missing attribute fails", model.Predicate{Attribute: "clearance", Operator: model.OpEquals, Value: "high"}, false},
		{"unknown operator never grants", model.Predicate{Attribute: "role", Operator: "regexMatch", Value: ".*"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, _ := Matches(policyWithSubjectPredicate(tt.predicate), testContext())
			assert.Equal(t, tt.want, matched)
		})
	}
}

func TestMatchesNumericStringComparison(t *testing.T) {
	ectx := testContext()
	ectx.Subject["approvalLimit"] = "500"

	// "500" and 500 compare numerically, not lexically.
	matched, _ := Matches(policyWithSubjectPredicate(model.Predicate{
		Attribute: "approvalLimit", Operator: model.OpEquals, Value: float64(500),
	}), ectx)
	assert.True(t, matched)

	matched, _ = Matches(policyWithSubjectPredicate(model.Predicate{
		Attribute: "approvalLimit", Operator: model.OpLessThan, Value: float64(1000),
	}), ectx)
	assert.True(t, matched)
}

func TestMatchesPatternOperator(t *testing.T) {
	policy := &model.Policy{
		PolicyID: "POL_PATTERN",
		Effect:   model.EffectAllow,
		ResourcePredicates: []model.Predicate{
			{Attribute: "path", Operator: model.OpMatchesPattern, Value: "invoices/**"},
		},
	}

	matched, _ := Matches(policy, testContext())
	assert.True(t, matched)

	policy.ResourcePredicates[0].Value = "payouts/**"
	matched, _ = Matches(policy, testContext())
	assert.False(t, matched)
}

func TestMatchesEmptyGroupsAreWildcards(t *testing.T) {
	policy := &model.Policy{PolicyID: "POL_WILDCARD", Effect: model.EffectAllow}

	matched, reason := Matches(policy, testContext())
	assert.True(t, matched)
	assert.Equal(t, "all predicates satisfied", reason)
}

func TestMatchesGroupConjunction(t *testing.T) {
	policy := &model.Policy{
		PolicyID: "POL_CONJ",
		Effect:   model.EffectAllow,
		SubjectPredicates: []model.Predicate{
			{Attribute: "role", Operator: model.OpEquals, Value: "operator"},
			{Attribute: "level", Operator: model.OpGreaterThan, Value: float64(9)},
		},
	}

	// Both predicates in a group must hold; there is no OR.
	matched, _ := Matches(policy, testContext())
	assert.False(t, matched)
}

func TestMatchesCrossAttributeReference(t *testing.T) {
	policy := &model.Policy{
		PolicyID: "POL_XREF",
		Effect:   model.EffectDeny,
		ResourcePredicates: []model.Predicate{
			{Attribute: "tenantId", Operator: model.OpNotEquals, Value: "subject.tenantId"},
		},
	}

	// Same tenant: notEquals against the resolved reference fails.
	matched, _ := Matches(policy, testContext())
	assert.False(t, matched)

	// Foreign tenant: the reference resolves and the predicate holds.
	ectx := testContext()
	ectx.Resource["tenantId"] = "tenant-b"
	matched, _ = Matches(policy, ectx)
	assert.True(t, matched)
}

func TestMatchesUnresolvableReferenceFails(t *testing.T) {
	policy := &model.Policy{
		PolicyID: "POL_XREF_MISSING",
		Effect:   model.EffectAllow,
		ResourcePredicates: []model.Predicate{
			{Attribute: "tenantId", Operator: model.OpEquals, Value: "subject.missingAttribute"},
		},
	}

	matched, _ := Matches(policy, testContext())
	assert.False(t, matched)
}

func TestMatchesPlainDottedStringIsNotAReference(t *testing.T) {
	ectx := testContext()
	ectx.Resource["owner"] = "svc.billing"

	policy := &model.Policy{
		PolicyID: "POL_DOTTED",
		Effect:   model.EffectAllow,
		ResourcePredicates: []model.Predicate{
			// "svc.billing" is not a context group prefix, so it stays literal.
			{Attribute: "owner", Operator: model.OpEquals, Value: "svc.billing"},
		},
	}

	matched, _ := Matches(policy, ectx)
	assert.True(t, matched)
}
