package util

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veritaskey/arbiter/model"
)

func validPolicy() model.Policy {
	return model.Policy{
		PolicyID: "POL_VALID",
		Name:     "Valid policy",
		Scope:    model.ScopeTenant,
		Effect:   model.EffectAllow,
		Priority: 100,
		SubjectPredicates: []model.Predicate{
			{Attribute: "role", Operator: model.OpEquals, Value: "operator"},
		},
	}
}

func TestValidatePolicy(t *testing.T) {
	v := NewValidationUtil()

	assert.NoError(t, v.ValidatePolicy(validPolicy()))

	tests := []struct {
		name   string
		mutate func(*model.Policy)
	}{
		{"missing policy ID", func(p *model.Policy) { p.PolicyID = "" }},
		{"missing name", func(p *model.Policy) { p.Name = "" }},
		{"invalid effect", func(p *model.Policy) { p.Effect = "PERMIT" }},
		{"invalid scope", func(p *model.Policy) { p.Scope = "global" }},
		{"negative priority", func(p *model.Policy) { p.Priority = -1 }},
		{"empty predicate attribute", func(p *model.Policy) {
			p.SubjectPredicates = []model.Predicate{{Operator: model.OpEquals, Value: "x"}}
		}},
		{"unknown operator", func(p *model.Policy) {
			p.SubjectPredicates = []model.Predicate{{Attribute: "role", Operator: "regexMatch", Value: ".*"}}
		}},
		{"in without a list", func(p *model.Policy) {
			p.ActionPredicates = []model.Predicate{{Attribute: "type", Operator: model.OpIn, Value: "read"}}
		}},
		{"matchesPattern without a string", func(p *model.Policy) {
			p.ResourcePredicates = []model.Predicate{{Attribute: "path", Operator: model.OpMatchesPattern, Value: 42}}
		}},
		{"exists with a non-boolean", func(p *model.Policy) {
			p.SubjectPredicates = []model.Predicate{{Attribute: "grant", Operator: model.OpExists, Value: "yes"}}
		}},
		{"equals without a value", func(p *model.Policy) {
			p.SubjectPredicates = []model.Predicate{{Attribute: "role", Operator: model.OpEquals}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPolicy()
			tt.mutate(&p)
			assert.Error(t, v.ValidatePolicy(p))
		})
	}
}

func TestValidatePatch(t *testing.T) {
	v := NewValidationUtil()

	assert.NoError(t, v.ValidatePatch(model.PolicyPatch{}))

	name := "Renamed"
	priority := 200
	assert.NoError(t, v.ValidatePatch(model.PolicyPatch{Name: &name, Priority: &priority}))

	badEffect := model.Effect("PERMIT")
	assert.Error(t, v.ValidatePatch(model.PolicyPatch{Effect: &badEffect}))

	badScope := model.Scope("global")
	assert.Error(t, v.ValidatePatch(model.PolicyPatch{Scope: &badScope}))

	negative := -5
	assert.Error(t, v.ValidatePatch(model.PolicyPatch{Priority: &negative}))

	badPredicates := []model.Predicate{{Attribute: "type", Operator: model.OpIn, Value: "read"}}
	assert.Error(t, v.ValidatePatch(model.PolicyPatch{ActionPredicates: &badPredicates}))
}
