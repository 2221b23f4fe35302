// pdp/corepolicy.go
package pdp

import (
	"fmt"

	"github.com/veritaskey/arbiter/model"
)

// corePolicyTemplates are the built-in definitions behind
// InitializeCorePolicy. All six are DENY guards; tenant traffic is allowed
// by ordinary administrator-authored ALLOW policies underneath them.
var corePolicyTemplates = map[string]model.Policy{
	model.CoreTenantIsolation: {
		PolicyID:    model.CoreTenantIsolation,
		Name:        "Tenant isolation",
		Description: "Denies access to resources owned by a different tenant than the acting subject.",
		Scope:       model.ScopePlatform,
		Category:    "tenancy",
		Effect:      model.EffectDeny,
		Priority:    1000,
		ResourcePredicates: []model.Predicate{
			{Attribute: "tenantId", Operator: model.OpNotEquals, Value: "subject.tenantId"},
		},
		IsActive: true,
	},
	model.CoreReadOnlyEnforcement: {
		PolicyID:    model.CoreReadOnlyEnforcement,
		Name:        "Read-only enforcement",
		Description: "Denies every mutating action while the platform runs in read-only mode.",
		Scope:       model.ScopePlatform,
		Category:    "maintenance",
		Effect:      model.EffectDeny,
		Priority:    950,
		ActionPredicates: []model.Predicate{
			{Attribute: "type", Operator: model.OpNotIn, Value: []interface{}{"read", "list", "get"}},
		},
		EnvironmentPredicates: []model.Predicate{
			{Attribute: "readOnlyMode", Operator: model.OpEquals, Value: true},
		},
		IsActive: true,
	},
	model.CoreFinancialApprovalLimit: {
		PolicyID:    model.CoreFinancialApprovalLimit,
		Name:        "Financial approval limit",
		Description: "Denies payout approvals whose amount exceeds the subject's approval limit.",
		Scope:       model.ScopePlatform,
		Category:    "billing",
		Effect:      model.EffectDeny,
		Priority:    900,
		ActionPredicates: []model.Predicate{
			{Attribute: "type", Operator: model.OpEquals, Value: "payout.approve"},
		},
		SubjectPredicates: []model.Predicate{
			{Attribute: "approvalLimit", Operator: model.OpLessThan, Value: "resource.amount"},
		},
		IsActive: true,
	},
	model.CorePayoutBusinessHours: {
		PolicyID:    model.CorePayoutBusinessHours,
		Name:        "Payout business hours",
		Description: "Denies payout execution outside the configured business-hours window.",
		Scope:       model.ScopePlatform,
		Category:    "billing",
		Effect:      model.EffectDeny,
		Priority:    850,
		ActionPredicates: []model.Predicate{
			{Attribute: "type", Operator: model.OpEquals, Value: "payout.execute"},
		},
		EnvironmentPredicates: []model.Predicate{
			{Attribute: "businessHours", Operator: model.OpEquals, Value: false},
		},
		IsActive: true,
	},
	model.CoreAutomationScopeGuard: {
		PolicyID:    model.CoreAutomationScopeGuard,
		Name:        "Automation scope guard",
		Description: "Denies destructive actions to automation subjects without a destructive grant.",
		Scope:       model.ScopePlatform,
		Category:    "automation",
		Effect:      model.EffectDeny,
		Priority:    800,
		SubjectPredicates: []model.Predicate{
			{Attribute: "type", Operator: model.OpEquals, Value: "automation"},
			{Attribute: "allowDestructive", Operator: model.OpExists, Value: false},
		},
		ActionPredicates: []model.Predicate{
			{Attribute: "type", Operator: model.OpIn, Value: []interface{}{"delete", "purge", "bulk.update"}},
		},
		IsActive: true,
	},
	model.CoreNotificationTenantSafety: {
		PolicyID:    model.CoreNotificationTenantSafety,
		Name:        "Notification tenant safety",
		Description: "Denies sending notifications to recipients outside the acting subject's tenant.",
		Scope:       model.ScopePlatform,
		Category:    "notifications",
		Effect:      model.EffectDeny,
		Priority:    750,
		ActionPredicates: []model.Predicate{
			{Attribute: "type", Operator: model.OpEquals, Value: "notification.send"},
		},
		ResourcePredicates: []model.Predicate{
			{Attribute: "recipientTenantId", Operator: model.OpNotEquals, Value: "subject.tenantId"},
		},
		IsActive: true,
	},
}

// CorePolicyTemplate returns a copy of the built-in definition for a core
// policy ID.
func CorePolicyTemplate(policyID string) (model.Policy, error) {
	template, ok := corePolicyTemplates[policyID]
	if !ok {
		return model.Policy{}, fmt.Errorf("unknown core policy: %s", policyID)
	}
	return template, nil
}
