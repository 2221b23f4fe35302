// model/core.go
package model

// Core policy IDs. Membership in this list is what protects a policy from
// deletion; core policies carry no special flag and can still be toggled
// inactive.
const (
	CoreTenantIsolation          = "TENANT_ISOLATION"
	CoreReadOnlyEnforcement      = "READ_ONLY_ENFORCEMENT"
	CoreFinancialApprovalLimit   = "FINANCIAL_APPROVAL_LIMIT"
	CorePayoutBusinessHours      = "PAYOUT_BUSINESS_HOURS"
	CoreAutomationScopeGuard     = "AUTOMATION_SCOPE_GUARD"
	CoreNotificationTenantSafety = "NOTIFICATION_TENANT_SAFETY"
)

var corePolicyIDs = map[string]struct{}{
	CoreTenantIsolation:          {},
	CoreReadOnlyEnforcement:      {},
	CoreFinancialApprovalLimit:   {},
	CorePayoutBusinessHours:      {},
	CoreAutomationScopeGuard:     {},
	CoreNotificationTenantSafety: {},
}

// IsCorePolicy reports whether policyID belongs to the protected core set.
func IsCorePolicy(policyID string) bool {
	_, ok := corePolicyIDs[policyID]
	return ok
}

// CorePolicyIDs returns the protected IDs in a stable order.
func CorePolicyIDs() []string {
	return []string{
		CoreTenantIsolation,
		CoreReadOnlyEnforcement,
		CoreFinancialApprovalLimit,
		CorePayoutBusinessHours,
		CoreAutomationScopeGuard,
		CoreNotificationTenantSafety,
	}
}
