// util/validation_util.go

package util

import (
	"fmt"

	"github.com/veritaskey/arbiter/model"
)

type ValidationUtil struct{}

func NewValidationUtil() *ValidationUtil {
	return &ValidationUtil{}
}

func (v *ValidationUtil) ValidatePolicy(policy model.Policy) error {
	if policy.PolicyID == "" {
		return fmt.Errorf("policy ID cannot be empty")
	}
	if policy.Name == "" {
		return fmt.Errorf("policy name cannot be empty")
	}
	if policy.Effect != model.EffectAllow && policy.Effect != model.EffectDeny {
		return fmt.Errorf("policy effect must be either ALLOW or DENY")
	}
	switch policy.Scope {
	case model.ScopePlatform, model.ScopeTenant, model.ScopeResource:
	default:
		return fmt.Errorf("policy scope must be platform, tenant or resource")
	}
	if policy.Priority < 0 {
		return fmt.Errorf("policy priority cannot be negative")
	}

	for groupName, predicates := range map[string][]model.Predicate{
		"subject":     policy.SubjectPredicates,
		"action":      policy.ActionPredicates,
		"resource":    policy.ResourcePredicates,
		"environment": policy.EnvironmentPredicates,
	} {
		if err := v.validatePredicates(groupName, predicates); err != nil {
			return err
		}
	}
	return nil
}

// validatePredicates rejects malformed predicates up front so evaluation
// never encounters an unknown operator.
func (v *ValidationUtil) validatePredicates(groupName string, predicates []model.Predicate) error {
	for i, predicate := range predicates {
		if predicate.Attribute == "" {
			return fmt.Errorf("%s predicate %d: attribute cannot be empty", groupName, i)
		}
		if !predicate.Operator.Valid() {
			return fmt.Errorf("%s predicate %d: unknown operator %q", groupName, i, predicate.Operator)
		}
		switch predicate.Operator {
		case model.OpIn, model.OpNotIn:
			switch predicate.Value.(type) {
			case []interface{}, []string:
			default:
				return fmt.Errorf("%s predicate %d: %s requires a list value", groupName, i, predicate.Operator)
			}
		case model.OpMatchesPattern:
			if _, ok := predicate.Value.(string); !ok {
				return fmt.Errorf("%s predicate %d: matchesPattern requires a string pattern", groupName, i)
			}
		case model.OpExists:
			if predicate.Value != nil {
				if _, ok := predicate.Value.(bool); !ok {
					return fmt.Errorf("%s predicate %d: exists takes an optional boolean", groupName, i)
				}
			}
		default:
			if predicate.Value == nil {
				return fmt.Errorf("%s predicate %d: %s requires a value", groupName, i, predicate.Operator)
			}
		}
	}
	return nil
}

// ValidatePatch applies the same predicate rules to an update payload.
func (v *ValidationUtil) ValidatePatch(patch model.PolicyPatch) error {
	if patch.Effect != nil && *patch.Effect != model.EffectAllow && *patch.Effect != model.EffectDeny {
		return fmt.Errorf("policy effect must be either ALLOW or DENY")
	}
	if patch.Scope != nil {
		switch *patch.Scope {
		case model.ScopePlatform, model.ScopeTenant, model.ScopeResource:
		default:
			return fmt.Errorf("policy scope must be platform, tenant or resource")
		}
	}
	if patch.Priority != nil && *patch.Priority < 0 {
		return fmt.Errorf("policy priority cannot be negative")
	}

	for groupName, predicates := range map[string]*[]model.Predicate{
		"subject":     patch.SubjectPredicates,
		"action":      patch.ActionPredicates,
		"resource":    patch.ResourcePredicates,
		"environment": patch.EnvironmentPredicates,
	} {
		if predicates == nil {
			continue
		}
		if err := v.validatePredicates(groupName, *predicates); err != nil {
			return err
		}
	}
	return nil
}
