// dao/neo4j_policy_store.go
package dao

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	arbiter_errors "github.com/veritaskey/arbiter/errors"
	logger "github.com/veritaskey/arbiter/logging"
	"github.com/veritaskey/arbiter/model"
)

// Neo4jPolicyStore persists policies as POLICY nodes. Predicate lists are
// stored as JSON strings on the node; the version property carries the
// optimistic-concurrency token.
type Neo4jPolicyStore struct {
	Driver neo4j.Driver
}

func NewNeo4jPolicyStore(driver neo4j.Driver) (*Neo4jPolicyStore, error) {
	store := &Neo4jPolicyStore{Driver: driver}
	if err := store.ensureUniqueConstraint(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Neo4jPolicyStore) ensureUniqueConstraint(ctx context.Context) error {
	logger.Info("Ensuring unique constraint on Policy ID")
	session := s.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        CREATE CONSTRAINT unique_policy_id IF NOT EXISTS
        FOR (p:POLICY) REQUIRE p.policyId IS UNIQUE
        `
		if _, err := transaction.Run(query, nil); err != nil {
			return nil, fmt.Errorf("failed to create unique constraint: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		logger.Error("Failed to ensure unique constraint on Policy ID", zap.Error(err))
		return err
	}
	return nil
}

func (s *Neo4jPolicyStore) CreatePolicy(ctx context.Context, policy model.Policy, userID string) (*model.Policy, error) {
	start := time.Now()
	logger.Info("Creating new policy", zap.String("policyID", policy.PolicyID))
	session := s.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	now := time.Now()
	policy.Version = 1
	policy.EvaluationCount = 0
	policy.AllowCount = 0
	policy.DenyCount = 0
	policy.CreatedBy = userID
	policy.LastModifiedBy = userID
	policy.CreatedAt = now
	policy.UpdatedAt = now

	result, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		checkQuery := `
        MATCH (p:POLICY {policyId: $policyId})
        RETURN p.policyId
        `
		checkResult, err := transaction.Run(checkQuery, map[string]interface{}{"policyId": policy.PolicyID})
		if err != nil {
			return nil, arbiter_errors.ErrDatabaseOperation
		}
		if checkResult.Next() {
			return nil, arbiter_errors.ErrDuplicatePolicy
		}

		createQuery := `
        CREATE (p:POLICY {policyId: $policyId})
        SET p += $props
        RETURN p
        `
		props := policyToProps(&policy)
		props["evaluationCount"] = int64(0)
		props["allowCount"] = int64(0)
		props["denyCount"] = int64(0)
		createResult, err := transaction.Run(createQuery, map[string]interface{}{
			"policyId": policy.PolicyID,
			"props":    props,
		})
		if err != nil {
			return nil, arbiter_errors.ErrDatabaseOperation
		}
		if createResult.Next() {
			node := createResult.Record().Values[0].(neo4j.Node)
			return mapNodeToPolicy(node)
		}
		return nil, arbiter_errors.ErrInternalServer
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to create policy",
			zap.Error(err),
			zap.String("policyID", policy.PolicyID),
			zap.Duration("duration", duration))
		return nil, err
	}

	created := result.(*model.Policy)
	logger.Info("Policy created successfully",
		zap.String("policyID", created.PolicyID),
		zap.Duration("duration", duration))
	return created, nil
}

func (s *Neo4jPolicyStore) UpdatePolicy(ctx context.Context, policyID string, patch model.PolicyPatch, expectedVersion int, userID string) (*model.Policy, error) {
	start := time.Now()
	logger.Info("Updating policy",
		zap.String("policyID", policyID),
		zap.Int("expectedVersion", expectedVersion))

	session := s.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	result, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		readQuery := `
        MATCH (p:POLICY {policyId: $policyId})
        RETURN p
        `
		readResult, err := transaction.Run(readQuery, map[string]interface{}{"policyId": policyID})
		if err != nil {
			return nil, arbiter_errors.ErrDatabaseOperation
		}
		if !readResult.Next() {
			return nil, arbiter_errors.ErrPolicyNotFound
		}
		current, err := mapNodeToPolicy(readResult.Record().Values[0].(neo4j.Node))
		if err != nil {
			return nil, err
		}

		updated := patch.Apply(*current)
		updated.Version = current.Version + 1
		updated.LastModifiedBy = userID
		updated.UpdatedAt = time.Now()

		// Conditional write: the version guard in the query makes the
		// read-then-write a compare-and-swap, so a concurrent writer loses
		// with ErrVersionConflict instead of silently clobbering.
		writeQuery := `
        MATCH (p:POLICY {policyId: $policyId})
        WHERE p.version = $expectedVersion
        SET p += $props
        RETURN p
        `
		writeResult, err := transaction.Run(writeQuery, map[string]interface{}{
			"policyId":        policyID,
			"expectedVersion": int64(expectedVersion),
			"props":           policyToProps(&updated),
		})
		if err != nil {
			return nil, arbiter_errors.ErrDatabaseOperation
		}
		if !writeResult.Next() {
			return nil, arbiter_errors.ErrVersionConflict
		}
		return mapNodeToPolicy(writeResult.Record().Values[0].(neo4j.Node))
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to update policy",
			zap.Error(err),
			zap.String("policyID", policyID),
			zap.Duration("duration", duration))
		return nil, err
	}

	logger.Info("Policy updated successfully",
		zap.String("policyID", policyID),
		zap.Duration("duration", duration))
	return result.(*model.Policy), nil
}

func (s *Neo4jPolicyStore) DeletePolicy(ctx context.Context, policyID string, userID string) error {
	if model.IsCorePolicy(policyID) {
		logger.Warn("Refusing to delete core policy",
			zap.String("policyID", policyID),
			zap.String("userID", userID))
		return arbiter_errors.ErrProtectedPolicy
	}

	start := time.Now()
	session := s.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (p:POLICY {policyId: $policyId})
        DELETE p
        RETURN count(p) AS deleted
        `
		result, err := transaction.Run(query, map[string]interface{}{"policyId": policyID})
		if err != nil {
			return nil, arbiter_errors.ErrDatabaseOperation
		}
		if result.Next() {
			if deleted, _ := result.Record().Get("deleted"); deleted.(int64) == 0 {
				return nil, arbiter_errors.ErrPolicyNotFound
			}
			return nil, nil
		}
		return nil, arbiter_errors.ErrInternalServer
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to delete policy",
			zap.Error(err),
			zap.String("policyID", policyID),
			zap.Duration("duration", duration))
		return err
	}

	logger.Info("Policy deleted successfully",
		zap.String("policyID", policyID),
		zap.Duration("duration", duration))
	return nil
}

func (s *Neo4jPolicyStore) TogglePolicy(ctx context.Context, policyID string, userID string) (*model.Policy, error) {
	session := s.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	result, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (p:POLICY {policyId: $policyId})
        SET p.isActive = NOT p.isActive,
            p.version = p.version + 1,
            p.lastModifiedBy = $userID,
            p.updatedAt = $updatedAt
        RETURN p
        `
		toggleResult, err := transaction.Run(query, map[string]interface{}{
			"policyId":  policyID,
			"userID":    userID,
			"updatedAt": time.Now().Format(time.RFC3339),
		})
		if err != nil {
			return nil, arbiter_errors.ErrDatabaseOperation
		}
		if !toggleResult.Next() {
			return nil, arbiter_errors.ErrPolicyNotFound
		}
		return mapNodeToPolicy(toggleResult.Record().Values[0].(neo4j.Node))
	})
	if err != nil {
		logger.Error("Failed to toggle policy", zap.Error(err), zap.String("policyID", policyID))
		return nil, err
	}

	toggled := result.(*model.Policy)
	logger.Info("Policy toggled",
		zap.String("policyID", policyID),
		zap.Bool("isActive", toggled.IsActive))
	return toggled, nil
}

func (s *Neo4jPolicyStore) GetPolicy(ctx context.Context, policyID string) (*model.Policy, error) {
	session := s.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	result, err := session.ReadTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (p:POLICY {policyId: $policyId})
        RETURN p
        `
		readResult, err := transaction.Run(query, map[string]interface{}{"policyId": policyID})
		if err != nil {
			return nil, arbiter_errors.ErrDatabaseOperation
		}
		if !readResult.Next() {
			return nil, arbiter_errors.ErrPolicyNotFound
		}
		return mapNodeToPolicy(readResult.Record().Values[0].(neo4j.Node))
	})
	if err != nil {
		return nil, err
	}
	return result.(*model.Policy), nil
}

func (s *Neo4jPolicyStore) ListPolicies(ctx context.Context, filter model.PolicyFilter, limit, offset int) ([]*model.Policy, error) {
	if limit < 0 || offset < 0 {
		return nil, arbiter_errors.ErrInvalidPagination
	}
	if limit == 0 {
		limit = 100
	}

	session := s.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	result, err := session.ReadTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (p:POLICY)
        WHERE ($scope = '' OR p.scope = $scope)
          AND ($category = '' OR p.category = $category)
          AND ($effect = '' OR p.effect = $effect)
          AND ($checkActive = false OR p.isActive = $isActive)
          AND ($checkMinPriority = false OR p.priority >= $minPriority)
          AND ($checkMaxPriority = false OR p.priority <= $maxPriority)
        RETURN p
        ORDER BY p.priority DESC, p.policyId ASC
        SKIP $offset LIMIT $limit
        `
		params := map[string]interface{}{
			"scope":            string(filter.Scope),
			"category":         filter.Category,
			"effect":           string(filter.Effect),
			"checkActive":      filter.IsActive != nil,
			"isActive":         filter.IsActive != nil && *filter.IsActive,
			"checkMinPriority": filter.MinPriority != nil,
			"minPriority":      int64(derefInt(filter.MinPriority)),
			"checkMaxPriority": filter.MaxPriority != nil,
			"maxPriority":      int64(derefInt(filter.MaxPriority)),
			"offset":           int64(offset),
			"limit":            int64(limit),
		}

		listResult, err := transaction.Run(query, params)
		if err != nil {
			return nil, arbiter_errors.ErrDatabaseOperation
		}

		var policies []*model.Policy
		for listResult.Next() {
			policy, err := mapNodeToPolicy(listResult.Record().Values[0].(neo4j.Node))
			if err != nil {
				return nil, err
			}
			policies = append(policies, policy)
		}
		return policies, nil
	})
	if err != nil {
		logger.Error("Failed to list policies", zap.Error(err))
		return nil, err
	}
	return result.([]*model.Policy), nil
}

func (s *Neo4jPolicyStore) IncrementCounters(ctx context.Context, policyID string, evaluations, allows, denies int64) error {
	session := s.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (p:POLICY {policyId: $policyId})
        SET p.evaluationCount = p.evaluationCount + $evaluations,
            p.allowCount = p.allowCount + $allows,
            p.denyCount = p.denyCount + $denies
        RETURN p.policyId
        `
		result, err := transaction.Run(query, map[string]interface{}{
			"policyId":    policyID,
			"evaluations": evaluations,
			"allows":      allows,
			"denies":      denies,
		})
		if err != nil {
			return nil, arbiter_errors.ErrDatabaseOperation
		}
		if !result.Next() {
			return nil, arbiter_errors.ErrPolicyNotFound
		}
		return nil, nil
	})
	return err
}

func (s *Neo4jPolicyStore) Ping(ctx context.Context) error {
	if err := s.Driver.VerifyConnectivity(); err != nil {
		return fmt.Errorf("%w: %v", arbiter_errors.ErrStoreUnavailable, err)
	}
	return nil
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// policyToProps returns the writable node properties of a policy. The usage
// counters are deliberately absent: after creation IncrementCounters is their
// only writer, so a version-guarded update must not write back counter values
// read earlier in the transaction and undo a concurrent increment.
func policyToProps(policy *model.Policy) map[string]interface{} {
	subjectJSON, _ := json.Marshal(policy.SubjectPredicates)
	actionJSON, _ := json.Marshal(policy.ActionPredicates)
	resourceJSON, _ := json.Marshal(policy.ResourcePredicates)
	environmentJSON, _ := json.Marshal(policy.EnvironmentPredicates)

	return map[string]interface{}{
		"name":                  policy.Name,
		"description":           policy.Description,
		"scope":                 string(policy.Scope),
		"category":              policy.Category,
		"effect":                string(policy.Effect),
		"priority":              int64(policy.Priority),
		"subjectPredicates":     string(subjectJSON),
		"actionPredicates":      string(actionJSON),
		"resourcePredicates":    string(resourceJSON),
		"environmentPredicates": string(environmentJSON),
		"isActive":              policy.IsActive,
		"version":               int64(policy.Version),
		"createdBy":             policy.CreatedBy,
		"lastModifiedBy":        policy.LastModifiedBy,
		"createdAt":             policy.CreatedAt.Format(time.RFC3339),
		"updatedAt":             policy.UpdatedAt.Format(time.RFC3339),
	}
}

// mapNodeToPolicy converts a POLICY node into a Policy struct.
func mapNodeToPolicy(node neo4j.Node) (*model.Policy, error) {
	props := node.Props
	policy := &model.Policy{}

	policyID, ok := props["policyId"].(string)
	if !ok {
		return nil, fmt.Errorf("failed to assert type for policy ID: %v", props["policyId"])
	}
	policy.PolicyID = policyID

	if name, ok := props["name"].(string); ok {
		policy.Name = name
	}
	if description, ok := props["description"].(string); ok {
		policy.Description = description
	}
	if scope, ok := props["scope"].(string); ok {
		policy.Scope = model.Scope(scope)
	}
	if category, ok := props["category"].(string); ok {
		policy.Category = category
	}

	effect, ok := props["effect"].(string)
	if !ok || (model.Effect(effect) != model.EffectAllow && model.Effect(effect) != model.EffectDeny) {
		return nil, fmt.Errorf("invalid policy effect: %v", props["effect"])
	}
	policy.Effect = model.Effect(effect)

	if priority, ok := props["priority"].(int64); ok {
		policy.Priority = int(priority)
	} else {
		return nil, fmt.Errorf("failed to assert type for policy priority: %v", props["priority"])
	}
	if version, ok := props["version"].(int64); ok {
		policy.Version = int(version)
	} else {
		return nil, fmt.Errorf("failed to assert type for policy version: %v", props["version"])
	}
	if isActive, ok := props["isActive"].(bool); ok {
		policy.IsActive = isActive
	} else {
		return nil, fmt.Errorf("failed to assert type for policy isActive: %v", props["isActive"])
	}

	if evaluationCount, ok := props["evaluationCount"].(int64); ok {
		policy.EvaluationCount = evaluationCount
	}
	if allowCount, ok := props["allowCount"].(int64); ok {
		policy.AllowCount = allowCount
	}
	if denyCount, ok := props["denyCount"].(int64); ok {
		policy.DenyCount = denyCount
	}
	if createdBy, ok := props["createdBy"].(string); ok {
		policy.CreatedBy = createdBy
	}
	if lastModifiedBy, ok := props["lastModifiedBy"].(string); ok {
		policy.LastModifiedBy = lastModifiedBy
	}
	if createdAt, ok := props["createdAt"].(string); ok {
		policy.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	}
	if updatedAt, ok := props["updatedAt"].(string); ok {
		policy.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	}

	for propName, target := range map[string]*[]model.Predicate{
		"subjectPredicates":     &policy.SubjectPredicates,
		"actionPredicates":      &policy.ActionPredicates,
		"resourcePredicates":    &policy.ResourcePredicates,
		"environmentPredicates": &policy.EnvironmentPredicates,
	} {
		raw, ok := props[propName].(string)
		if !ok {
			return nil, fmt.Errorf("failed to assert type for policy %s: %v", propName, props[propName])
		}
		if err := json.Unmarshal([]byte(raw), target); err != nil {
			return nil, fmt.Errorf("failed to unmarshal policy %s: %w", propName, err)
		}
	}

	return policy, nil
}
