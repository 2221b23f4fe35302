package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veritaskey/arbiter/dao"
	arbiter_errors "github.com/veritaskey/arbiter/errors"
	logger "github.com/veritaskey/arbiter/logging"
	"github.com/veritaskey/arbiter/model"
	"github.com/veritaskey/arbiter/util"
)

// IPolicyService is the administrative surface over the policy store.
type IPolicyService interface {
	CreatePolicy(ctx context.Context, policy model.Policy, userID string) (*model.Policy, error)
	UpdatePolicy(ctx context.Context, policyID string, patch model.PolicyPatch, expectedVersion int, userID string) (*model.Policy, error)
	DeletePolicy(ctx context.Context, policyID string, userID string) error
	TogglePolicy(ctx context.Context, policyID string, userID string) (*model.Policy, error)
	GetPolicy(ctx context.Context, policyID string) (*model.Policy, error)
	ListPolicies(ctx context.Context, filter model.PolicyFilter, limit, offset int) ([]*model.Policy, error)
	BulkCreatePolicies(ctx context.Context, policies []model.Policy, userID string) ([]string, error)
}

// PolicyService handles business logic for policy administration. Every
// successful mutation publishes an event consumed for notification fan-out.
// Refreshing a decision engine's snapshot is the caller's job; the HTTP
// controllers rebuild after every write, and embedded callers invoke
// Engine.RefreshCache themselves.
type PolicyService struct {
	store           dao.PolicyStore
	validationUtil  *util.ValidationUtil
	cacheService    *util.CacheService
	notificationSvc *util.NotificationService
	eventBus        *util.EventBus
}

// NewPolicyService creates a new instance of PolicyService
func NewPolicyService(store dao.PolicyStore, validationUtil *util.ValidationUtil, cacheService *util.CacheService, notificationSvc *util.NotificationService, eventBus *util.EventBus) *PolicyService {
	service := &PolicyService{
		store:           store,
		validationUtil:  validationUtil,
		cacheService:    cacheService,
		notificationSvc: notificationSvc,
		eventBus:        eventBus,
	}

	eventBus.Subscribe("policy.created", service.handlePolicyChanged)
	eventBus.Subscribe("policy.updated", service.handlePolicyChanged)
	eventBus.Subscribe("policy.toggled", service.handlePolicyChanged)
	eventBus.Subscribe("policy.deleted", service.handlePolicyDeleted)

	return service
}

func (s *PolicyService) handlePolicyChanged(ctx context.Context, event util.Event) error {
	policy, ok := event.Payload.(model.Policy)
	if !ok {
		logger.Error("Invalid event payload type", zap.Any("payload", event.Payload))
		return fmt.Errorf("invalid event payload type: %T", event.Payload)
	}

	changeType := event.Type[len("policy."):]
	if err := s.notificationSvc.NotifyPolicyChange(ctx, changeType, policy); err != nil {
		logger.Warn("Failed to send policy change notification",
			zap.Error(err),
			zap.String("policyID", policy.PolicyID))
	}
	return nil
}

func (s *PolicyService) handlePolicyDeleted(ctx context.Context, event util.Event) error {
	policyID, ok := event.Payload.(string)
	if !ok {
		logger.Error("Invalid event payload type", zap.Any("payload", event.Payload))
		return fmt.Errorf("invalid event payload type: %T", event.Payload)
	}

	if err := s.notificationSvc.NotifyPolicyChange(ctx, "deleted", model.Policy{PolicyID: policyID}); err != nil {
		logger.Warn("Failed to send policy deletion notification",
			zap.Error(err),
			zap.String("policyID", policyID))
	}
	return nil
}

// CreatePolicy handles the creation of a new policy
func (s *PolicyService) CreatePolicy(ctx context.Context, policy model.Policy, userID string) (*model.Policy, error) {
	if err := s.validationUtil.ValidatePolicy(policy); err != nil {
		return nil, fmt.Errorf("%w: %v", arbiter_errors.ErrInvalidPolicyData, err)
	}

	createdPolicy, err := s.store.CreatePolicy(ctx, policy, userID)
	if err != nil {
		if errors.Is(err, arbiter_errors.ErrDuplicatePolicy) {
			return nil, arbiter_errors.ErrDuplicatePolicy
		}
		logger.Error("Error creating policy", zap.Error(err), zap.String("userID", userID))
		return nil, fmt.Errorf("failed to create policy: %w", err)
	}

	// Update cache
	if err := s.cacheService.SetPolicy(ctx, *createdPolicy); err != nil {
		logger.Warn("Failed to cache policy", zap.Error(err), zap.String("policyID", createdPolicy.PolicyID))
	}

	// Publish event for asynchronous processing
	s.eventBus.Publish(ctx, "policy.created", *createdPolicy)

	logger.Info("Policy created successfully",
		zap.String("policyID", createdPolicy.PolicyID),
		zap.String("userID", userID))
	return createdPolicy, nil
}

// UpdatePolicy handles a versioned update to an existing policy. The caller
// supplies the version it read; a stale version loses with ErrVersionConflict.
func (s *PolicyService) UpdatePolicy(ctx context.Context, policyID string, patch model.PolicyPatch, expectedVersion int, userID string) (*model.Policy, error) {
	if err := s.validationUtil.ValidatePatch(patch); err != nil {
		return nil, fmt.Errorf("%w: %v", arbiter_errors.ErrInvalidPolicyData, err)
	}

	updatedPolicy, err := s.store.UpdatePolicy(ctx, policyID, patch, expectedVersion, userID)
	if err != nil {
		if errors.Is(err, arbiter_errors.ErrPolicyNotFound) || errors.Is(err, arbiter_errors.ErrVersionConflict) {
			return nil, err
		}
		logger.Error("Error updating policy",
			zap.Error(err),
			zap.String("policyID", policyID),
			zap.String("userID", userID))
		return nil, fmt.Errorf("failed to update policy: %w", err)
	}

	// Update cache
	if err := s.cacheService.SetPolicy(ctx, *updatedPolicy); err != nil {
		logger.Warn("Failed to update policy in cache", zap.Error(err), zap.String("policyID", policyID))
	}

	// Publish event for asynchronous processing
	s.eventBus.Publish(ctx, "policy.updated", *updatedPolicy)

	logger.Info("Policy updated successfully",
		zap.String("policyID", policyID),
		zap.Int("version", updatedPolicy.Version),
		zap.String("userID", userID))
	return updatedPolicy, nil
}

// DeletePolicy handles the deletion of a policy. Core policies are refused;
// deactivate them with TogglePolicy instead.
func (s *PolicyService) DeletePolicy(ctx context.Context, policyID string, userID string) error {
	err := s.store.DeletePolicy(ctx, policyID, userID)
	if err != nil {
		if errors.Is(err, arbiter_errors.ErrProtectedPolicy) || errors.Is(err, arbiter_errors.ErrPolicyNotFound) {
			return err
		}
		logger.Error("Error deleting policy",
			zap.Error(err),
			zap.String("policyID", policyID),
			zap.String("userID", userID))
		return fmt.Errorf("failed to delete policy: %w", err)
	}

	// Remove from cache
	if err := s.cacheService.DeletePolicy(ctx, policyID); err != nil {
		logger.Warn("Failed to delete policy from cache", zap.Error(err), zap.String("policyID", policyID))
	}

	// Publish event for asynchronous processing
	s.eventBus.Publish(ctx, "policy.deleted", policyID)

	logger.Info("Policy deleted successfully", zap.String("policyID", policyID), zap.String("userID", userID))
	return nil
}

// TogglePolicy flips a policy's active flag and bumps its version.
func (s *PolicyService) TogglePolicy(ctx context.Context, policyID string, userID string) (*model.Policy, error) {
	toggledPolicy, err := s.store.TogglePolicy(ctx, policyID, userID)
	if err != nil {
		if errors.Is(err, arbiter_errors.ErrPolicyNotFound) {
			return nil, err
		}
		logger.Error("Error toggling policy", zap.Error(err), zap.String("policyID", policyID))
		return nil, fmt.Errorf("failed to toggle policy: %w", err)
	}

	if err := s.cacheService.SetPolicy(ctx, *toggledPolicy); err != nil {
		logger.Warn("Failed to update policy in cache", zap.Error(err), zap.String("policyID", policyID))
	}

	s.eventBus.Publish(ctx, "policy.toggled", *toggledPolicy)

	logger.Info("Policy toggled successfully",
		zap.String("policyID", policyID),
		zap.Bool("isActive", toggledPolicy.IsActive),
		zap.String("userID", userID))
	return toggledPolicy, nil
}

// GetPolicy retrieves a policy by its ID
func (s *PolicyService) GetPolicy(ctx context.Context, policyID string) (*model.Policy, error) {
	// Try to get from cache first
	cachedPolicy, err := s.cacheService.GetPolicy(ctx, policyID)
	if err == nil && cachedPolicy != nil {
		return cachedPolicy, nil
	}

	policy, err := s.store.GetPolicy(ctx, policyID)
	if err != nil {
		if errors.Is(err, arbiter_errors.ErrPolicyNotFound) {
			return nil, arbiter_errors.ErrPolicyNotFound
		}
		logger.Error("Error retrieving policy", zap.Error(err), zap.String("policyID", policyID))
		return nil, arbiter_errors.ErrInternalServer
	}

	// Update cache
	if err := s.cacheService.SetPolicy(ctx, *policy); err != nil {
		logger.Warn("Failed to cache policy", zap.Error(err), zap.String("policyID", policyID))
	}

	return policy, nil
}

// ListPolicies retrieves policies matching the filter, with pagination
func (s *PolicyService) ListPolicies(ctx context.Context, filter model.PolicyFilter, limit, offset int) ([]*model.Policy, error) {
	policies, err := s.store.ListPolicies(ctx, filter, limit, offset)
	if err != nil {
		if errors.Is(err, arbiter_errors.ErrInvalidPagination) {
			return nil, err
		}
		logger.Error("Error listing policies", zap.Error(err), zap.Int("limit", limit), zap.Int("offset", offset))
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}

	return policies, nil
}

// BulkCreatePolicies creates multiple policies in parallel
func (s *PolicyService) BulkCreatePolicies(ctx context.Context, policies []model.Policy, userID string) ([]string, error) {
	g, ctx := errgroup.WithContext(ctx)
	policyIDs := make([]string, len(policies))

	// Limit concurrency to avoid overwhelming the store
	semaphore := make(chan struct{}, 10)

	for i, policy := range policies {
		i, policy := i, policy
		g.Go(func() error {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			createdPolicy, err := s.CreatePolicy(ctx, policy, userID)
			if err != nil {
				return err
			}
			policyIDs[i] = createdPolicy.PolicyID
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Error in bulk create policies", zap.Error(err), zap.String("userID", userID))
		return nil, fmt.Errorf("failed to bulk create policies: %w", err)
	}

	logger.Info("Bulk create policies completed", zap.Int("count", len(policyIDs)), zap.String("userID", userID))
	return policyIDs, nil
}
