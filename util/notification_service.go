// util/notification_service.go

package util

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	logger "github.com/veritaskey/arbiter/logging"
	"github.com/veritaskey/arbiter/model"
)

type NotificationService struct{}

func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

func (n *NotificationService) NotifyPolicyChange(ctx context.Context, changeType string, policy model.Policy) error {
	switch changeType {
	case "created":
		logger.Info("NOTIFICATION: New policy created",
			zap.String("policyID", policy.PolicyID),
			zap.String("policyName", policy.Name))
	case "updated":
		logger.Info("NOTIFICATION: Policy updated",
			zap.String("policyID", policy.PolicyID),
			zap.Int("version", policy.Version))
	case "toggled":
		logger.Info("NOTIFICATION: Policy toggled",
			zap.String("policyID", policy.PolicyID),
			zap.Bool("isActive", policy.IsActive))
	case "deleted":
		logger.Info("NOTIFICATION: Policy deleted",
			zap.String("policyID", policy.PolicyID))
	default:
		return fmt.Errorf("unknown change type: %s", changeType)
	}

	return nil
}

func (n *NotificationService) NotifyAdmins(ctx context.Context, message string) error {
	logger.Info("Notifying admins", zap.String("message", message))
	return nil
}
