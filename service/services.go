// service/services.go
package service

import (
	"github.com/veritaskey/arbiter/dao"
	"github.com/veritaskey/arbiter/util"
)

type Services struct {
	Policy IPolicyService
}

func InitializeServices(
	store dao.PolicyStore,
	validationUtil *util.ValidationUtil,
	cacheService *util.CacheService,
	notificationSvc *util.NotificationService,
	eventBus *util.EventBus,
) (*Services, error) {
	services := &Services{
		Policy: NewPolicyService(store, validationUtil, cacheService, notificationSvc, eventBus),
	}

	return services, nil
}
