// controller/controllers.go
package controller

import (
	"github.com/veritaskey/arbiter/audit"
	"github.com/veritaskey/arbiter/pdp"
	"github.com/veritaskey/arbiter/service"
)

type Controllers struct {
	Policy   *PolicyController
	Decision *DecisionController
}

func InitializeControllers(services *service.Services, engine *pdp.Engine, auditService audit.Service) *Controllers {
	return &Controllers{
		Policy:   NewPolicyController(services.Policy, engine),
		Decision: NewDecisionController(engine, auditService),
	}
}
