// api/controller/controllers.go
package controller

import "github.com/warden-net/warden/api/service"

type Controllers struct {
	Policy   *PolicyController
	Trust    *TrustController
	Device   *DeviceController
	Decision *DecisionController
}

func InitializeControllers(services *service.Services) *Controllers {
	return &Controllers{
		Policy:   NewPolicyController(services.Policy, services.Enforcement),
		Trust:    NewTrustController(services.Trust),
		Device:   NewDeviceController(services.Device, services.Enforcement),
		Decision: NewDecisionController(services.Audit),
	}
}
