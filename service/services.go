// api/service/services.go
package service

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/warden-net/warden/api/audit"
	"github.com/warden-net/warden/api/dao"
	"github.com/warden-net/warden/api/enforce"
	"github.com/warden-net/warden/api/pdp/engine"
	"github.com/warden-net/warden/api/pdp/evalctx"
	"github.com/warden-net/warden/api/trust"
	"github.com/warden-net/warden/api/util"
)

type Services struct {
	Policy      IPolicyService
	Trust       ITrustService
	Device      IDeviceService
	Enforcement IEnforcementService
	Audit       audit.Service
	Scorer      *trust.Scorer
}

// InitializeServices wires the DAOs, the scorer, the evaluation
// pipeline and the reconciler into their services.
func InitializeServices(
	ctx context.Context,
	driver neo4j.Driver,
	auditService audit.Service,
	signals evalctx.SignalSource,
	evaluator *engine.PolicyEvaluator,
	reconciler *enforce.Reconciler,
	eventBus *util.EventBus,
) (*Services, error) {
	policyDAO := dao.NewPolicyDAO(driver, auditService)
	trustDAO := dao.NewTrustDAO(driver)
	deviceDAO := dao.NewDeviceDAO(driver)

	if err := policyDAO.EnsureUniqueConstraint(ctx); err != nil {
		return nil, err
	}

	scorer := trust.NewScorer(trustDAO)
	deviceService := NewDeviceService(deviceDAO)
	trustService := NewTrustService(scorer, eventBus)

	policyService, err := NewPolicyService(ctx, policyDAO, eventBus)
	if err != nil {
		return nil, err
	}

	builder := evalctx.NewBuilder(deviceService, scorer, signals)
	enforcementService := NewEnforcementService(
		policyService, deviceService, builder, evaluator, reconciler, auditService, eventBus)

	return &Services{
		Policy:      policyService,
		Trust:       trustService,
		Device:      deviceService,
		Enforcement: enforcementService,
		Audit:       auditService,
		Scorer:      scorer,
	}, nil
}
