// api/service/enforcement_service.go
package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warden-net/warden/api/audit"
	"github.com/warden-net/warden/api/enforce"
	logger "github.com/warden-net/warden/api/logging"
	"github.com/warden-net/warden/api/model"
	"github.com/warden-net/warden/api/pdp/engine"
	"github.com/warden-net/warden/api/pdp/evalctx"
	"github.com/warden-net/warden/api/util"
)

// IEnforcementService drives evaluation and reconciliation.
type IEnforcementService interface {
	EvaluateDevice(ctx context.Context, mac, destIP string, destPort int) model.Decision
	TestPolicy(ctx context.Context, policy *model.Policy, mac string) (bool, model.EvaluationContext)
	SuggestPolicies(ctx context.Context, mac string) []model.PolicySuggestion
	ApplyAll(ctx context.Context) (int, error)
	State() map[string]enforce.DeviceState
}

// EnforcementService runs the evaluate-then-reconcile pass: build a
// context per device, evaluate all of them against one frozen policy
// snapshot, audit each decision, and converge the firewall to the
// resulting plan.
type EnforcementService struct {
	policies   IPolicyService
	devices    IDeviceService
	builder    *evalctx.Builder
	evaluator  *engine.PolicyEvaluator
	reconciler *enforce.Reconciler
	audit      audit.Service

	// A new pass supersedes the in-flight one: planning is cancelled,
	// but directives already being applied run to completion so the
	// firewall never holds a half-written rule.
	passMu     sync.Mutex
	passGen    int
	cancelPass context.CancelFunc
}

func NewEnforcementService(
	policies IPolicyService,
	devices IDeviceService,
	builder *evalctx.Builder,
	evaluator *engine.PolicyEvaluator,
	reconciler *enforce.Reconciler,
	auditService audit.Service,
	eventBus *util.EventBus,
) *EnforcementService {
	service := &EnforcementService{
		policies:   policies,
		devices:    devices,
		builder:    builder,
		evaluator:  evaluator,
		reconciler: reconciler,
		audit:      auditService,
	}

	// Policy and trust changes make the current enforcement state
	// stale; trigger a pass rather than waiting for the next tick.
	trigger := func(ctx context.Context, _ util.Event) error {
		if _, err := service.ApplyAll(ctx); err != nil {
			logger.Error("Triggered enforcement pass failed", zap.Error(err))
		}
		return nil
	}
	eventBus.Subscribe("policy.created", trigger)
	eventBus.Subscribe("policy.updated", trigger)
	eventBus.Subscribe("policy.deleted", trigger)
	eventBus.Subscribe("trust.changed", trigger)

	return service
}

// EvaluateDevice builds a fresh context and evaluates it against the
// current snapshot. The decision is audited so the log explains every
// posture the engine ever took.
func (s *EnforcementService) EvaluateDevice(ctx context.Context, mac, destIP string, destPort int) model.Decision {
	ectx := s.builder.Build(ctx, mac, destIP, destPort)
	decision := s.evaluator.Evaluate(ectx, s.policies.Snapshot())

	if err := s.audit.LogDecision(ctx, decision); err != nil {
		logger.Warn("Failed to audit decision", zap.String("mac", mac), zap.Error(err))
	}
	return decision
}

// TestPolicy dry-runs one policy against a device's live context
// without touching the audit log or the firewall.
func (s *EnforcementService) TestPolicy(ctx context.Context, policy *model.Policy, mac string) (bool, model.EvaluationContext) {
	ectx := s.builder.Build(ctx, mac, "", 0)
	return engine.WouldApply(policy, &ectx), ectx
}

// SuggestPolicies derives advisory policies from the device's live
// context. Read-only: no audit entry, no enforcement.
func (s *EnforcementService) SuggestPolicies(ctx context.Context, mac string) []model.PolicySuggestion {
	ectx := s.builder.Build(ctx, mac, "", 0)
	return engine.SuggestPolicies(ectx)
}

// ApplyAll runs one full enforcement pass over every known device and
// returns the number of directives issued. A pass started while
// another is planning supersedes it.
func (s *EnforcementService) ApplyAll(ctx context.Context) (int, error) {
	planCtx, done := s.supersede(ctx)
	defer done()

	plan, decisions, err := s.plan(planCtx)
	if err != nil {
		return 0, err
	}

	// Audit outside the fan-out so a slow audit store cannot stretch
	// the evaluation window.
	for _, decision := range decisions {
		if err := s.audit.LogDecision(planCtx, decision); err != nil {
			logger.Warn("Failed to audit decision",
				zap.String("mac", decision.Context.SourceMAC), zap.Error(err))
		}
	}

	// A pass superseded after planning holds a stale plan; it must not
	// race the successor into the reconciler.
	if err := planCtx.Err(); err != nil {
		return 0, err
	}

	// Superseding cancels planning only; directives in flight finish
	// against the plan they were computed from.
	applyCtx := context.WithoutCancel(ctx)
	applied, err := s.reconciler.Apply(applyCtx, plan)
	if err != nil {
		return applied, err
	}

	logger.Info("Enforcement pass complete",
		zap.Int("devices", len(decisions)),
		zap.Int("directives", applied))
	return applied, nil
}

// plan evaluates every device against one frozen snapshot.
func (s *EnforcementService) plan(ctx context.Context) (enforce.Plan, []model.Decision, error) {
	macs, err := s.devices.ListMACs(ctx)
	if err != nil {
		return nil, nil, err
	}
	snapshot := s.policies.Snapshot()

	var mu sync.Mutex
	plan := make(enforce.Plan, len(macs))
	decisions := make([]model.Decision, 0, len(macs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, mac := range macs {
		mac := mac
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			ectx := s.builder.Build(gctx, mac, "", 0)
			decision := s.evaluator.Evaluate(ectx, snapshot)

			mu.Lock()
			plan[mac] = decision.Action
			decisions = append(decisions, decision)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return plan, decisions, nil
}

// State exposes the reconciler's per-device records.
func (s *EnforcementService) State() map[string]enforce.DeviceState {
	return s.reconciler.State()
}

// RunLoop reconciles on a fixed interval until the context ends.
func (s *EnforcementService) RunLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ApplyAll(ctx); err != nil {
				logger.Error("Scheduled enforcement pass failed", zap.Error(err))
			}
		}
	}
}

// supersede cancels any pass still planning and registers this one.
// The returned done func releases the registration without disturbing
// a successor that may have superseded us in the meantime.
func (s *EnforcementService) supersede(ctx context.Context) (context.Context, func()) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	if s.cancelPass != nil {
		s.cancelPass()
	}
	planCtx, cancel := context.WithCancel(ctx)
	s.cancelPass = cancel
	s.passGen++
	gen := s.passGen

	return planCtx, func() {
		s.passMu.Lock()
		defer s.passMu.Unlock()
		cancel()
		if s.passGen == gen {
			s.cancelPass = nil
		}
	}
}
