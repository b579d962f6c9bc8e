// api/service/policy_service.go
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warden-net/warden/api/db"
	apperrors "github.com/warden-net/warden/api/errors"
	logger "github.com/warden-net/warden/api/logging"
	"github.com/warden-net/warden/api/model"
	"github.com/warden-net/warden/api/pdp/engine"
	"github.com/warden-net/warden/api/util"
)

// IPolicyService handles business logic for policy operations
type IPolicyService interface {
	CreatePolicy(ctx context.Context, policy model.Policy) (*model.Policy, []model.Conflict, error)
	UpdatePolicy(ctx context.Context, policy model.Policy) (*model.Policy, []model.Conflict, error)
	DeletePolicy(ctx context.Context, policyID string) error
	GetPolicy(ctx context.Context, policyID string) (*model.Policy, error)
	ListPolicies(ctx context.Context, enabledOnly bool) ([]*model.Policy, error)
	SetEnabled(ctx context.Context, policyID string, enabled bool) error
	Snapshot() []*model.Policy
	Conflicts() []model.Conflict
	Templates() []model.PolicyTemplate
}

// PolicyStore is the persistence boundary for policies. *dao.PolicyDAO
// satisfies it.
type PolicyStore interface {
	CreatePolicy(ctx context.Context, policy model.Policy) (string, error)
	UpdatePolicy(ctx context.Context, policy model.Policy) (*model.Policy, error)
	DeletePolicy(ctx context.Context, policyID string) error
	GetPolicy(ctx context.Context, policyID string) (*model.Policy, error)
	ListPolicies(ctx context.Context) ([]*model.Policy, error)
	SetEnabled(ctx context.Context, policyID string, enabled bool) error
}

// PolicyService keeps the authoritative policy set in the store and an
// ordered in-memory snapshot for evaluation. The snapshot swaps
// atomically under the mutex: an evaluation pass holds one immutable
// slice for its whole run, so a mid-pass write never splits a pass
// between two repository states.
type PolicyService struct {
	store    PolicyStore
	eventBus *util.EventBus
	cache    bool

	mu       sync.RWMutex
	snapshot []*model.Policy
}

// NewPolicyService creates a new instance of PolicyService
func NewPolicyService(ctx context.Context, store PolicyStore, eventBus *util.EventBus) (*PolicyService, error) {
	service := &PolicyService{
		store:    store,
		eventBus: eventBus,
		cache:    db.RedisClient != nil,
	}
	if err := service.refresh(ctx); err != nil {
		return nil, err
	}
	return service, nil
}

// refresh rebuilds the ordered snapshot from the store. The new slice
// replaces the old one wholesale; readers holding the old slice keep
// a consistent view.
func (s *PolicyService) refresh(ctx context.Context) error {
	policies, err := s.store.ListPolicies(ctx)
	if err != nil {
		return err
	}
	model.SortPolicies(policies)

	s.mu.Lock()
	s.snapshot = policies
	s.mu.Unlock()
	return nil
}

// Snapshot returns the current ordered policy set. Callers must treat
// the returned slice as read-only.
func (s *PolicyService) Snapshot() []*model.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// CreatePolicy validates and persists a new policy, returning it with
// any advisory conflicts against the existing set. Conflicts never
// block the save.
func (s *PolicyService) CreatePolicy(ctx context.Context, policy model.Policy) (*model.Policy, []model.Conflict, error) {
	if err := policy.Validate(); err != nil {
		return nil, nil, apperrors.NewValidationError("policy", "%s", err)
	}

	if policy.ID == "" {
		policy.ID = uuid.New().String()
	}
	now := time.Now()
	policy.CreatedAt = now
	policy.UpdatedAt = now

	if _, err := s.store.CreatePolicy(ctx, policy); err != nil {
		return nil, nil, err
	}
	if err := s.refresh(ctx); err != nil {
		return nil, nil, err
	}

	if s.cache {
		if err := db.CachePolicy(ctx, &policy); err != nil {
			logger.Warn("Failed to cache policy", zap.Error(err), zap.String("policyID", policy.ID))
		}
	}

	s.eventBus.Publish(ctx, "policy.created", policy)
	logger.Info("Policy created",
		zap.String("policyID", policy.ID),
		zap.String("name", policy.Name),
		zap.Int("priority", policy.Priority))

	return &policy, s.conflictsFor(policy.ID), nil
}

// UpdatePolicy validates and persists changes to an existing policy.
func (s *PolicyService) UpdatePolicy(ctx context.Context, policy model.Policy) (*model.Policy, []model.Conflict, error) {
	if err := policy.Validate(); err != nil {
		return nil, nil, apperrors.NewValidationError("policy", "%s", err)
	}

	policy.UpdatedAt = time.Now()
	updated, err := s.store.UpdatePolicy(ctx, policy)
	if err != nil {
		return nil, nil, err
	}
	if err := s.refresh(ctx); err != nil {
		return nil, nil, err
	}

	if s.cache {
		if err := db.CachePolicy(ctx, updated); err != nil {
			logger.Warn("Failed to cache policy", zap.Error(err), zap.String("policyID", updated.ID))
		}
	}

	s.eventBus.Publish(ctx, "policy.updated", *updated)
	logger.Info("Policy updated", zap.String("policyID", updated.ID))

	return updated, s.conflictsFor(updated.ID), nil
}

// DeletePolicy removes a policy from the repository.
func (s *PolicyService) DeletePolicy(ctx context.Context, policyID string) error {
	if err := s.store.DeletePolicy(ctx, policyID); err != nil {
		return err
	}
	if err := s.refresh(ctx); err != nil {
		return err
	}

	if s.cache {
		if err := db.DeleteCachedPolicy(ctx, policyID); err != nil {
			logger.Warn("Failed to evict cached policy", zap.Error(err), zap.String("policyID", policyID))
		}
	}

	s.eventBus.Publish(ctx, "policy.deleted", policyID)
	logger.Info("Policy deleted", zap.String("policyID", policyID))
	return nil
}

// GetPolicy fetches one policy, preferring the cache.
func (s *PolicyService) GetPolicy(ctx context.Context, policyID string) (*model.Policy, error) {
	if s.cache {
		if cached, err := db.GetCachedPolicy(ctx, policyID); err == nil && cached != nil {
			return cached, nil
		}
	}

	policy, err := s.store.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}

	if s.cache {
		if err := db.CachePolicy(ctx, policy); err != nil {
			logger.Warn("Failed to cache policy", zap.Error(err), zap.String("policyID", policyID))
		}
	}
	return policy, nil
}

// ListPolicies returns the ordered policy set, optionally filtered to
// enabled policies.
func (s *PolicyService) ListPolicies(_ context.Context, enabledOnly bool) ([]*model.Policy, error) {
	snapshot := s.Snapshot()
	if !enabledOnly {
		return snapshot, nil
	}
	enabled := make([]*model.Policy, 0, len(snapshot))
	for _, p := range snapshot {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled, nil
}

// SetEnabled toggles a policy without touching the rest of it.
func (s *PolicyService) SetEnabled(ctx context.Context, policyID string, enabled bool) error {
	if err := s.store.SetEnabled(ctx, policyID, enabled); err != nil {
		return err
	}
	if err := s.refresh(ctx); err != nil {
		return err
	}

	if s.cache {
		if err := db.DeleteCachedPolicy(ctx, policyID); err != nil {
			logger.Warn("Failed to evict cached policy", zap.Error(err), zap.String("policyID", policyID))
		}
	}

	s.eventBus.Publish(ctx, "policy.updated", policyID)
	return nil
}

// Conflicts reports every advisory conflict in the current set.
func (s *PolicyService) Conflicts() []model.Conflict {
	return engine.FindConflicts(s.Snapshot())
}

// conflictsFor filters the full conflict report to one policy.
func (s *PolicyService) conflictsFor(policyID string) []model.Conflict {
	var involved []model.Conflict
	for _, c := range s.Conflicts() {
		if c.PolicyA == policyID || c.PolicyB == policyID {
			involved = append(involved, c)
		}
	}
	return involved
}

// Templates returns the canned policy starting points.
func (s *PolicyService) Templates() []model.PolicyTemplate {
	return model.PolicyTemplates
}
