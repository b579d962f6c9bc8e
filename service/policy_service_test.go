// api/service/policy_service_test.go
package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/warden-net/warden/api/errors"
	"github.com/warden-net/warden/api/model"
	"github.com/warden-net/warden/api/util"
)

type fakePolicyStore struct {
	policies map[string]*model.Policy
}

func newFakePolicyStore() *fakePolicyStore {
	return &fakePolicyStore{policies: make(map[string]*model.Policy)}
}

func (f *fakePolicyStore) CreatePolicy(_ context.Context, policy model.Policy) (string, error) {
	if _, exists := f.policies[policy.ID]; exists {
		return "", apperrors.ErrPolicyConflict
	}
	f.policies[policy.ID] = &policy
	return policy.ID, nil
}

func (f *fakePolicyStore) UpdatePolicy(_ context.Context, policy model.Policy) (*model.Policy, error) {
	existing, ok := f.policies[policy.ID]
	if !ok {
		return nil, apperrors.ErrPolicyNotFound
	}
	policy.CreatedAt = existing.CreatedAt
	f.policies[policy.ID] = &policy
	return &policy, nil
}

func (f *fakePolicyStore) DeletePolicy(_ context.Context, policyID string) error {
	if _, ok := f.policies[policyID]; !ok {
		return apperrors.ErrPolicyNotFound
	}
	delete(f.policies, policyID)
	return nil
}

func (f *fakePolicyStore) GetPolicy(_ context.Context, policyID string) (*model.Policy, error) {
	policy, ok := f.policies[policyID]
	if !ok {
		return nil, apperrors.ErrPolicyNotFound
	}
	return policy, nil
}

func (f *fakePolicyStore) ListPolicies(_ context.Context) ([]*model.Policy, error) {
	out := make([]*model.Policy, 0, len(f.policies))
	for _, p := range f.policies {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePolicyStore) SetEnabled(_ context.Context, policyID string, enabled bool) error {
	policy, ok := f.policies[policyID]
	if !ok {
		return apperrors.ErrPolicyNotFound
	}
	policy.Enabled = enabled
	return nil
}

func newTestPolicyService(t *testing.T) (*PolicyService, *fakePolicyStore) {
	t.Helper()
	store := newFakePolicyStore()
	svc, err := NewPolicyService(context.Background(), store, util.NewEventBus())
	require.NoError(t, err)
	return svc, store
}

func validPolicy(name string, priority int, action model.Action) model.Policy {
	return model.Policy{
		Name:     name,
		Source:   "any",
		Action:   action,
		Priority: priority,
		Enabled:  true,
	}
}

func TestCreatePolicyRejectsInvalidData(t *testing.T) {
	svc, store := newTestPolicyService(t)

	_, _, err := svc.CreatePolicy(context.Background(), model.Policy{
		Name: "bad", Source: "any", Action: "obliterate", Priority: 50,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidPolicyData))
	assert.Empty(t, store.policies, "invalid policy must not reach the store")
}

func TestCreatePolicyAssignsIDAndRefreshesSnapshot(t *testing.T) {
	svc, _ := newTestPolicyService(t)

	created, _, err := svc.CreatePolicy(context.Background(), validPolicy("allow-all", 10, model.ActionAllow))
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	require.Len(t, svc.Snapshot(), 1)
	assert.Equal(t, created.ID, svc.Snapshot()[0].ID)
}

func TestSnapshotStaysPriorityOrdered(t *testing.T) {
	svc, _ := newTestPolicyService(t)
	ctx := context.Background()

	_, _, err := svc.CreatePolicy(ctx, validPolicy("low", 10, model.ActionAllow))
	require.NoError(t, err)
	_, _, err = svc.CreatePolicy(ctx, validPolicy("high", 90, model.ActionAllow))
	require.NoError(t, err)
	_, _, err = svc.CreatePolicy(ctx, validPolicy("mid", 50, model.ActionAllow))
	require.NoError(t, err)

	snapshot := svc.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "high", snapshot[0].Name)
	assert.Equal(t, "mid", snapshot[1].Name)
	assert.Equal(t, "low", snapshot[2].Name)
}

func TestConflictingPolicySavesWithAdvisory(t *testing.T) {
	svc, store := newTestPolicyService(t)
	ctx := context.Background()

	_, _, err := svc.CreatePolicy(ctx, validPolicy("allow-all", 50, model.ActionAllow))
	require.NoError(t, err)

	created, conflicts, err := svc.CreatePolicy(ctx, validPolicy("block-all", 50, model.ActionBlock))
	require.NoError(t, err, "conflicts are advisory, the save must succeed")

	assert.Len(t, store.policies, 2)
	require.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictHigh, conflicts[0].Severity)
	assert.Contains(t, []string{conflicts[0].PolicyA, conflicts[0].PolicyB}, created.ID)
}

func TestListPoliciesEnabledOnly(t *testing.T) {
	svc, _ := newTestPolicyService(t)
	ctx := context.Background()

	created, _, err := svc.CreatePolicy(ctx, validPolicy("on", 50, model.ActionBlock))
	require.NoError(t, err)
	other, _, err := svc.CreatePolicy(ctx, validPolicy("off", 40, model.ActionAllow))
	require.NoError(t, err)

	require.NoError(t, svc.SetEnabled(ctx, other.ID, false))

	enabled, err := svc.ListPolicies(ctx, true)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, created.ID, enabled[0].ID)

	all, err := svc.ListPolicies(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeletePolicyRemovesFromSnapshot(t *testing.T) {
	svc, _ := newTestPolicyService(t)
	ctx := context.Background()

	created, _, err := svc.CreatePolicy(ctx, validPolicy("doomed", 50, model.ActionBlock))
	require.NoError(t, err)

	require.NoError(t, svc.DeletePolicy(ctx, created.ID))

	assert.Empty(t, svc.Snapshot())
	assert.ErrorIs(t, svc.DeletePolicy(ctx, created.ID), apperrors.ErrPolicyNotFound)
}
