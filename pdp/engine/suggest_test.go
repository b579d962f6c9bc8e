// api/pdp/engine/suggest_test.go
package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-net/warden/api/model"
)

func TestSuggestQuarantineForLowTrust(t *testing.T) {
	ectx := model.EvaluationContext{
		SourceMAC:  "aa:bb:cc:dd:ee:ff",
		TrustScore: 20,
		TrustLevel: model.LevelUntrusted,
	}

	suggestions := SuggestPolicies(ectx)

	require.Len(t, suggestions, 1)
	s := suggestions[0]
	assert.Equal(t, model.ActionQuarantine, s.Policy.Action)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", s.Policy.Source)
	assert.False(t, s.Policy.Enabled, "suggestions must ship disabled")
	assert.Greater(t, s.Confidence, 0.9)
	require.NoError(t, s.Policy.Validate())
}

func TestSuggestNothingForHealthyDevice(t *testing.T) {
	ectx := model.EvaluationContext{
		SourceMAC:  "aa:bb:cc:dd:ee:ff",
		TrustScore: 80,
		TrustLevel: model.LevelTrusted,
	}

	assert.Empty(t, SuggestPolicies(ectx))
}

func TestSuggestBlockForCriticalRisk(t *testing.T) {
	ectx := model.EvaluationContext{
		SourceMAC:   "aa:bb:cc:dd:ee:ff",
		TrustScore:  60,
		MLRiskLevel: "critical",
	}

	suggestions := SuggestPolicies(ectx)

	require.Len(t, suggestions, 1)
	assert.Equal(t, model.ActionBlock, suggestions[0].Policy.Action)
	require.NoError(t, suggestions[0].Policy.Validate())
}

func TestSuggestRateLimitForNoisyDevice(t *testing.T) {
	ectx := model.EvaluationContext{
		SourceMAC:    "aa:bb:cc:dd:ee:ff",
		TrustScore:   60,
		RecentAlerts: 5,
	}

	suggestions := SuggestPolicies(ectx)

	require.Len(t, suggestions, 1)
	assert.Equal(t, model.ActionRateLimit, suggestions[0].Policy.Action)
	require.NoError(t, suggestions[0].Policy.Validate())
}

func TestSuggestionsCompound(t *testing.T) {
	ectx := model.EvaluationContext{
		SourceMAC:    "aa:bb:cc:dd:ee:ff",
		TrustScore:   10,
		TrustLevel:   model.LevelUntrusted,
		MLRiskLevel:  "critical",
		RecentAlerts: 4,
	}

	suggestions := SuggestPolicies(ectx)

	require.Len(t, suggestions, 3)
	actions := make([]model.Action, 0, 3)
	for _, s := range suggestions {
		actions = append(actions, s.Policy.Action)
	}
	assert.ElementsMatch(t,
		[]model.Action{model.ActionQuarantine, model.ActionBlock, model.ActionRateLimit},
		actions)
}
