// api/pdp/engine/conflicts_test.go
package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-net/warden/api/model"
)

func TestOverlappingPoliciesWithDifferentActionsConflict(t *testing.T) {
	block := &model.Policy{
		ID: "p1", Name: "block-iot", Source: "category:iot", Destination: "any",
		Action: model.ActionBlock, Priority: 50, Enabled: true,
	}
	allow := &model.Policy{
		ID: "p2", Name: "allow-everything", Source: "any", Destination: "any",
		Action: model.ActionAllow, Priority: 40, Enabled: true,
	}

	conflicts := FindConflicts([]*model.Policy{block, allow})

	require.Len(t, conflicts, 1)
	assert.Equal(t, "p1", conflicts[0].PolicyA)
	assert.Equal(t, "p2", conflicts[0].PolicyB)
	assert.Equal(t, model.ConflictMedium, conflicts[0].Severity)
}

func TestEqualPriorityConflictIsHighSeverity(t *testing.T) {
	a := &model.Policy{
		ID: "p1", Name: "a", Source: "any", Action: model.ActionBlock, Priority: 50, Enabled: true,
	}
	b := &model.Policy{
		ID: "p2", Name: "b", Source: "any", Action: model.ActionAllow, Priority: 50, Enabled: true,
	}

	conflicts := FindConflicts([]*model.Policy{a, b})

	require.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictHigh, conflicts[0].Severity)
}

func TestSameActionNeverConflicts(t *testing.T) {
	a := &model.Policy{
		ID: "p1", Name: "a", Source: "any", Action: model.ActionBlock, Priority: 50, Enabled: true,
	}
	b := &model.Policy{
		ID: "p2", Name: "b", Source: "any", Action: model.ActionBlock, Priority: 50, Enabled: true,
	}

	assert.Empty(t, FindConflicts([]*model.Policy{a, b}))
}

func TestDisabledPoliciesExcludedFromDetection(t *testing.T) {
	a := &model.Policy{
		ID: "p1", Name: "a", Source: "any", Action: model.ActionBlock, Priority: 50, Enabled: true,
	}
	b := &model.Policy{
		ID: "p2", Name: "b", Source: "any", Action: model.ActionAllow, Priority: 50, Enabled: false,
	}

	assert.Empty(t, FindConflicts([]*model.Policy{a, b}))
}

func TestDisjointSourcesDoNotConflict(t *testing.T) {
	cameras := &model.Policy{
		ID: "p1", Name: "cameras", Source: "category:camera",
		Action: model.ActionBlock, Priority: 50, Enabled: true,
	}
	speakers := &model.Policy{
		ID: "p2", Name: "speakers", Source: "category:speaker",
		Action: model.ActionAllow, Priority: 50, Enabled: true,
	}

	assert.Empty(t, FindConflicts([]*model.Policy{cameras, speakers}))
}

func TestCrossKindSourcesStillConflict(t *testing.T) {
	// A specific MAC may belong to the iot category, so the pair can
	// govern the same device.
	mac := &model.Policy{
		ID: "p1", Name: "one-device", Source: "aa:bb:cc:dd:ee:ff",
		Action: model.ActionBlock, Priority: 60, Enabled: true,
	}
	category := &model.Policy{
		ID: "p2", Name: "iot-wide", Source: "category:iot",
		Action: model.ActionAllow, Priority: 50, Enabled: true,
	}

	assert.Len(t, FindConflicts([]*model.Policy{mac, category}), 1)
}

func TestDisjointDestinationsDoNotConflict(t *testing.T) {
	lan := &model.Policy{
		ID: "p1", Name: "lan", Source: "any", Destination: "192.168.0.0/16",
		Action: model.ActionBlock, Priority: 50, Enabled: true,
	}
	dns := &model.Policy{
		ID: "p2", Name: "dns", Source: "any", Destination: "8.8.8.8",
		Action: model.ActionAllow, Priority: 50, Enabled: true,
	}

	assert.Empty(t, FindConflicts([]*model.Policy{lan, dns}))
}

func TestExclusiveTrustRangesDoNotConflict(t *testing.T) {
	lowTrust := &model.Policy{
		ID: "p1", Name: "quarantine-low", Source: "any",
		Action: model.ActionQuarantine, Priority: 90, Enabled: true,
		Conditions: []model.Condition{
			{Type: model.CondTrustScore, Operator: model.OpLt, Value: 30},
		},
	}
	highTrust := &model.Policy{
		ID: "p2", Name: "allow-high", Source: "any",
		Action: model.ActionAllow, Priority: 80, Enabled: true,
		Conditions: []model.Condition{
			{Type: model.CondTrustScore, Operator: model.OpGte, Value: 70},
		},
	}

	assert.Empty(t, FindConflicts([]*model.Policy{lowTrust, highTrust}))
}

func TestAdjacentIntegerBoundsAreExclusive(t *testing.T) {
	below := &model.Policy{
		ID: "p1", Name: "below-50", Source: "any",
		Action: model.ActionBlock, Priority: 50, Enabled: true,
		Conditions: []model.Condition{
			{Type: model.CondTrustScore, Operator: model.OpLt, Value: 50},
		},
	}
	atLeast := &model.Policy{
		ID: "p2", Name: "at-least-50", Source: "any",
		Action: model.ActionAllow, Priority: 50, Enabled: true,
		Conditions: []model.Condition{
			{Type: model.CondTrustScore, Operator: model.OpGte, Value: 50},
		},
	}

	assert.Empty(t, FindConflicts([]*model.Policy{below, atLeast}))
}

func TestOverlappingTrustRangesConflict(t *testing.T) {
	a := &model.Policy{
		ID: "p1", Name: "a", Source: "any",
		Action: model.ActionBlock, Priority: 50, Enabled: true,
		Conditions: []model.Condition{
			{Type: model.CondTrustScore, Operator: model.OpBetween, Value: []int{20, 60}},
		},
	}
	b := &model.Policy{
		ID: "p2", Name: "b", Source: "any",
		Action: model.ActionAllow, Priority: 40, Enabled: true,
		Conditions: []model.Condition{
			{Type: model.CondTrustScore, Operator: model.OpBetween, Value: []int{50, 90}},
		},
	}

	assert.Len(t, FindConflicts([]*model.Policy{a, b}), 1)
}

func TestDisjointEnumSetsDoNotConflict(t *testing.T) {
	weekend := &model.Policy{
		ID: "p1", Name: "weekend", Source: "any",
		Action: model.ActionAllow, Priority: 50, Enabled: true,
		Conditions: []model.Condition{
			{Type: model.CondDayOfWeek, Operator: model.OpIn, Value: []string{"Saturday", "Sunday"}},
		},
	}
	monday := &model.Policy{
		ID: "p2", Name: "monday", Source: "any",
		Action: model.ActionBlock, Priority: 50, Enabled: true,
		Conditions: []model.Condition{
			{Type: model.CondDayOfWeek, Operator: model.OpEq, Value: "Monday"},
		},
	}

	assert.Empty(t, FindConflicts([]*model.Policy{weekend, monday}))
}

func TestDisjointTimeWindowsDoNotConflict(t *testing.T) {
	night := &model.Policy{
		ID: "p1", Name: "night", Source: "any",
		Action: model.ActionBlock, Priority: 50, Enabled: true,
		Conditions: []model.Condition{
			{Type: model.CondTimeRange, Operator: model.OpBetween, Value: []string{"22:00", "06:00"}},
		},
	}
	workday := &model.Policy{
		ID: "p2", Name: "workday", Source: "any",
		Action: model.ActionAllow, Priority: 50, Enabled: true,
		Conditions: []model.Condition{
			{Type: model.CondTimeRange, Operator: model.OpBetween, Value: []string{"09:00", "17:00"}},
		},
	}

	assert.Empty(t, FindConflicts([]*model.Policy{night, workday}))
}

func TestWrappingTimeWindowOverlapDetected(t *testing.T) {
	night := &model.Policy{
		ID: "p1", Name: "night", Source: "any",
		Action: model.ActionBlock, Priority: 50, Enabled: true,
		Conditions: []model.Condition{
			{Type: model.CondTimeRange, Operator: model.OpBetween, Value: []string{"22:00", "06:00"}},
		},
	}
	earlyBird := &model.Policy{
		ID: "p2", Name: "early", Source: "any",
		Action: model.ActionAllow, Priority: 40, Enabled: true,
		Conditions: []model.Condition{
			{Type: model.CondTimeRange, Operator: model.OpBetween, Value: []string{"05:00", "08:00"}},
		},
	}

	assert.Len(t, FindConflicts([]*model.Policy{night, earlyBird}), 1)
}

func TestConditionsOfDifferentTypesNeverProveExclusivity(t *testing.T) {
	a := &model.Policy{
		ID: "p1", Name: "a", Source: "any",
		Action: model.ActionBlock, Priority: 50, Enabled: true,
		Conditions: []model.Condition{
			{Type: model.CondTrustScore, Operator: model.OpLt, Value: 30},
		},
	}
	b := &model.Policy{
		ID: "p2", Name: "b", Source: "any",
		Action: model.ActionAllow, Priority: 40, Enabled: true,
		Conditions: []model.Condition{
			{Type: model.CondMLRiskLevel, Operator: model.OpEq, Value: "low"},
		},
	}

	assert.Len(t, FindConflicts([]*model.Policy{a, b}), 1)
}
