// api/pdp/engine/suggest.go
package engine

import (
	"fmt"

	"github.com/warden-net/warden/api/model"
)

// SuggestPolicies derives recommended policies for one device from its
// evaluation context. Suggested policies ship disabled and scoped to
// the device's MAC; the operator reviews and creates them explicitly.
func SuggestPolicies(ectx model.EvaluationContext) []model.PolicySuggestion {
	var suggestions []model.PolicySuggestion

	if ectx.TrustScore < 30 {
		suggestions = append(suggestions, model.PolicySuggestion{
			Policy: model.Policy{
				Name:        fmt.Sprintf("Quarantine Low Trust - %s", ectx.SourceMAC),
				Description: fmt.Sprintf("Device trust score is %d (%s)", ectx.TrustScore, ectx.TrustLevel),
				Source:      ectx.SourceMAC,
				Destination: "any",
				Conditions: []model.Condition{
					{Type: model.CondTrustScore, Operator: model.OpLte, Value: 30},
				},
				Action:   model.ActionQuarantine,
				Priority: 90,
			},
			Confidence: 0.92,
			Reason:     fmt.Sprintf("trust score %d is below the low-trust threshold", ectx.TrustScore),
		})
	}

	if ectx.MLRiskLevel == "critical" {
		suggestions = append(suggestions, model.PolicySuggestion{
			Policy: model.Policy{
				Name:        fmt.Sprintf("Block Critical Risk - %s", ectx.SourceMAC),
				Description: "Anomaly detector classified the device as critical risk",
				Source:      ectx.SourceMAC,
				Destination: "any",
				Conditions: []model.Condition{
					{Type: model.CondMLRiskLevel, Operator: model.OpEq, Value: "critical"},
				},
				Action:   model.ActionBlock,
				Priority: 85,
			},
			Confidence: 0.85,
			Reason:     "anomaly detector reports critical risk",
		})
	}

	if ectx.RecentAlerts >= 3 {
		suggestions = append(suggestions, model.PolicySuggestion{
			Policy: model.Policy{
				Name:        fmt.Sprintf("Rate Limit Noisy Device - %s", ectx.SourceMAC),
				Description: fmt.Sprintf("Device raised %d alerts in the recent window", ectx.RecentAlerts),
				Source:      ectx.SourceMAC,
				Destination: "any",
				Conditions: []model.Condition{
					{Type: model.CondAlertCount, Operator: model.OpGte, Value: 3},
				},
				Action:   model.ActionRateLimit,
				Priority: 70,
			},
			Confidence: 0.70,
			Reason:     fmt.Sprintf("%d recent security alerts", ectx.RecentAlerts),
		})
	}

	return suggestions
}
