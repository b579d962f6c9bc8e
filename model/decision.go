// api/model/decision.go
package model

import "time"

// Decision is the outcome of one policy evaluation: the matched
// policy's id and action, or the configured default when nothing
// matched. Carries the context it was evaluated against so every
// decision is explainable after the fact.
type Decision struct {
	PolicyID   string            `json:"policy_id,omitempty"`
	PolicyName string            `json:"policy_name,omitempty"`
	Action     Action            `json:"action"`
	Default    bool              `json:"default"`
	Reason     string            `json:"reason"`
	Context    EvaluationContext `json:"context"`
	DecidedAt  time.Time         `json:"decided_at"`
}
