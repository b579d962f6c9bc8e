// api/model/conflict.go
package model

// ConflictSeverity grades how likely a conflict is to surprise the
// operator. Equal priorities make the outcome depend on creation
// order, which is the most surprising case.
type ConflictSeverity string

const (
	ConflictHigh   ConflictSeverity = "high"
	ConflictMedium ConflictSeverity = "medium"
)

// Conflict flags two enabled policies that could both match the same
// context with differing actions. Advisory only: policies may be
// saved despite conflicts.
type Conflict struct {
	PolicyA  string           `json:"policy_a"`
	PolicyB  string           `json:"policy_b"`
	Reason   string           `json:"reason"`
	Severity ConflictSeverity `json:"severity"`
}
