// api/model/trust.go
package model

import "time"

// TrustLevel is the discrete classification of a trust score.
type TrustLevel string

const (
	LevelHighlyTrusted TrustLevel = "highly_trusted"
	LevelTrusted       TrustLevel = "trusted"
	LevelNeutral       TrustLevel = "neutral"
	LevelLowTrust      TrustLevel = "low_trust"
	LevelUntrusted     TrustLevel = "untrusted"
)

// TrustBaseline is the score of a device with no factors at all.
const TrustBaseline = 50

// TrustFactor is a single named, timestamped contributor to a trust
// score. Factors are appended, never mutated; expired factors are
// excluded from the sum but retained for audit.
type TrustFactor struct {
	Name      string     `json:"name"`
	Impact    int        `json:"impact"`
	Reason    string     `json:"reason,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the factor is past its TTL at the given time.
func (f TrustFactor) Expired(now time.Time) bool {
	return f.ExpiresAt != nil && !f.ExpiresAt.After(now)
}

// TrustScore is the derived posture of a device in [0,100].
type TrustScore struct {
	DeviceMAC      string        `json:"device_mac"`
	Score          int           `json:"score"`
	Level          TrustLevel    `json:"level"`
	Factors        []TrustFactor `json:"factors"`
	CalculatedAt   time.Time     `json:"calculated_at"`
	ManualOverride bool          `json:"manual_override"`
	OverrideReason string        `json:"override_reason,omitempty"`
}

// ClampScore bounds a raw factor sum to [0,100].
func ClampScore(raw int) int {
	if raw < 0 {
		return 0
	}
	if raw > 100 {
		return 100
	}
	return raw
}

// LevelForScore classifies a clamped score.
func LevelForScore(score int) TrustLevel {
	switch {
	case score >= 90:
		return LevelHighlyTrusted
	case score >= 70:
		return LevelTrusted
	case score >= 50:
		return LevelNeutral
	case score >= 30:
		return LevelLowTrust
	default:
		return LevelUntrusted
	}
}

// TrustSummary aggregates scores across all known devices.
type TrustSummary struct {
	Total        int                `json:"total"`
	ByLevel      map[TrustLevel]int `json:"by_level"`
	AverageScore float64            `json:"average_score"`
	// Histogram buckets the scores in ten-point ranges, index 0
	// covering [0,10) up to index 9 covering [90,100].
	Histogram [10]int `json:"histogram"`
}
