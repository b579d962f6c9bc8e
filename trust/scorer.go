// api/trust/scorer.go
package trust

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	logger "github.com/warden-net/warden/api/logging"
	"github.com/warden-net/warden/api/model"
)

// FactorStore is the append-only persistence behind the scorer.
// *dao.TrustDAO satisfies it.
type FactorStore interface {
	AppendFactor(ctx context.Context, mac string, factor model.TrustFactor) error
	GetFactors(ctx context.Context, mac string) ([]model.TrustFactor, error)
	ListDeviceMACs(ctx context.Context) ([]string, error)
	SetOverride(ctx context.Context, mac string, score int, reason string) error
	GetOverride(ctx context.Context, mac string) (int, string, bool, error)
}

// Scorer maintains the trust posture of every known device. A score
// is always a pure function of the device's non-expired factor set:
// recomputation is idempotent and order-independent because factors
// are summed, never applied sequentially.
type Scorer struct {
	store FactorStore
	now   func() time.Time
}

func NewScorer(store FactorStore) *Scorer {
	return &Scorer{store: store, now: time.Now}
}

// Compute derives a score from a factor set. Exposed so callers can
// score hypothetical factor sets without touching the store.
func Compute(mac string, factors []model.TrustFactor, now time.Time) model.TrustScore {
	sum := model.TrustBaseline
	active := make([]model.TrustFactor, 0, len(factors))
	for _, f := range factors {
		if f.Expired(now) {
			continue
		}
		sum += f.Impact
		active = append(active, f)
	}

	score := model.ClampScore(sum)
	return model.TrustScore{
		DeviceMAC:    mac,
		Score:        score,
		Level:        model.LevelForScore(score),
		Factors:      active,
		CalculatedAt: now,
	}
}

// AddFactor appends a factor and returns the updated score.
func (s *Scorer) AddFactor(ctx context.Context, mac string, factor model.TrustFactor) (model.TrustScore, error) {
	if factor.CreatedAt.IsZero() {
		factor.CreatedAt = s.now()
	}
	if err := s.store.AppendFactor(ctx, mac, factor); err != nil {
		return model.TrustScore{}, err
	}
	score := s.GetScore(ctx, mac)
	logger.Info("Trust factor applied",
		zap.String("mac", mac),
		zap.String("factor", factor.Name),
		zap.Int("impact", factor.Impact),
		zap.Int("score", score.Score),
		zap.String("level", string(score.Level)))
	return score, nil
}

// GetScore returns the current score for a device. Absence of trust
// data must never block evaluation: unknown devices and store
// failures both resolve to the neutral baseline.
func (s *Scorer) GetScore(ctx context.Context, mac string) model.TrustScore {
	now := s.now()

	if score, reason, ok, err := s.store.GetOverride(ctx, mac); err == nil && ok {
		clamped := model.ClampScore(score)
		return model.TrustScore{
			DeviceMAC:      mac,
			Score:          clamped,
			Level:          model.LevelForScore(clamped),
			CalculatedAt:   now,
			ManualOverride: true,
			OverrideReason: reason,
		}
	}

	factors, err := s.store.GetFactors(ctx, mac)
	if err != nil {
		logger.Warn("Trust store unavailable, using neutral score",
			zap.String("mac", mac), zap.Error(err))
		return neutralScore(mac, now)
	}

	return Compute(mac, factors, now)
}

// Override pins a device's score to an operator-set value.
func (s *Scorer) Override(ctx context.Context, mac string, score int, reason string) (model.TrustScore, error) {
	if err := s.store.SetOverride(ctx, mac, score, reason); err != nil {
		return model.TrustScore{}, err
	}
	logger.Info("Trust score overridden",
		zap.String("mac", mac), zap.Int("score", score), zap.String("reason", reason))
	return s.GetScore(ctx, mac), nil
}

// RecalculateAll forces a full recompute for every known device.
// Used after bulk data changes such as a historical re-import.
func (s *Scorer) RecalculateAll(ctx context.Context) (map[string]model.TrustScore, error) {
	macs, err := s.store.ListDeviceMACs(ctx)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]model.TrustScore, len(macs))
	for _, mac := range macs {
		scores[mac] = s.GetScore(ctx, mac)
	}

	logger.Info("Recalculated all trust scores", zap.Int("devices", len(scores)))
	return scores, nil
}

// RewardCleanStreaks appends the clean-streak bonus to every device
// whose recent factor history is free of negative signals. A device
// already rewarded inside the window is skipped, so repeated sweeps
// never stack the bonus. Returns the MACs that were rewarded.
func (s *Scorer) RewardCleanStreaks(ctx context.Context, window time.Duration, impact int) ([]string, error) {
	if impact == 0 || window <= 0 {
		return nil, nil
	}

	macs, err := s.store.ListDeviceMACs(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cutoff := now.Add(-window)
	expires := now.Add(window)

	var rewarded []string
	for _, mac := range macs {
		factors, err := s.store.GetFactors(ctx, mac)
		if err != nil {
			logger.Warn("Skipping clean-streak check, factors unavailable",
				zap.String("mac", mac), zap.Error(err))
			continue
		}

		clean := true
		for _, f := range factors {
			if !f.CreatedAt.After(cutoff) {
				continue
			}
			if f.Impact < 0 || f.Name == "clean-week" {
				clean = false
				break
			}
		}
		if !clean {
			continue
		}

		if _, err := s.AddFactor(ctx, mac, model.TrustFactor{
			Name:      "clean-week",
			Impact:    impact,
			Reason:    fmt.Sprintf("no negative trust signals for %s", window),
			CreatedAt: now,
			ExpiresAt: &expires,
		}); err != nil {
			logger.Warn("Failed to apply clean-streak bonus",
				zap.String("mac", mac), zap.Error(err))
			continue
		}
		rewarded = append(rewarded, mac)
	}

	if len(rewarded) > 0 {
		logger.Info("Rewarded clean streaks", zap.Int("devices", len(rewarded)))
	}
	return rewarded, nil
}

// Summary aggregates scores across all known devices.
func (s *Scorer) Summary(ctx context.Context) (model.TrustSummary, error) {
	scores, err := s.RecalculateAll(ctx)
	if err != nil {
		return model.TrustSummary{}, err
	}

	summary := model.TrustSummary{
		Total:   len(scores),
		ByLevel: make(map[model.TrustLevel]int),
	}
	total := 0
	for _, score := range scores {
		summary.ByLevel[score.Level]++
		total += score.Score
		bucket := score.Score / 10
		if bucket > 9 {
			bucket = 9
		}
		summary.Histogram[bucket]++
	}
	if len(scores) > 0 {
		summary.AverageScore = float64(total) / float64(len(scores))
	}
	return summary, nil
}

func neutralScore(mac string, now time.Time) model.TrustScore {
	return model.TrustScore{
		DeviceMAC:    mac,
		Score:        model.TrustBaseline,
		Level:        model.LevelNeutral,
		CalculatedAt: now,
	}
}
