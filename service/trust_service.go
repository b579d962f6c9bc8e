// api/service/trust_service.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/warden-net/warden/api/db"
	logger "github.com/warden-net/warden/api/logging"
	"github.com/warden-net/warden/api/model"
	"github.com/warden-net/warden/api/telemetry"
	"github.com/warden-net/warden/api/trust"
	"github.com/warden-net/warden/api/util"
)

// ITrustService exposes trust posture to the management surface.
type ITrustService interface {
	GetScore(ctx context.Context, mac string) model.TrustScore
	ListScores(ctx context.Context) (map[string]model.TrustScore, error)
	Summary(ctx context.Context) (model.TrustSummary, error)
	Override(ctx context.Context, mac string, score int, reason string) (model.TrustScore, error)
	Recalculate(ctx context.Context) (map[string]model.TrustScore, error)
}

// TrustService fronts the scorer with a read cache. Scores change only
// when factors do, so cached reads stay coherent as long as factor
// writes evict.
type TrustService struct {
	scorer   *trust.Scorer
	eventBus *util.EventBus
	cache    bool
}

func NewTrustService(scorer *trust.Scorer, eventBus *util.EventBus) *TrustService {
	service := &TrustService{
		scorer:   scorer,
		eventBus: eventBus,
		cache:    db.RedisClient != nil,
	}

	// Factor writes land through the event feed; evict the stale
	// cached score whenever one does.
	eventBus.Subscribe("trust.changed", service.handleTrustChanged)

	return service
}

func (s *TrustService) handleTrustChanged(ctx context.Context, event util.Event) error {
	score, ok := event.Payload.(model.TrustScore)
	if !ok {
		return nil
	}
	if s.cache {
		if err := db.DeleteCachedTrustScore(ctx, score.DeviceMAC); err != nil {
			logger.Warn("Failed to evict cached trust score",
				zap.String("mac", score.DeviceMAC), zap.Error(err))
		}
	}
	return nil
}

// GetScore returns the current score for a device, never failing:
// cache misses and store errors both resolve through the scorer's
// neutral fallback.
func (s *TrustService) GetScore(ctx context.Context, mac string) model.TrustScore {
	if s.cache {
		if cached, err := db.GetCachedTrustScore(ctx, mac); err == nil && cached != nil {
			return *cached
		}
	}

	score := s.scorer.GetScore(ctx, mac)

	if s.cache {
		if err := db.CacheTrustScore(ctx, &score); err != nil {
			logger.Warn("Failed to cache trust score", zap.String("mac", mac), zap.Error(err))
		}
	}
	return score
}

// ListScores returns the score of every known device.
func (s *TrustService) ListScores(ctx context.Context) (map[string]model.TrustScore, error) {
	return s.scorer.RecalculateAll(ctx)
}

// Summary aggregates the fleet's trust posture.
func (s *TrustService) Summary(ctx context.Context) (model.TrustSummary, error) {
	return s.scorer.Summary(ctx)
}

// Override pins a device's score to an operator-set value and evicts
// the cached score.
func (s *TrustService) Override(ctx context.Context, mac string, score int, reason string) (model.TrustScore, error) {
	updated, err := s.scorer.Override(ctx, mac, score, reason)
	if err != nil {
		return model.TrustScore{}, err
	}

	if s.cache {
		if err := db.DeleteCachedTrustScore(ctx, mac); err != nil {
			logger.Warn("Failed to evict cached trust score", zap.String("mac", mac), zap.Error(err))
		}
	}
	s.eventBus.Publish(ctx, "trust.changed", updated)
	return updated, nil
}

// RunCleanStreakLoop periodically rewards devices whose factor history
// stayed free of negative signals for the whole window. Runs until the
// context is cancelled.
func (s *TrustService) RunCleanStreakLoop(ctx context.Context, interval, window time.Duration, impact int) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rewarded, err := s.scorer.RewardCleanStreaks(ctx, window, impact)
			if err != nil {
				logger.Warn("Clean-streak sweep failed", zap.Error(err))
				continue
			}
			if s.cache {
				for _, mac := range rewarded {
					if err := db.DeleteCachedTrustScore(ctx, mac); err != nil {
						logger.Warn("Failed to evict cached trust score",
							zap.String("mac", mac), zap.Error(err))
					}
				}
			}
		}
	}
}

// Recalculate forces a full recompute across the fleet.
func (s *TrustService) Recalculate(ctx context.Context) (map[string]model.TrustScore, error) {
	scores, err := s.scorer.RecalculateAll(ctx)
	if err != nil {
		return nil, err
	}
	telemetry.TrustRecalculations.Inc()

	if s.cache {
		for mac := range scores {
			if err := db.DeleteCachedTrustScore(ctx, mac); err != nil {
				logger.Warn("Failed to evict cached trust score", zap.String("mac", mac), zap.Error(err))
			}
		}
	}
	return scores, nil
}
