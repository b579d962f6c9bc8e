// api/trust/scorer_test.go
package trust

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-net/warden/api/model"
)

type fakeStore struct {
	factors   map[string][]model.TrustFactor
	overrides map[string]struct {
		score  int
		reason string
	}
	failReads bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		factors: make(map[string][]model.TrustFactor),
		overrides: make(map[string]struct {
			score  int
			reason string
		}),
	}
}

func (f *fakeStore) AppendFactor(_ context.Context, mac string, factor model.TrustFactor) error {
	f.factors[mac] = append(f.factors[mac], factor)
	return nil
}

func (f *fakeStore) GetFactors(_ context.Context, mac string) ([]model.TrustFactor, error) {
	if f.failReads {
		return nil, errors.New("store down")
	}
	return f.factors[mac], nil
}

func (f *fakeStore) ListDeviceMACs(_ context.Context) ([]string, error) {
	var macs []string
	for mac := range f.factors {
		macs = append(macs, mac)
	}
	return macs, nil
}

func (f *fakeStore) SetOverride(_ context.Context, mac string, score int, reason string) error {
	f.overrides[mac] = struct {
		score  int
		reason string
	}{score, reason}
	return nil
}

func (f *fakeStore) GetOverride(_ context.Context, mac string) (int, string, bool, error) {
	o, ok := f.overrides[mac]
	return o.score, o.reason, ok, nil
}

const testMAC = "aa:bb:cc:dd:ee:ff"

func TestUnknownDeviceScoresNeutral(t *testing.T) {
	scorer := NewScorer(newFakeStore())

	score := scorer.GetScore(context.Background(), testMAC)

	assert.Equal(t, 50, score.Score)
	assert.Equal(t, model.LevelNeutral, score.Level)
}

func TestStoreFailureScoresNeutral(t *testing.T) {
	store := newFakeStore()
	store.failReads = true
	scorer := NewScorer(store)

	score := scorer.GetScore(context.Background(), testMAC)

	assert.Equal(t, 50, score.Score)
	assert.Equal(t, model.LevelNeutral, score.Level)
}

func TestScoreIsClamped(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	scorer := NewScorer(store)

	_, err := scorer.AddFactor(ctx, testMAC, model.TrustFactor{Name: "threat-storm", Impact: -200})
	require.NoError(t, err)
	assert.Equal(t, 0, scorer.GetScore(ctx, testMAC).Score)

	other := "11:22:33:44:55:66"
	_, err = scorer.AddFactor(ctx, other, model.TrustFactor{Name: "very-clean", Impact: 200})
	require.NoError(t, err)
	assert.Equal(t, 100, scorer.GetScore(ctx, other).Score)
}

func TestRecomputationIsOrderIndependent(t *testing.T) {
	factors := []model.TrustFactor{
		{Name: "known-device", Impact: 20},
		{Name: "clean-history", Impact: 15},
		{Name: "dns-threat", Impact: -5},
		{Name: "new-device", Impact: -10},
		{Name: "manufacturer-reputation", Impact: 10},
	}
	now := time.Now()

	want := Compute(testMAC, factors, now).Score
	for i := 0; i < 20; i++ {
		shuffled := make([]model.TrustFactor, len(factors))
		copy(shuffled, factors)
		rand.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		assert.Equal(t, want, Compute(testMAC, shuffled, now).Score)
	}
}

func TestExpiredFactorsExcludedButRetained(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	scorer := NewScorer(store)

	past := time.Now().Add(-time.Hour)
	_, err := scorer.AddFactor(ctx, testMAC, model.TrustFactor{
		Name:      "stale-threat",
		Impact:    -30,
		CreatedAt: past.Add(-time.Hour),
		ExpiresAt: &past,
	})
	require.NoError(t, err)
	_, err = scorer.AddFactor(ctx, testMAC, model.TrustFactor{Name: "clean-week", Impact: 15})
	require.NoError(t, err)

	score := scorer.GetScore(ctx, testMAC)
	assert.Equal(t, 65, score.Score, "expired factor must not count")

	// The raw store keeps the expired factor for audit.
	assert.Len(t, store.factors[testMAC], 2)
	// The reported factor set only carries active contributors.
	assert.Len(t, score.Factors, 1)
}

func TestMalwareHitDropsTrustedDeviceToLowTrust(t *testing.T) {
	ctx := context.Background()
	scorer := NewScorer(newFakeStore())

	_, err := scorer.AddFactor(ctx, testMAC, model.TrustFactor{Name: "clean-history", Impact: 20})
	require.NoError(t, err)
	require.Equal(t, 70, scorer.GetScore(ctx, testMAC).Score)

	score, err := scorer.AddFactor(ctx, testMAC, model.TrustFactor{Name: "confirmed-malware-hit", Impact: -40})
	require.NoError(t, err)

	assert.Equal(t, 30, score.Score)
	assert.Equal(t, model.LevelLowTrust, score.Level)
}

func TestLevelBoundaries(t *testing.T) {
	cases := []struct {
		score int
		level model.TrustLevel
	}{
		{100, model.LevelHighlyTrusted},
		{90, model.LevelHighlyTrusted},
		{89, model.LevelTrusted},
		{70, model.LevelTrusted},
		{69, model.LevelNeutral},
		{50, model.LevelNeutral},
		{49, model.LevelLowTrust},
		{30, model.LevelLowTrust},
		{29, model.LevelUntrusted},
		{0, model.LevelUntrusted},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.level, model.LevelForScore(tc.score), "score %d", tc.score)
	}
}

func TestManualOverridePinsScore(t *testing.T) {
	ctx := context.Background()
	scorer := NewScorer(newFakeStore())

	_, err := scorer.AddFactor(ctx, testMAC, model.TrustFactor{Name: "dns-threat", Impact: -40})
	require.NoError(t, err)

	score, err := scorer.Override(ctx, testMAC, 90, "company laptop, verified")
	require.NoError(t, err)

	assert.Equal(t, 90, score.Score)
	assert.Equal(t, model.LevelHighlyTrusted, score.Level)
	assert.True(t, score.ManualOverride)
	assert.Equal(t, "company laptop, verified", score.OverrideReason)
}

func TestRewardCleanStreaks(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	scorer := NewScorer(store)

	clean := "aa:aa:aa:aa:aa:01"
	dirty := "aa:aa:aa:aa:aa:02"
	recovered := "aa:aa:aa:aa:aa:03"

	week := 7 * 24 * time.Hour
	now := time.Now()

	_, err := scorer.AddFactor(ctx, clean, model.TrustFactor{
		Name: "device-seen", Impact: 5, CreatedAt: now.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = scorer.AddFactor(ctx, dirty, model.TrustFactor{
		Name: "dns-threat", Impact: -10, CreatedAt: now.Add(-time.Hour)})
	require.NoError(t, err)
	// Negative factor older than the window does not break the streak.
	_, err = scorer.AddFactor(ctx, recovered, model.TrustFactor{
		Name: "dns-threat", Impact: -10, CreatedAt: now.Add(-2 * week)})
	require.NoError(t, err)

	rewarded, err := scorer.RewardCleanStreaks(ctx, week, 15)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{clean, recovered}, rewarded)
	assert.Equal(t, 70, scorer.GetScore(ctx, clean).Score)
	assert.Equal(t, 40, scorer.GetScore(ctx, dirty).Score)

	// A second sweep inside the window must not stack the bonus.
	again, err := scorer.RewardCleanStreaks(ctx, week, 15)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Equal(t, 70, scorer.GetScore(ctx, clean).Score)
}

func TestSummaryStatistics(t *testing.T) {
	ctx := context.Background()
	scorer := NewScorer(newFakeStore())

	devices := map[string]int{
		"aa:aa:aa:aa:aa:01": 45,  // score 95, highly_trusted
		"aa:aa:aa:aa:aa:02": 25,  // score 75, trusted
		"aa:aa:aa:aa:aa:03": 0,   // score 50, neutral
		"aa:aa:aa:aa:aa:04": -20, // score 30, low_trust
	}
	for mac, impact := range devices {
		_, err := scorer.AddFactor(ctx, mac, model.TrustFactor{Name: "seed", Impact: impact})
		require.NoError(t, err)
	}

	summary, err := scorer.Summary(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.ByLevel[model.LevelHighlyTrusted])
	assert.Equal(t, 1, summary.ByLevel[model.LevelTrusted])
	assert.Equal(t, 1, summary.ByLevel[model.LevelNeutral])
	assert.Equal(t, 1, summary.ByLevel[model.LevelLowTrust])
	assert.InDelta(t, 62.5, summary.AverageScore, 0.001)
	assert.Equal(t, 1, summary.Histogram[9]) // 95
	assert.Equal(t, 1, summary.Histogram[7]) // 75
	assert.Equal(t, 1, summary.Histogram[5]) // 50
	assert.Equal(t, 1, summary.Histogram[3]) // 30
}
