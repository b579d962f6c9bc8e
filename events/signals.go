// api/events/signals.go
package events

import (
	"strings"
	"sync"
	"time"
)

// SignalState holds the soft context signals derived from the feed:
// the latest anomaly risk level per device and a sliding count of
// recent high-severity alerts. Signals are advisory and volatile, so
// they live in memory; a restart simply resets them to neutral.
type SignalState struct {
	mu               sync.RWMutex
	risk             map[string]riskEntry
	alerts           map[string][]time.Time
	riskTTL          time.Duration
	alertWindow      time.Duration
	alertMinSeverity int
	now              func() time.Time
}

type riskEntry struct {
	level string
	at    time.Time
}

func NewSignalState(riskTTL, alertWindow time.Duration) *SignalState {
	return &SignalState{
		risk:             make(map[string]riskEntry),
		alerts:           make(map[string][]time.Time),
		riskTTL:          riskTTL,
		alertWindow:      alertWindow,
		alertMinSeverity: 5,
		now:              time.Now,
	}
}

// SetRisk records the anomaly detector's latest verdict for a device.
func (s *SignalState) SetRisk(mac, level string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.risk[strings.ToLower(mac)] = riskEntry{level: level, at: s.now()}
}

// RiskLevel returns the current risk level for a device. A verdict
// older than the TTL is stale and reported as absent, so evaluation
// falls back to the neutral default.
func (s *SignalState) RiskLevel(mac string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.risk[strings.ToLower(mac)]
	if !ok {
		return "", false
	}
	if s.riskTTL > 0 && s.now().Sub(entry.at) > s.riskTTL {
		return "", false
	}
	return entry.level, true
}

// RecordAlert notes an alert against a device. Only alerts at or above
// the severity floor count toward the context's recent-alert figure.
func (s *SignalState) RecordAlert(mac string, severity int) {
	if severity < s.alertMinSeverity {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(mac)
	s.alerts[key] = append(s.pruneLocked(key), s.now())
}

// AlertCount returns how many qualifying alerts fall inside the window.
func (s *SignalState) AlertCount(mac string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(mac)
	pruned := s.pruneLocked(key)
	if len(pruned) == 0 {
		delete(s.alerts, key)
		return 0
	}
	s.alerts[key] = pruned
	return len(pruned)
}

func (s *SignalState) pruneLocked(mac string) []time.Time {
	cutoff := s.now().Add(-s.alertWindow)
	kept := s.alerts[mac][:0]
	for _, t := range s.alerts[mac] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
