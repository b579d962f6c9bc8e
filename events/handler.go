// api/events/handler.go
package events

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/warden-net/warden/api/config"
	logger "github.com/warden-net/warden/api/logging"
	"github.com/warden-net/warden/api/model"
	"github.com/warden-net/warden/api/telemetry"
)

// Weights maps event types to trust factor impacts. PerSeverity
// weights are multiplied by the event's 1..10 severity.
type Weights struct {
	DeviceSeen               int
	NewDevice                int
	CleanWeek                int
	DNSThreatPerSeverity     int
	ConfirmedThreatHit       int
	RiskHigh                 int
	RiskCritical             int
	SecurityAlertPerSeverity int
	FactorTTL                time.Duration
}

// WeightsFromConfig loads the factor weights from configuration.
func WeightsFromConfig() Weights {
	return Weights{
		DeviceSeen:               config.GetInt("trust.weights.deviceSeen"),
		NewDevice:                config.GetInt("trust.weights.newDevice"),
		CleanWeek:                config.GetInt("trust.weights.cleanWeek"),
		DNSThreatPerSeverity:     config.GetInt("trust.weights.dnsThreatPerSeverity"),
		ConfirmedThreatHit:       config.GetInt("trust.weights.confirmedThreatHit"),
		RiskHigh:                 config.GetInt("trust.weights.riskHigh"),
		RiskCritical:             config.GetInt("trust.weights.riskCritical"),
		SecurityAlertPerSeverity: config.GetInt("trust.weights.securityAlertPerSeverity"),
		FactorTTL:                config.GetDuration("trust.factorTTL"),
	}
}

// TrustWriter appends trust factors. *trust.Scorer satisfies it.
type TrustWriter interface {
	AddFactor(ctx context.Context, mac string, factor model.TrustFactor) (model.TrustScore, error)
}

// DeviceRegistry records device sightings. The device service
// satisfies it.
type DeviceRegistry interface {
	UpsertDevice(ctx context.Context, device model.Device) error
}

// Publisher fans internal notifications out to interested services.
// *util.EventBus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{})
}

// TrustChanged is published on the internal bus whenever an external
// event moved a device's trust posture.
const TrustChanged = "trust.changed"

// Handler turns feed events into trust factors, device records and
// context signals. One handler serves all worker goroutines; all of
// its collaborators are safe for concurrent use.
type Handler struct {
	weights Weights
	trust   TrustWriter
	devices DeviceRegistry
	signals *SignalState
	bus     Publisher
}

func NewHandler(weights Weights, trust TrustWriter, devices DeviceRegistry, signals *SignalState, bus Publisher) *Handler {
	return &Handler{weights: weights, trust: trust, devices: devices, signals: signals, bus: bus}
}

// Handle processes one feed envelope. Malformed payloads are counted
// and dropped; the feed must keep flowing.
func (h *Handler) Handle(ctx context.Context, env Envelope) error {
	decoded, err := env.Decode()
	if err != nil {
		telemetry.EventsConsumed.WithLabelValues("malformed").Inc()
		logger.Warn("Dropping malformed feed event",
			zap.String("type", env.Type), zap.Error(err))
		return nil
	}
	telemetry.EventsConsumed.WithLabelValues(env.Type).Inc()

	switch ev := decoded.(type) {
	case DeviceSeen:
		return h.handleDeviceSeen(ctx, ev)
	case DNSThreat:
		return h.handleDNSThreat(ctx, ev)
	case RiskLevelUpdate:
		return h.handleRiskUpdate(ctx, ev)
	case SecurityAlert:
		return h.handleAlert(ctx, ev)
	}
	return nil
}

func (h *Handler) handleDeviceSeen(ctx context.Context, ev DeviceSeen) error {
	device := model.Device{
		MAC:      ev.MAC,
		IP:       ev.IP,
		Category: ev.Category,
		Zone:     ev.Zone,
		LastSeen: eventTime(ev.Timestamp),
	}
	if err := h.devices.UpsertDevice(ctx, device); err != nil {
		return fmt.Errorf("recording device sighting: %w", err)
	}

	if ev.New {
		return h.applyFactor(ctx, ev.MAC, model.TrustFactor{
			Name:   "new-device",
			Impact: h.weights.NewDevice,
			Reason: "first appearance on the network",
		})
	}
	return h.applyFactor(ctx, ev.MAC, model.TrustFactor{
		Name:   "device-seen",
		Impact: h.weights.DeviceSeen,
		Reason: "routine sighting",
	})
}

func (h *Handler) handleDNSThreat(ctx context.Context, ev DNSThreat) error {
	impact := h.weights.DNSThreatPerSeverity * ev.Severity
	name := "dns-threat"
	reason := fmt.Sprintf("DNS query for %s matched threat feed (severity %d)", ev.Domain, ev.Severity)
	if ev.Confirmed {
		impact += h.weights.ConfirmedThreatHit
		name = "confirmed-threat-hit"
	}
	return h.applyFactor(ctx, ev.MAC, model.TrustFactor{
		Name:   name,
		Impact: impact,
		Reason: reason,
	})
}

func (h *Handler) handleRiskUpdate(ctx context.Context, ev RiskLevelUpdate) error {
	h.signals.SetRisk(ev.MAC, ev.Level)

	var weight int
	switch ev.Level {
	case "high":
		weight = h.weights.RiskHigh
	case "critical":
		weight = h.weights.RiskCritical
	default:
		// Low and medium verdicts only refresh the context signal.
		return nil
	}

	confidence := ev.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 1
	}
	impact := int(math.Round(float64(weight) * confidence))

	return h.applyFactor(ctx, ev.MAC, model.TrustFactor{
		Name:   "ml-risk-" + ev.Level,
		Impact: impact,
		Reason: fmt.Sprintf("anomaly detector classified device as %s risk (confidence %.2f)", ev.Level, confidence),
	})
}

func (h *Handler) handleAlert(ctx context.Context, ev SecurityAlert) error {
	h.signals.RecordAlert(ev.MAC, ev.Severity)

	return h.applyFactor(ctx, ev.MAC, model.TrustFactor{
		Name:   "security-alert",
		Impact: h.weights.SecurityAlertPerSeverity * ev.Severity,
		Reason: fmt.Sprintf("alert %q (severity %d)", ev.Rule, ev.Severity),
	})
}

func (h *Handler) applyFactor(ctx context.Context, mac string, factor model.TrustFactor) error {
	if h.weights.FactorTTL > 0 {
		expires := time.Now().Add(h.weights.FactorTTL)
		factor.ExpiresAt = &expires
	}

	score, err := h.trust.AddFactor(ctx, mac, factor)
	if err != nil {
		return fmt.Errorf("applying trust factor %s: %w", factor.Name, err)
	}
	if h.bus != nil {
		h.bus.Publish(ctx, TrustChanged, score)
	}
	return nil
}

func eventTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
