// api/pdp/evalctx/builder.go
package evalctx

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	logger "github.com/warden-net/warden/api/logging"
	"github.com/warden-net/warden/api/model"
)

// DeviceDirectory resolves a MAC to its known identity attributes.
// *dao.DeviceDAO satisfies it through the device service.
type DeviceDirectory interface {
	GetDevice(ctx context.Context, mac string) (model.Device, error)
}

// TrustSource supplies the current trust posture for a device.
// *trust.Scorer satisfies it.
type TrustSource interface {
	GetScore(ctx context.Context, mac string) model.TrustScore
}

// SignalSource supplies the latest soft signals gathered from the
// event feed: anomaly-detector risk levels and recent alert counts.
type SignalSource interface {
	RiskLevel(mac string) (string, bool)
	AlertCount(mac string) int
}

// Builder assembles the per-evaluation context snapshot. A missing or
// failing upstream never aborts the build: each attribute degrades to
// its neutral default independently, so policies keyed on the
// remaining attributes still evaluate.
type Builder struct {
	devices DeviceDirectory
	trust   TrustSource
	signals SignalSource
	now     func() time.Time
}

func NewBuilder(devices DeviceDirectory, trust TrustSource, signals SignalSource) *Builder {
	return &Builder{devices: devices, trust: trust, signals: signals, now: time.Now}
}

// Build produces a fresh context for one device. destIP and destPort
// are zero-valued for device-wide posture evaluations.
func (b *Builder) Build(ctx context.Context, mac, destIP string, destPort int) model.EvaluationContext {
	mac = strings.ToLower(mac)
	now := b.now()

	ectx := model.EvaluationContext{
		SourceMAC:       mac,
		DestinationIP:   destIP,
		DestinationPort: destPort,
		DeviceCategory:  model.DefaultCategory,
		NetworkZone:     model.DefaultZone,
		MLRiskLevel:     model.DefaultRiskLevel,
		Time:            now,
		DayOfWeek:       now.Weekday().String(),
	}

	if device, err := b.devices.GetDevice(ctx, mac); err == nil {
		if device.Category != "" {
			ectx.DeviceCategory = device.Category
		}
		if device.Zone != "" {
			ectx.NetworkZone = device.Zone
		}
	} else {
		logger.Debug("Device unknown to directory, using neutral attributes",
			zap.String("mac", mac), zap.Error(err))
	}

	score := b.trust.GetScore(ctx, mac)
	ectx.TrustScore = score.Score
	ectx.TrustLevel = score.Level

	if b.signals != nil {
		if risk, ok := b.signals.RiskLevel(mac); ok {
			ectx.MLRiskLevel = risk
		}
		ectx.RecentAlerts = b.signals.AlertCount(mac)
	}

	return ectx
}
