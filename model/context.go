// api/model/context.go
package model

import "time"

// EvaluationContext is the immutable snapshot of a device's attributes
// used for one policy evaluation. Built fresh per evaluation, never
// shared or mutated across evaluations.
type EvaluationContext struct {
	SourceMAC      string     `json:"source_mac"`
	DestinationIP  string     `json:"destination_ip,omitempty"`
	DeviceCategory string     `json:"device_category"`
	NetworkZone    string     `json:"network_zone"`
	TrustScore     int        `json:"trust_score"`
	TrustLevel     TrustLevel `json:"trust_level"`
	MLRiskLevel    string     `json:"ml_risk_level"`
	// RecentAlerts counts high-severity security events seen for the
	// device inside the alert window.
	RecentAlerts    int       `json:"recent_alerts"`
	Time            time.Time `json:"time"`
	DayOfWeek       string    `json:"day_of_week"`
	DestinationPort int       `json:"destination_port,omitempty"`
}

// Attribute resolves the context value a condition type reads.
// Returns ok=false for attributes absent from this context.
func (c *EvaluationContext) Attribute(t ConditionType) (interface{}, bool) {
	switch t {
	case CondTrustScore:
		return c.TrustScore, true
	case CondDeviceCategory:
		return c.DeviceCategory, true
	case CondNetworkZone:
		return c.NetworkZone, true
	case CondMLRiskLevel:
		return c.MLRiskLevel, true
	case CondDayOfWeek:
		return c.DayOfWeek, true
	case CondAlertCount:
		return c.RecentAlerts, true
	case CondDestinationPort:
		if c.DestinationPort == 0 {
			return nil, false
		}
		return c.DestinationPort, true
	case CondTimeRange:
		return ClockMinutes(c.Time.Hour()*60 + c.Time.Minute()), true
	}
	return nil, false
}
