// api/events/events.go
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/warden-net/warden/api/errors"
)

// Event type names as carried on the feed topic suffix.
const (
	TypeDeviceSeen    = "device_seen"
	TypeDNSThreat     = "dns_threat"
	TypeRiskUpdate    = "risk"
	TypeSecurityAlert = "alert"
)

// DeviceSeen reports a device observed on the network, with whatever
// identity attributes the observer resolved.
type DeviceSeen struct {
	MAC       string    `json:"mac"`
	IP        string    `json:"ip,omitempty"`
	Category  string    `json:"category,omitempty"`
	Zone      string    `json:"zone,omitempty"`
	New       bool      `json:"new,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DNSThreat reports a DNS query that matched a threat feed.
type DNSThreat struct {
	MAC       string    `json:"mac"`
	Domain    string    `json:"domain"`
	Severity  int       `json:"severity"` // 1..10
	Confirmed bool      `json:"confirmed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RiskLevelUpdate carries the anomaly detector's latest classification
// for a device. Confidence is the detector's certainty in (0, 1];
// absent or out-of-range values are treated as full confidence.
type RiskLevelUpdate struct {
	MAC        string    `json:"mac"`
	Level      string    `json:"level"` // low, medium, high, critical
	Confidence float64   `json:"confidence,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// SecurityAlert is a generic alert raised against a device.
type SecurityAlert struct {
	MAC       string    `json:"mac"`
	Rule      string    `json:"rule,omitempty"`
	Severity  int       `json:"severity"` // 1..10
	Timestamp time.Time `json:"timestamp"`
}

// Envelope is a raw feed message before type dispatch.
type Envelope struct {
	Type    string
	Payload []byte
}

// Decode unmarshals the envelope into its typed event. The MAC is
// required and normalized to lower case; everything else may be
// absent.
func (e Envelope) Decode() (interface{}, error) {
	switch e.Type {
	case TypeDeviceSeen:
		var ev DeviceSeen
		if err := decodeWithMAC(e.Payload, &ev, &ev.MAC); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeDNSThreat:
		var ev DNSThreat
		if err := decodeWithMAC(e.Payload, &ev, &ev.MAC); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeRiskUpdate:
		var ev RiskLevelUpdate
		if err := decodeWithMAC(e.Payload, &ev, &ev.MAC); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeSecurityAlert:
		var ev SecurityAlert
		if err := decodeWithMAC(e.Payload, &ev, &ev.MAC); err != nil {
			return nil, err
		}
		return ev, nil
	}
	return nil, fmt.Errorf("%w: unknown event type %q", apperrors.ErrInvalidEventData, e.Type)
}

func decodeWithMAC(payload []byte, target interface{}, mac *string) error {
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidEventData, err)
	}
	if *mac == "" {
		return fmt.Errorf("%w: missing mac", apperrors.ErrInvalidEventData)
	}
	*mac = strings.ToLower(*mac)
	return nil
}
