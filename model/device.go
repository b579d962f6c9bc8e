// api/model/device.go
package model

import "time"

// Device is a network endpoint identified by its hardware address.
// Owned and updated by the device directory, never by the policy engine.
type Device struct {
	MAC       string    `json:"mac"`
	IP        string    `json:"ip"`
	Category  string    `json:"category"` // "iot", "laptop", "unknown", ...
	Zone      string    `json:"zone"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Defaults used when an upstream source has no data for a device.
// Neutral on purpose: absence of signal must not read as high risk.
const (
	DefaultCategory  = "unknown"
	DefaultZone      = "default"
	DefaultRiskLevel = "unknown"
)
