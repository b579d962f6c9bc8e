// api/audit/model.go
package audit

import (
	"encoding/json"
	"time"

	"github.com/warden-net/warden/api/model"
)

// Entry is one row of the decision/audit log: either a policy
// lifecycle change or an evaluation outcome with the context snapshot
// that produced it.
type Entry struct {
	Timestamp     time.Time                `json:"timestamp"`
	Action        string                   `json:"action"`
	DeviceMAC     string                   `json:"device_mac,omitempty"`
	PolicyID      string                   `json:"policy_id,omitempty"`
	Decision      string                   `json:"decision,omitempty"`
	Context       *model.EvaluationContext `json:"context,omitempty"`
	ChangeDetails json.RawMessage          `json:"change_details,omitempty"`
}
