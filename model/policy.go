// api/model/policy.go
package model

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"time"
)

// Action is what happens to a device's traffic when a policy matches.
type Action string

const (
	ActionAllow      Action = "allow"
	ActionBlock      Action = "block"
	ActionQuarantine Action = "quarantine"
	ActionRateLimit  Action = "rate_limit"
	ActionLogOnly    Action = "log_only"
)

// ValidActions lists every accepted policy action.
var ValidActions = []Action{ActionAllow, ActionBlock, ActionQuarantine, ActionRateLimit, ActionLogOnly}

func (a Action) Valid() bool {
	for _, v := range ValidActions {
		if a == v {
			return true
		}
	}
	return false
}

// ConditionType identifies which context attribute a condition reads.
type ConditionType string

const (
	CondTrustScore      ConditionType = "trust_score"
	CondTimeRange       ConditionType = "time_range"
	CondDayOfWeek       ConditionType = "day_of_week"
	CondMLRiskLevel     ConditionType = "ml_risk_level"
	CondDeviceCategory  ConditionType = "device_category"
	CondNetworkZone     ConditionType = "network_zone"
	CondDestinationPort ConditionType = "destination_port"
	CondAlertCount      ConditionType = "alert_count"
)

// Operator is a comparison applied to a condition value.
type Operator string

const (
	OpEq      Operator = "=="
	OpNeq     Operator = "!="
	OpLt      Operator = "<"
	OpLte     Operator = "<="
	OpGt      Operator = ">"
	OpGte     Operator = ">="
	OpIn      Operator = "in"
	OpNotIn   Operator = "not_in"
	OpBetween Operator = "between"
)

var numericOps = []Operator{OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpBetween}
var enumOps = []Operator{OpEq, OpNeq, OpIn, OpNotIn}

// operatorTable maps every condition type to the operators valid for
// it. Validated at policy creation, never deferred to evaluation.
var operatorTable = map[ConditionType][]Operator{
	CondTrustScore:      numericOps,
	CondDestinationPort: numericOps,
	CondAlertCount:      numericOps,
	CondTimeRange:       {OpBetween},
	CondDayOfWeek:       enumOps,
	CondMLRiskLevel:     enumOps,
	CondDeviceCategory:  enumOps,
	CondNetworkZone:     enumOps,
}

// OperatorAllowed reports whether op is valid for the condition type.
func OperatorAllowed(t ConditionType, op Operator) bool {
	ops, ok := operatorTable[t]
	if !ok {
		return false
	}
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

// NumericType reports whether the condition type compares numbers.
func NumericType(t ConditionType) bool {
	switch t {
	case CondTrustScore, CondDestinationPort, CondAlertCount:
		return true
	}
	return false
}

// Condition is a single typed predicate over one context attribute.
// Conditions on a policy are conjunctive and immutable once attached.
type Condition struct {
	Type     ConditionType `json:"type"`
	Operator Operator      `json:"operator"`
	// Value holds a number, a string, or an ordered list of either,
	// depending on Type and Operator.
	Value interface{} `json:"value"`
}

// Policy is a prioritized, conditional rule mapping a
// source/destination/context match to an action.
type Policy struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Source      string      `json:"source"`      // MAC, "category:<c>", "zone:<z>", or "any"
	Destination string      `json:"destination"` // IP, CIDR, or "any"
	Conditions  []Condition `json:"conditions"`
	Action      Action      `json:"action"`
	Priority    int         `json:"priority"` // 0-100, higher evaluated first
	Enabled     bool        `json:"enabled"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// SourceKind classifies a source matcher.
type SourceKind int

const (
	SourceAny SourceKind = iota
	SourceMAC
	SourceCategory
	SourceZone
)

// ParseSource splits a source matcher into kind and value.
func ParseSource(s string) (SourceKind, string) {
	switch {
	case s == "" || s == "any":
		return SourceAny, ""
	case strings.HasPrefix(s, "category:"):
		return SourceCategory, strings.TrimPrefix(s, "category:")
	case strings.HasPrefix(s, "zone:"):
		return SourceZone, strings.TrimPrefix(s, "zone:")
	default:
		return SourceMAC, strings.ToLower(s)
	}
}

// DestinationPrefix parses a destination matcher into an address
// range. "any" maps to the zero-length prefix matching everything.
func DestinationPrefix(d string) (netip.Prefix, error) {
	if d == "" || d == "any" {
		return netip.PrefixFrom(netip.IPv4Unspecified(), 0), nil
	}
	if strings.Contains(d, "/") {
		return netip.ParsePrefix(d)
	}
	addr, err := netip.ParseAddr(d)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Validate checks a policy before persistence. Returns the first
// violation found; malformed policies are rejected, never coerced.
func (p *Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy name cannot be empty")
	}
	if !p.Action.Valid() {
		return fmt.Errorf("unknown action %q", p.Action)
	}
	if p.Priority < 0 || p.Priority > 100 {
		return fmt.Errorf("priority %d out of range [0,100]", p.Priority)
	}
	if _, err := DestinationPrefix(p.Destination); err != nil {
		return fmt.Errorf("malformed destination %q: %v", p.Destination, err)
	}
	for i, c := range p.Conditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks the condition's type/operator pairing and value shape.
func (c *Condition) Validate() error {
	if _, ok := operatorTable[c.Type]; !ok {
		return fmt.Errorf("unknown condition type %q", c.Type)
	}
	if !OperatorAllowed(c.Type, c.Operator) {
		return fmt.Errorf("operator %q not valid for condition type %q", c.Operator, c.Type)
	}
	switch c.Operator {
	case OpIn, OpNotIn:
		if _, ok := ValueList(c.Value); !ok {
			return fmt.Errorf("operator %q requires a list value", c.Operator)
		}
	case OpBetween:
		list, ok := ValueList(c.Value)
		if !ok || len(list) != 2 {
			return fmt.Errorf("operator %q requires a two-element list", c.Operator)
		}
		if c.Type == CondTimeRange {
			for _, v := range list {
				s, ok := v.(string)
				if !ok {
					return fmt.Errorf("time_range bounds must be HH:MM strings")
				}
				if _, err := ParseClock(s); err != nil {
					return err
				}
			}
		}
	default:
		if NumericType(c.Type) {
			if _, ok := ValueNumber(c.Value); !ok {
				return fmt.Errorf("condition type %q requires a numeric value", c.Type)
			}
		}
	}
	return nil
}

// ValueList normalizes a condition value into a slice.
func ValueList(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]interface{}, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

// ValueNumber normalizes a condition value into a float64. JSON
// decoding produces float64; persisted values may round-trip as int.
func ValueNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

// ClockMinutes is a time of day in minutes since midnight.
type ClockMinutes int

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (ClockMinutes, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("malformed clock value %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return ClockMinutes(h*60 + m), nil
}

// SortPolicies orders a snapshot: priority descending, then creation
// time ascending (earlier-created wins ties), then id as a final
// stable tie-break. The ordering is load-bearing for determinism.
func SortPolicies(policies []*Policy) {
	sort.SliceStable(policies, func(i, j int) bool {
		if policies[i].Priority != policies[j].Priority {
			return policies[i].Priority > policies[j].Priority
		}
		if !policies[i].CreatedAt.Equal(policies[j].CreatedAt) {
			return policies[i].CreatedAt.Before(policies[j].CreatedAt)
		}
		return policies[i].ID < policies[j].ID
	})
}

// PolicyTemplate is a canned policy offered by the management surface.
type PolicyTemplate struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Source      string      `json:"source"`
	Destination string      `json:"destination"`
	Conditions  []Condition `json:"conditions"`
	Action      Action      `json:"action"`
	Priority    int         `json:"priority"`
}

// PolicySuggestion is a recommended policy for one device, derived
// from its current trust posture and feed signals. Advisory only:
// nothing is persisted or enforced until the operator creates it.
type PolicySuggestion struct {
	Policy     Policy  `json:"policy"`
	Confidence float64 `json:"confidence"` // 0..1
	Reason     string  `json:"reason"`
}

// PolicyTemplates are ready-made starting points for common household
// segmentation rules.
var PolicyTemplates = []PolicyTemplate{
	{
		Name:        "Bedtime Internet Block",
		Description: "Block all IoT devices from internet access after 10 PM",
		Source:      "category:iot",
		Destination: "any",
		Conditions: []Condition{
			{Type: CondTimeRange, Operator: OpBetween, Value: []string{"22:00", "06:00"}},
		},
		Action:   ActionBlock,
		Priority: 60,
	},
	{
		Name:        "Low Trust Quarantine",
		Description: "Quarantine devices with trust score below 30",
		Source:      "any",
		Destination: "any",
		Conditions: []Condition{
			{Type: CondTrustScore, Operator: OpLte, Value: 30},
		},
		Action:   ActionQuarantine,
		Priority: 90,
	},
	{
		Name:        "ML Anomaly Block",
		Description: "Block devices flagged critical by the anomaly detector",
		Source:      "any",
		Destination: "any",
		Conditions: []Condition{
			{Type: CondMLRiskLevel, Operator: OpEq, Value: "critical"},
		},
		Action:   ActionBlock,
		Priority: 95,
	},
	{
		Name:        "Guest Network Isolation",
		Description: "Keep guest devices off the local network",
		Source:      "zone:guest",
		Destination: "192.168.0.0/16",
		Conditions:  []Condition{},
		Action:      ActionBlock,
		Priority:    80,
	},
}
