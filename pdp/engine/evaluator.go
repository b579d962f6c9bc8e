// api/pdp/engine/evaluator.go
package engine

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"go.uber.org/zap"

	logger "github.com/warden-net/warden/api/logging"
	"github.com/warden-net/warden/api/model"
	"github.com/warden-net/warden/api/telemetry"
)

// PolicyEvaluator selects the single governing policy for a context.
// Evaluation is a pure function of the context and the snapshot: no
// I/O, no mutation, safe to call concurrently for many devices
// against one shared, frozen snapshot.
type PolicyEvaluator struct {
	defaultAction model.Action
}

func NewPolicyEvaluator(defaultAction model.Action) *PolicyEvaluator {
	return &PolicyEvaluator{defaultAction: defaultAction}
}

// Evaluate walks the snapshot in its defined order and returns the
// decision of the first enabled policy whose source matcher,
// destination matcher and every condition hold. First match wins; no
// further policies are consulted.
func (pe *PolicyEvaluator) Evaluate(ectx model.EvaluationContext, snapshot []*model.Policy) model.Decision {
	for _, policy := range snapshot {
		if !policy.Enabled {
			continue
		}
		if !MatchSource(policy.Source, &ectx) {
			continue
		}
		if !matchDestination(policy.Destination, ectx.DestinationIP) {
			continue
		}
		if !pe.conditionsHold(policy, &ectx) {
			continue
		}

		telemetry.EvaluationsTotal.WithLabelValues("matched").Inc()
		telemetry.DecisionsTotal.WithLabelValues(string(policy.Action)).Inc()
		return model.Decision{
			PolicyID:   policy.ID,
			PolicyName: policy.Name,
			Action:     policy.Action,
			Reason:     fmt.Sprintf("matched policy %q (priority %d)", policy.Name, policy.Priority),
			Context:    ectx,
			DecidedAt:  time.Now(),
		}
	}

	telemetry.EvaluationsTotal.WithLabelValues("default").Inc()
	telemetry.DecisionsTotal.WithLabelValues(string(pe.defaultAction)).Inc()
	return model.Decision{
		Action:    pe.defaultAction,
		Default:   true,
		Reason:    "no policy matched",
		Context:   ectx,
		DecidedAt: time.Now(),
	}
}

// WouldApply tests a single policy against a context without running
// the full snapshot. Used by the dry-run endpoint.
func WouldApply(policy *model.Policy, ectx *model.EvaluationContext) bool {
	if !policy.Enabled {
		return false
	}
	if !MatchSource(policy.Source, ectx) {
		return false
	}
	if !matchDestination(policy.Destination, ectx.DestinationIP) {
		return false
	}
	for i := range policy.Conditions {
		ok, err := EvalCondition(&policy.Conditions[i], ectx)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func (pe *PolicyEvaluator) conditionsHold(policy *model.Policy, ectx *model.EvaluationContext) bool {
	for i := range policy.Conditions {
		ok, err := EvalCondition(&policy.Conditions[i], ectx)
		if err != nil {
			// A malformed condition should have been rejected at
			// creation. Fail closed for this policy only; one bad
			// rule must not halt evaluation for all devices.
			telemetry.EvaluationAnomalies.WithLabelValues(string(policy.Conditions[i].Type)).Inc()
			logger.Warn("Malformed condition at evaluation time, skipping policy",
				zap.String("policyID", policy.ID),
				zap.String("conditionType", string(policy.Conditions[i].Type)),
				zap.Error(err))
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// MatchSource tests a policy source matcher against the context's
// device identity, category and zone.
func MatchSource(source string, ectx *model.EvaluationContext) bool {
	kind, value := model.ParseSource(source)
	switch kind {
	case model.SourceAny:
		return true
	case model.SourceMAC:
		return strings.EqualFold(value, ectx.SourceMAC)
	case model.SourceCategory:
		return value == ectx.DeviceCategory
	case model.SourceZone:
		return value == ectx.NetworkZone
	}
	return false
}

// matchDestination tests a destination matcher against the context's
// destination address. A context with no destination (device-wide
// posture evaluation) matches only "any".
func matchDestination(destination, destIP string) bool {
	if destination == "" || destination == "any" {
		return true
	}
	if destIP == "" {
		return false
	}
	prefix, err := model.DestinationPrefix(destination)
	if err != nil {
		return false
	}
	addr, err := netip.ParseAddr(destIP)
	if err != nil {
		return false
	}
	return prefix.Contains(addr)
}

// EvalCondition evaluates one typed predicate against the context.
// The error return marks malformed data that survived creation-time
// validation, never an unsatisfied condition.
func EvalCondition(c *model.Condition, ectx *model.EvaluationContext) (bool, error) {
	attr, ok := ectx.Attribute(c.Type)
	if !ok {
		// Attribute absent from this context: not satisfied.
		return false, nil
	}

	if c.Type == model.CondTimeRange {
		return evalTimeRange(c, attr.(model.ClockMinutes))
	}

	if model.NumericType(c.Type) {
		return evalNumeric(c, attr)
	}

	return evalEnum(c, attr)
}

func evalNumeric(c *model.Condition, attr interface{}) (bool, error) {
	actual, ok := model.ValueNumber(attr)
	if !ok {
		return false, fmt.Errorf("context attribute for %s is not numeric", c.Type)
	}

	if c.Operator == model.OpBetween {
		list, ok := model.ValueList(c.Value)
		if !ok || len(list) != 2 {
			return false, fmt.Errorf("between requires a two-element list")
		}
		lo, okLo := model.ValueNumber(list[0])
		hi, okHi := model.ValueNumber(list[1])
		if !okLo || !okHi {
			return false, fmt.Errorf("between bounds are not numeric")
		}
		return actual >= lo && actual <= hi, nil
	}

	expected, ok := model.ValueNumber(c.Value)
	if !ok {
		return false, fmt.Errorf("condition value for %s is not numeric", c.Type)
	}

	switch c.Operator {
	case model.OpEq:
		return actual == expected, nil
	case model.OpNeq:
		return actual != expected, nil
	case model.OpLt:
		return actual < expected, nil
	case model.OpLte:
		return actual <= expected, nil
	case model.OpGt:
		return actual > expected, nil
	case model.OpGte:
		return actual >= expected, nil
	}
	return false, fmt.Errorf("operator %q not valid for numeric condition", c.Operator)
}

func evalEnum(c *model.Condition, attr interface{}) (bool, error) {
	actual, ok := attr.(string)
	if !ok {
		return false, fmt.Errorf("context attribute for %s is not a string", c.Type)
	}

	switch c.Operator {
	case model.OpEq:
		expected, ok := c.Value.(string)
		if !ok {
			return false, fmt.Errorf("condition value for %s is not a string", c.Type)
		}
		return strings.EqualFold(actual, expected), nil
	case model.OpNeq:
		expected, ok := c.Value.(string)
		if !ok {
			return false, fmt.Errorf("condition value for %s is not a string", c.Type)
		}
		return !strings.EqualFold(actual, expected), nil
	case model.OpIn, model.OpNotIn:
		list, ok := model.ValueList(c.Value)
		if !ok {
			return false, fmt.Errorf("operator %q requires a list value", c.Operator)
		}
		found := false
		for _, v := range list {
			if s, ok := v.(string); ok && strings.EqualFold(actual, s) {
				found = true
				break
			}
		}
		if c.Operator == model.OpIn {
			return found, nil
		}
		return !found, nil
	}
	return false, fmt.Errorf("operator %q not valid for enum condition", c.Operator)
}

// evalTimeRange checks a clock value against a [start, end] pair that
// may wrap midnight (22:00-06:00 covers late night and early morning).
func evalTimeRange(c *model.Condition, now model.ClockMinutes) (bool, error) {
	list, ok := model.ValueList(c.Value)
	if !ok || len(list) != 2 {
		return false, fmt.Errorf("time_range requires a two-element list")
	}
	startStr, okS := list[0].(string)
	endStr, okE := list[1].(string)
	if !okS || !okE {
		return false, fmt.Errorf("time_range bounds must be HH:MM strings")
	}
	start, err := model.ParseClock(startStr)
	if err != nil {
		return false, err
	}
	end, err := model.ParseClock(endStr)
	if err != nil {
		return false, err
	}

	if start <= end {
		return now >= start && now <= end, nil
	}
	return now >= start || now <= end, nil
}
