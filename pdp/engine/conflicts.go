// api/pdp/engine/conflicts.go
package engine

import (
	"fmt"
	"strings"

	"github.com/warden-net/warden/api/model"
)

// FindConflicts scans an ordered snapshot for pairs of enabled
// policies that could govern the same traffic with different actions.
// Detection is advisory: evaluation order already resolves every
// conflict deterministically, this surfaces the ambiguity to the
// operator. Each conflicting pair is reported once.
func FindConflicts(snapshot []*model.Policy) []model.Conflict {
	var conflicts []model.Conflict
	for i := 0; i < len(snapshot); i++ {
		if !snapshot[i].Enabled {
			continue
		}
		for j := i + 1; j < len(snapshot); j++ {
			if !snapshot[j].Enabled {
				continue
			}
			if snapshot[i].Action == snapshot[j].Action {
				continue
			}
			if !sourcesOverlap(snapshot[i].Source, snapshot[j].Source) {
				continue
			}
			if !destinationsOverlap(snapshot[i].Destination, snapshot[j].Destination) {
				continue
			}
			if conditionsExclusive(snapshot[i].Conditions, snapshot[j].Conditions) {
				continue
			}

			severity := model.ConflictMedium
			if snapshot[i].Priority == snapshot[j].Priority {
				severity = model.ConflictHigh
			}
			conflicts = append(conflicts, model.Conflict{
				PolicyA: snapshot[i].ID,
				PolicyB: snapshot[j].ID,
				Reason: fmt.Sprintf("%q (%s) and %q (%s) can match the same traffic",
					snapshot[i].Name, snapshot[i].Action, snapshot[j].Name, snapshot[j].Action),
				Severity: severity,
			})
		}
	}
	return conflicts
}

// sourcesOverlap reports whether two source matchers can select the
// same device. Matchers of different kinds (a MAC vs a category) may
// both select one device, so only same-kind mismatches are provably
// disjoint.
func sourcesOverlap(a, b string) bool {
	kindA, valueA := model.ParseSource(a)
	kindB, valueB := model.ParseSource(b)

	if kindA == model.SourceAny || kindB == model.SourceAny {
		return true
	}
	if kindA != kindB {
		return true
	}
	return strings.EqualFold(valueA, valueB)
}

// destinationsOverlap reports whether two destination matchers share
// any address. With prefixes this reduces to one containing the
// other's base address.
func destinationsOverlap(a, b string) bool {
	prefixA, err := model.DestinationPrefix(a)
	if err != nil {
		return true
	}
	prefixB, err := model.DestinationPrefix(b)
	if err != nil {
		return true
	}
	return prefixA.Contains(prefixB.Addr()) || prefixB.Contains(prefixA.Addr())
}

// conditionsExclusive reports whether two condition sets are provably
// unsatisfiable together. Only same-type pairs are compared; anything
// not provably disjoint counts as a potential overlap.
func conditionsExclusive(a, b []model.Condition) bool {
	for i := range a {
		for j := range b {
			if a[i].Type != b[j].Type {
				continue
			}
			if pairExclusive(&a[i], &b[j]) {
				return true
			}
		}
	}
	return false
}

func pairExclusive(a, b *model.Condition) bool {
	if a.Type == model.CondTimeRange {
		return timeRangesDisjoint(a, b)
	}
	if model.NumericType(a.Type) {
		loA, hiA, ok := numericInterval(a)
		if !ok {
			return false
		}
		loB, hiB, ok := numericInterval(b)
		if !ok {
			return false
		}
		return hiA < loB || hiB < loA
	}
	return enumSetsDisjoint(a, b)
}

// numericInterval reduces a numeric condition to the closed interval
// of attribute values that satisfy it. Strict comparisons over scores
// and counts are integral, so <n tightens to <=n-1.
func numericInterval(c *model.Condition) (lo, hi float64, ok bool) {
	const unbounded = 1 << 30

	if c.Operator == model.OpBetween {
		list, listOK := model.ValueList(c.Value)
		if !listOK || len(list) != 2 {
			return 0, 0, false
		}
		lo, okLo := model.ValueNumber(list[0])
		hi, okHi := model.ValueNumber(list[1])
		if !okLo || !okHi {
			return 0, 0, false
		}
		return lo, hi, true
	}

	v, vOK := model.ValueNumber(c.Value)
	if !vOK {
		return 0, 0, false
	}
	switch c.Operator {
	case model.OpEq:
		return v, v, true
	case model.OpLt:
		return -unbounded, v - 1, true
	case model.OpLte:
		return -unbounded, v, true
	case model.OpGt:
		return v + 1, unbounded, true
	case model.OpGte:
		return v, unbounded, true
	}
	// != and anything unrecognized give no usable interval.
	return 0, 0, false
}

// enumSetsDisjoint compares the accept-sets of two positive enum
// conditions. Negative operators (!=, not_in) accept open sets and
// are never provably disjoint from anything.
func enumSetsDisjoint(a, b *model.Condition) bool {
	setA, ok := enumAcceptSet(a)
	if !ok {
		return false
	}
	setB, ok := enumAcceptSet(b)
	if !ok {
		return false
	}
	for v := range setA {
		if _, shared := setB[v]; shared {
			return false
		}
	}
	return true
}

func enumAcceptSet(c *model.Condition) (map[string]struct{}, bool) {
	set := make(map[string]struct{})
	switch c.Operator {
	case model.OpEq:
		s, ok := c.Value.(string)
		if !ok {
			return nil, false
		}
		set[strings.ToLower(s)] = struct{}{}
		return set, true
	case model.OpIn:
		list, ok := model.ValueList(c.Value)
		if !ok {
			return nil, false
		}
		for _, v := range list {
			s, ok := v.(string)
			if !ok {
				return nil, false
			}
			set[strings.ToLower(s)] = struct{}{}
		}
		return set, true
	}
	return nil, false
}

// timeRangesDisjoint compares two daily windows. A window wrapping
// midnight splits into two plain intervals before comparison.
func timeRangesDisjoint(a, b *model.Condition) bool {
	intervalsA, ok := clockIntervals(a)
	if !ok {
		return false
	}
	intervalsB, ok := clockIntervals(b)
	if !ok {
		return false
	}
	for _, ia := range intervalsA {
		for _, ib := range intervalsB {
			if ia[0] <= ib[1] && ib[0] <= ia[1] {
				return false
			}
		}
	}
	return true
}

func clockIntervals(c *model.Condition) ([][2]model.ClockMinutes, bool) {
	list, ok := model.ValueList(c.Value)
	if !ok || len(list) != 2 {
		return nil, false
	}
	startStr, okS := list[0].(string)
	endStr, okE := list[1].(string)
	if !okS || !okE {
		return nil, false
	}
	start, err := model.ParseClock(startStr)
	if err != nil {
		return nil, false
	}
	end, err := model.ParseClock(endStr)
	if err != nil {
		return nil, false
	}

	if start <= end {
		return [][2]model.ClockMinutes{{start, end}}, true
	}
	const endOfDay = model.ClockMinutes(24*60 - 1)
	return [][2]model.ClockMinutes{{start, endOfDay}, {0, end}}, true
}
