package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	types "github.com/orbitcrm/blueprint-engine/internal/domain"
)

// Snapshot is the record's field map at evaluation time, keyed by field api
// name. The evaluator is pure over it: no lookups, no mutation.
type Snapshot map[string]interface{}

// EvaluateConditions applies a transition guard to a snapshot. Conditions are
// partitioned by logical group: every AND condition must hold, and at least
// one OR condition must hold when any exist. Either group is vacuously true
// when empty, so a transition with zero conditions always matches.
func EvaluateConditions(conditions []*types.TransitionCondition, snap Snapshot) bool {
	ok, _ := evaluate(conditions, snap)
	return ok
}

// FailedConditions returns a human-readable reason per condition that kept
// the guard from matching. Empty when the guard matches.
func FailedConditions(conditions []*types.TransitionCondition, snap Snapshot) []string {
	ok, failed := evaluate(conditions, snap)
	if ok {
		return nil
	}
	return failed
}

func evaluate(conditions []*types.TransitionCondition, snap Snapshot) (bool, []string) {
	ordered := make([]*types.TransitionCondition, 0, len(conditions))
	ordered = append(ordered, conditions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].DisplayOrder < ordered[j].DisplayOrder
	})

	andOK := true
	orSeen := false
	orOK := false
	var failed []string

	for _, cond := range ordered {
		holds := holds(cond, snap)
		switch cond.LogicalGroup {
		case types.LogicalGroupOr:
			orSeen = true
			if holds {
				orOK = true
			} else {
				failed = append(failed, describe(cond))
			}
		default:
			if !holds {
				andOK = false
				failed = append(failed, describe(cond))
			}
		}
	}

	if orSeen && !orOK {
		return false, failed
	}
	if !andOK {
		return false, failed
	}
	return true, nil
}

func describe(cond *types.TransitionCondition) string {
	switch cond.Operator {
	case types.OperatorIsEmpty, types.OperatorIsNotEmpty:
		return fmt.Sprintf("field %s must be %s", cond.FieldName, strings.ReplaceAll(cond.Operator, "_", " "))
	default:
		return fmt.Sprintf("field %s must be %s %q", cond.FieldName, strings.ReplaceAll(cond.Operator, "_", " "), cond.Value)
	}
}

func holds(cond *types.TransitionCondition, snap Snapshot) bool {
	raw, present := snap[cond.FieldName]

	switch cond.Operator {
	case types.OperatorIsEmpty:
		return !present || isEmptyValue(raw)
	case types.OperatorIsNotEmpty:
		return present && !isEmptyValue(raw)
	}

	if !present {
		return false
	}

	switch cond.Operator {
	case types.OperatorEquals:
		return valuesEqual(raw, cond.Value)
	case types.OperatorNotEquals:
		return !valuesEqual(raw, cond.Value)
	case types.OperatorGreater:
		cmp, ok := compareOrdered(raw, cond.Value)
		return ok && cmp > 0
	case types.OperatorLess:
		cmp, ok := compareOrdered(raw, cond.Value)
		return ok && cmp < 0
	case types.OperatorContains:
		return strings.Contains(stringify(raw), cond.Value)
	default:
		// unknown operator fails closed
		return false
	}
}

func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}

// valuesEqual compares numerically when both sides coerce to numbers,
// falling back to boolean then case-sensitive string comparison.
func valuesEqual(raw interface{}, expected string) bool {
	if fv, ok := toFloat(raw); ok {
		if ev, err := strconv.ParseFloat(strings.TrimSpace(expected), 64); err == nil {
			return fv == ev
		}
	}
	if bv, ok := raw.(bool); ok {
		if ev, err := strconv.ParseBool(strings.TrimSpace(expected)); err == nil {
			return bv == ev
		}
	}
	return stringify(raw) == expected
}

// compareOrdered orders raw against expected numerically, or by timestamp
// when either side does not parse as a number. Non-coercible input reports
// !ok so ordering operators fail closed.
func compareOrdered(raw interface{}, expected string) (int, bool) {
	if fv, ok := toFloat(raw); ok {
		if ev, err := strconv.ParseFloat(strings.TrimSpace(expected), 64); err == nil {
			switch {
			case fv < ev:
				return -1, true
			case fv > ev:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if rt, ok := toTime(raw); ok {
		if et, ok := parseTime(expected); ok {
			switch {
			case rt.Before(et):
				return -1, true
			case rt.After(et):
				return 1, true
			default:
				return 0, true
			}
		}
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		return parseTime(t)
	default:
		return time.Time{}, false
	}
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
