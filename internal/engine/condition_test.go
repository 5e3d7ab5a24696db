package engine

import (
	"testing"

	types "github.com/orbitcrm/blueprint-engine/internal/domain"
)

func cond(field, operator, value, group string) *types.TransitionCondition {
	return &types.TransitionCondition{
		FieldName:    field,
		Operator:     operator,
		Value:        value,
		LogicalGroup: group,
	}
}

func TestEvaluateNoConditions(t *testing.T) {
	if !EvaluateConditions(nil, Snapshot{}) {
		t.Fatal("empty guard should match")
	}
}

func TestEvaluateAndGroup(t *testing.T) {
	conds := []*types.TransitionCondition{
		cond("status", types.OperatorEquals, "qualified", types.LogicalGroupAnd),
	}

	if !EvaluateConditions(conds, Snapshot{"status": "qualified"}) {
		t.Fatal("matching AND condition should pass")
	}
	if EvaluateConditions(conds, Snapshot{"status": "new"}) {
		t.Fatal("non-matching AND condition should fail")
	}
	if EvaluateConditions(conds, Snapshot{}) {
		t.Fatal("missing field should fail")
	}
}

func TestEvaluateOrGroup(t *testing.T) {
	conds := []*types.TransitionCondition{
		cond("priority", types.OperatorEquals, "high", types.LogicalGroupOr),
		cond("amount", types.OperatorGreater, "10000", types.LogicalGroupOr),
	}

	if !EvaluateConditions(conds, Snapshot{"priority": "low", "amount": 15000}) {
		t.Fatal("one satisfied OR condition should pass")
	}
	if EvaluateConditions(conds, Snapshot{"priority": "low", "amount": 5000}) {
		t.Fatal("no satisfied OR condition should fail")
	}
}

func TestEvaluateMixedGroups(t *testing.T) {
	conds := []*types.TransitionCondition{
		cond("status", types.OperatorEquals, "open", types.LogicalGroupAnd),
		cond("priority", types.OperatorEquals, "high", types.LogicalGroupOr),
		cond("amount", types.OperatorGreater, "10000", types.LogicalGroupOr),
	}

	if !EvaluateConditions(conds, Snapshot{"status": "open", "priority": "high", "amount": 1}) {
		t.Fatal("AND satisfied and one OR satisfied should pass")
	}
	if EvaluateConditions(conds, Snapshot{"status": "closed", "priority": "high", "amount": 1}) {
		t.Fatal("failed AND should fail regardless of OR")
	}
	if EvaluateConditions(conds, Snapshot{"status": "open", "priority": "low", "amount": 1}) {
		t.Fatal("satisfied AND with no satisfied OR should fail")
	}
}

func TestEvaluateNumericEquality(t *testing.T) {
	conds := []*types.TransitionCondition{
		cond("amount", types.OperatorEquals, "100", types.LogicalGroupAnd),
	}

	for _, v := range []interface{}{100, int64(100), 100.0, "100", "100.0"} {
		if !EvaluateConditions(conds, Snapshot{"amount": v}) {
			t.Fatalf("amount=%v (%T) should equal 100", v, v)
		}
	}
	if EvaluateConditions(conds, Snapshot{"amount": 101}) {
		t.Fatal("101 should not equal 100")
	}
}

func TestEvaluateOrderingFailsClosed(t *testing.T) {
	conds := []*types.TransitionCondition{
		cond("amount", types.OperatorGreater, "100", types.LogicalGroupAnd),
	}

	if EvaluateConditions(conds, Snapshot{"amount": "not a number"}) {
		t.Fatal("non-coercible value should fail closed")
	}
	if !EvaluateConditions(conds, Snapshot{"amount": "150"}) {
		t.Fatal("numeric string above threshold should pass")
	}
}

func TestEvaluateDateOrdering(t *testing.T) {
	conds := []*types.TransitionCondition{
		cond("due_date", types.OperatorLess, "2026-06-01", types.LogicalGroupAnd),
	}

	if !EvaluateConditions(conds, Snapshot{"due_date": "2026-05-15"}) {
		t.Fatal("earlier date should be less")
	}
	if EvaluateConditions(conds, Snapshot{"due_date": "2026-07-01"}) {
		t.Fatal("later date should not be less")
	}
}

func TestEvaluatePresenceOperators(t *testing.T) {
	empty := []*types.TransitionCondition{
		cond("notes", types.OperatorIsEmpty, "", types.LogicalGroupAnd),
	}
	notEmpty := []*types.TransitionCondition{
		cond("notes", types.OperatorIsNotEmpty, "", types.LogicalGroupAnd),
	}

	if !EvaluateConditions(empty, Snapshot{}) {
		t.Fatal("missing field is empty")
	}
	if !EvaluateConditions(empty, Snapshot{"notes": "  "}) {
		t.Fatal("blank string is empty")
	}
	if EvaluateConditions(empty, Snapshot{"notes": "call back"}) {
		t.Fatal("populated field is not empty")
	}
	if !EvaluateConditions(notEmpty, Snapshot{"notes": "call back"}) {
		t.Fatal("populated field should satisfy is_not_empty")
	}
	if EvaluateConditions(notEmpty, Snapshot{}) {
		t.Fatal("missing field should fail is_not_empty")
	}
}

func TestEvaluateContains(t *testing.T) {
	conds := []*types.TransitionCondition{
		cond("tags", types.OperatorContains, "vip", types.LogicalGroupAnd),
	}

	if !EvaluateConditions(conds, Snapshot{"tags": "lead,vip,emea"}) {
		t.Fatal("substring should match")
	}
	if EvaluateConditions(conds, Snapshot{"tags": "lead,emea"}) {
		t.Fatal("absent substring should not match")
	}
}

func TestFailedConditionsReasons(t *testing.T) {
	conds := []*types.TransitionCondition{
		cond("status", types.OperatorEquals, "qualified", types.LogicalGroupAnd),
	}

	failed := FailedConditions(conds, Snapshot{"status": "new"})
	if len(failed) != 1 {
		t.Fatalf("failed = %v, want one reason", failed)
	}
	if failed[0] != `field status must be equals "qualified"` {
		t.Fatalf("reason = %q", failed[0])
	}

	if got := FailedConditions(conds, Snapshot{"status": "qualified"}); got != nil {
		t.Fatalf("matching guard should have no failures, got %v", got)
	}
}
