package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/orbitcrm/blueprint-engine/internal/domain"
)

func PtrInt(v int) *int { return &v }

func SeedBlueprint(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.Blueprint {
	tb.Helper()
	bp := &types.Blueprint{
		ID:       uuid.New(),
		ModuleID: uuid.New(),
		FieldID:  uuid.New(),
		Name:     name,
		IsActive: true,
	}
	if err := tx.WithContext(ctx).Create(bp).Error; err != nil {
		tb.Fatalf("seed blueprint: %v", err)
	}
	return bp
}

func SeedState(tb testing.TB, ctx context.Context, tx *gorm.DB, blueprintID uuid.UUID, name string, initial, terminal bool) *types.State {
	tb.Helper()
	st := &types.State{
		ID:          uuid.New(),
		BlueprintID: blueprintID,
		Name:        name,
		IsInitial:   initial,
		IsTerminal:  terminal,
	}
	if err := tx.WithContext(ctx).Create(st).Error; err != nil {
		tb.Fatalf("seed state: %v", err)
	}
	return st
}

func SeedTransition(tb testing.TB, ctx context.Context, tx *gorm.DB, blueprintID, fromID, toID uuid.UUID, name string) *types.Transition {
	tb.Helper()
	tr := &types.Transition{
		ID:          uuid.New(),
		BlueprintID: blueprintID,
		FromStateID: fromID,
		ToStateID:   toID,
		Name:        name,
		IsActive:    true,
	}
	if err := tx.WithContext(ctx).Create(tr).Error; err != nil {
		tb.Fatalf("seed transition: %v", err)
	}
	return tr
}

func SeedCondition(tb testing.TB, ctx context.Context, tx *gorm.DB, transitionID uuid.UUID, field, operator, value, group string) *types.TransitionCondition {
	tb.Helper()
	c := &types.TransitionCondition{
		ID:           uuid.New(),
		TransitionID: transitionID,
		FieldName:    field,
		Operator:     operator,
		Value:        value,
		LogicalGroup: group,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed condition: %v", err)
	}
	return c
}

func SeedAction(tb testing.TB, ctx context.Context, tx *gorm.DB, transitionID uuid.UUID, actionType string, order int) *types.TransitionAction {
	tb.Helper()
	a := &types.TransitionAction{
		ID:           uuid.New(),
		TransitionID: transitionID,
		Type:         actionType,
		Config:       datatypes.JSON([]byte(`{}`)),
		DisplayOrder: order,
		IsActive:     true,
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed action: %v", err)
	}
	return a
}

func SeedRecordState(tb testing.TB, ctx context.Context, tx *gorm.DB, blueprintID, recordID, stateID uuid.UUID) *types.RecordState {
	tb.Helper()
	rs := &types.RecordState{
		ID:             uuid.New(),
		BlueprintID:    blueprintID,
		RecordID:       recordID,
		CurrentStateID: stateID,
		StateEnteredAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(rs).Error; err != nil {
		tb.Fatalf("seed record state: %v", err)
	}
	return rs
}

func SeedSla(tb testing.TB, ctx context.Context, tx *gorm.DB, blueprintID, stateID uuid.UUID, hours int) *types.Sla {
	tb.Helper()
	s := &types.Sla{
		ID:            uuid.New(),
		BlueprintID:   blueprintID,
		StateID:       stateID,
		Name:          "sla",
		DurationHours: hours,
		IsActive:      true,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed sla: %v", err)
	}
	return s
}

func SeedSlaEscalation(tb testing.TB, ctx context.Context, tx *gorm.DB, slaID uuid.UUID, trigger string, value *int, order int) *types.SlaEscalation {
	tb.Helper()
	e := &types.SlaEscalation{
		ID:           uuid.New(),
		SlaID:        slaID,
		TriggerType:  trigger,
		TriggerValue: value,
		ActionType:   types.ActionNotifyUser,
		Config:       datatypes.JSON([]byte(`{}`)),
		DisplayOrder: order,
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed sla escalation: %v", err)
	}
	return e
}

func SeedSlaInstance(tb testing.TB, ctx context.Context, tx *gorm.DB, slaID, recordID uuid.UUID, startedAt, deadlineAt time.Time) *types.SlaInstance {
	tb.Helper()
	inst := &types.SlaInstance{
		ID:         uuid.New(),
		SlaID:      slaID,
		RecordID:   recordID,
		StartedAt:  startedAt,
		DeadlineAt: deadlineAt,
		Status:     types.SlaInstanceActive,
	}
	if err := tx.WithContext(ctx).Create(inst).Error; err != nil {
		tb.Fatalf("seed sla instance: %v", err)
	}
	return inst
}

func SeedApproval(tb testing.TB, ctx context.Context, tx *gorm.DB, transitionID uuid.UUID) *types.Approval {
	tb.Helper()
	ap := &types.Approval{
		ID:           uuid.New(),
		TransitionID: transitionID,
		ApprovalType: "specific_users",
		Config:       datatypes.JSON([]byte(`{}`)),
	}
	if err := tx.WithContext(ctx).Create(ap).Error; err != nil {
		tb.Fatalf("seed approval: %v", err)
	}
	return ap
}

func SeedApprovalRequest(tb testing.TB, ctx context.Context, tx *gorm.DB, approvalID, recordID, executionID uuid.UUID) *types.ApprovalRequest {
	tb.Helper()
	req := &types.ApprovalRequest{
		ID:          uuid.New(),
		ApprovalID:  approvalID,
		RecordID:    recordID,
		ExecutionID: executionID,
		RequestedBy: uuid.New(),
		ApproverID:  uuid.New(),
		Status:      types.ApprovalPending,
	}
	if err := tx.WithContext(ctx).Create(req).Error; err != nil {
		tb.Fatalf("seed approval request: %v", err)
	}
	return req
}

func SeedExecution(tb testing.TB, ctx context.Context, tx *gorm.DB, transitionID, recordID, fromID, toID uuid.UUID, status string) *types.TransitionExecution {
	tb.Helper()
	ex := &types.TransitionExecution{
		ID:           uuid.New(),
		TransitionID: transitionID,
		RecordID:     recordID,
		FromStateID:  fromID,
		ToStateID:    toID,
		ExecutedBy:   uuid.New(),
		Status:       status,
		StartedAt:    time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(ex).Error; err != nil {
		tb.Fatalf("seed execution: %v", err)
	}
	return ex
}
