package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/orbitcrm/blueprint-engine/internal/data/repos/testutil"
	types "github.com/orbitcrm/blueprint-engine/internal/domain"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/blueprinterr"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/dbctx"
)

func TestApprovalGatedTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	flow := seedReviewFlow(t, h)

	testutil.SeedApproval(t, ctx, h.tx, flow.toReview.ID)

	if _, err := h.engine.InitializeRecord(ctx, flow.bp.ID, flow.recordID); err != nil {
		t.Fatalf("InitializeRecord: %v", err)
	}

	result, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, flow.toReview.ID, flow.actorID)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !result.PendingApproval {
		t.Fatal("expected the execution to park as pending approval")
	}
	if result.RecordState.CurrentStateID != flow.draft.ID {
		t.Fatal("state must not change while approval is pending")
	}
	if result.Execution.Status != types.ExecutionPendingApproval {
		t.Fatalf("execution status = %s, want pending_approval", result.Execution.Status)
	}

	request, err := h.requests.GetByExecutionID(dbctx.Context{Ctx: ctx, Tx: h.tx}, result.Execution.ID)
	if err != nil || request == nil {
		t.Fatalf("approval request: %v %v", request, err)
	}
	if request.Status != types.ApprovalPending {
		t.Fatalf("request status = %s, want pending", request.Status)
	}

	// approve: the gated state change applies now
	applied, err := h.approvals.Respond(ctx, request.ID, uuid.New(), true, "looks good")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if applied.RecordState == nil || applied.RecordState.CurrentStateID != flow.review.ID {
		t.Fatalf("state after approval = %+v, want Review", applied.RecordState)
	}

	// a second response hits a resolved request
	if _, err := h.approvals.Respond(ctx, request.ID, uuid.New(), true, ""); !errors.Is(err, blueprinterr.ErrApprovalNotPending) {
		t.Fatalf("second respond err = %v, want ErrApprovalNotPending", err)
	}
}

func TestApprovalRejection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	flow := seedReviewFlow(t, h)

	testutil.SeedApproval(t, ctx, h.tx, flow.toReview.ID)

	if _, err := h.engine.InitializeRecord(ctx, flow.bp.ID, flow.recordID); err != nil {
		t.Fatalf("InitializeRecord: %v", err)
	}
	result, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, flow.toReview.ID, flow.actorID)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	request, err := h.requests.GetByExecutionID(dbctx.Context{Ctx: ctx, Tx: h.tx}, result.Execution.ID)
	if err != nil || request == nil {
		t.Fatalf("approval request: %v %v", request, err)
	}

	if _, err := h.approvals.Respond(ctx, request.ID, uuid.New(), false, "not yet"); err != nil {
		t.Fatalf("Respond reject: %v", err)
	}

	execs, err := h.executions.GetByIDs(dbctx.Context{Ctx: ctx, Tx: h.tx}, []uuid.UUID{result.Execution.ID})
	if err != nil || len(execs) != 1 {
		t.Fatalf("execution lookup: err=%v len=%d", err, len(execs))
	}
	if execs[0].Status != types.ExecutionFailed {
		t.Fatalf("execution status = %s, want failed", execs[0].Status)
	}

	// the record never left Draft; the edge is still applicable
	available, err := h.engine.AvailableTransitions(ctx, flow.bp.ID, flow.recordID)
	if err != nil || len(available) != 1 {
		t.Fatalf("available: err=%v len=%d", err, len(available))
	}
}

func TestApprovalAutoRejectTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	flow := seedReviewFlow(t, h)

	approval := testutil.SeedApproval(t, ctx, h.tx, flow.toReview.ID)
	if err := h.tx.Model(approval).Updates(map[string]interface{}{
		"reminder_hours":   1,
		"escalation_hours": 4,
		"auto_reject_days": 1,
	}).Error; err != nil {
		t.Fatalf("configure ladder: %v", err)
	}

	if _, err := h.engine.InitializeRecord(ctx, flow.bp.ID, flow.recordID); err != nil {
		t.Fatalf("InitializeRecord: %v", err)
	}
	result, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, flow.toReview.ID, flow.actorID)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	request, err := h.requests.GetByExecutionID(dbctx.Context{Ctx: ctx, Tx: h.tx}, result.Execution.ID)
	if err != nil || request == nil {
		t.Fatalf("approval request: %v %v", request, err)
	}

	// two days later the auto-reject stage wins over reminder and escalate
	report, err := h.approvals.RunOverdueSweep(ctx, request.CreatedAt.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("RunOverdueSweep: %v", err)
	}
	if report.Fired != 1 {
		t.Fatalf("fired = %d, want 1 (report %+v)", report.Fired, report)
	}

	requests, err := h.requests.GetByIDs(dbctx.Context{Ctx: ctx, Tx: h.tx}, []uuid.UUID{request.ID})
	if err != nil || len(requests) != 1 {
		t.Fatalf("request lookup: err=%v len=%d", err, len(requests))
	}
	if requests[0].Status != types.ApprovalExpired {
		t.Fatalf("request status = %s, want expired", requests[0].Status)
	}

	execs, err := h.executions.GetByIDs(dbctx.Context{Ctx: ctx, Tx: h.tx}, []uuid.UUID{result.Execution.ID})
	if err != nil || len(execs) != 1 {
		t.Fatalf("execution lookup: err=%v len=%d", err, len(execs))
	}
	if execs[0].Status != types.ExecutionCancelled {
		t.Fatalf("execution status = %s, want cancelled", execs[0].Status)
	}

	// auto_reject is terminal; later sweeps fire nothing for this request
	report, err = h.approvals.RunOverdueSweep(ctx, request.CreatedAt.Add(96*time.Hour))
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if report.Fired != 0 {
		t.Fatalf("second sweep fired = %d, want 0", report.Fired)
	}

	logs, err := h.apprLogs.ListByRequestIDs(dbctx.Context{Ctx: ctx, Tx: h.tx}, []uuid.UUID{request.ID})
	if err != nil || len(logs) != 1 {
		t.Fatalf("ladder logs: err=%v len=%d", err, len(logs))
	}
	if logs[0].Stage != types.StageAutoReject {
		t.Fatalf("stage = %s, want auto_reject", logs[0].Stage)
	}
}

func TestApprovalReminderFiresOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	flow := seedReviewFlow(t, h)

	approval := testutil.SeedApproval(t, ctx, h.tx, flow.toReview.ID)
	if err := h.tx.Model(approval).Updates(map[string]interface{}{
		"reminder_hours": 2,
	}).Error; err != nil {
		t.Fatalf("configure ladder: %v", err)
	}

	if _, err := h.engine.InitializeRecord(ctx, flow.bp.ID, flow.recordID); err != nil {
		t.Fatalf("InitializeRecord: %v", err)
	}
	result, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, flow.toReview.ID, flow.actorID)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	request, err := h.requests.GetByExecutionID(dbctx.Context{Ctx: ctx, Tx: h.tx}, result.Execution.ID)
	if err != nil || request == nil {
		t.Fatalf("approval request: %v %v", request, err)
	}

	// not yet due
	report, err := h.approvals.RunOverdueSweep(ctx, request.CreatedAt.Add(time.Hour))
	if err != nil || report.Fired != 0 {
		t.Fatalf("early sweep: err=%v fired=%d", err, report.Fired)
	}

	report, err = h.approvals.RunOverdueSweep(ctx, request.CreatedAt.Add(3*time.Hour))
	if err != nil || report.Fired != 1 {
		t.Fatalf("due sweep: err=%v fired=%d", err, report.Fired)
	}

	report, err = h.approvals.RunOverdueSweep(ctx, request.CreatedAt.Add(3*time.Hour))
	if err != nil || report.Fired != 0 {
		t.Fatalf("repeat sweep: err=%v fired=%d", err, report.Fired)
	}
}

func TestApprovalReassign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	flow := seedReviewFlow(t, h)

	testutil.SeedApproval(t, ctx, h.tx, flow.toReview.ID)

	if _, err := h.engine.InitializeRecord(ctx, flow.bp.ID, flow.recordID); err != nil {
		t.Fatalf("InitializeRecord: %v", err)
	}
	result, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, flow.toReview.ID, flow.actorID)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	request, err := h.requests.GetByExecutionID(dbctx.Context{Ctx: ctx, Tx: h.tx}, result.Execution.ID)
	if err != nil || request == nil {
		t.Fatalf("approval request: %v %v", request, err)
	}

	newApprover := uuid.New()
	if err := h.approvals.Reassign(ctx, request.ID, newApprover); err != nil {
		t.Fatalf("Reassign: %v", err)
	}

	requests, err := h.requests.GetByIDs(dbctx.Context{Ctx: ctx, Tx: h.tx}, []uuid.UUID{request.ID})
	if err != nil || len(requests) != 1 {
		t.Fatalf("request lookup: err=%v len=%d", err, len(requests))
	}
	if requests[0].ApproverID != newApprover {
		t.Fatalf("approver = %v, want %v", requests[0].ApproverID, newApprover)
	}
}
