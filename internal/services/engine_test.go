package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/orbitcrm/blueprint-engine/internal/data/repos/testutil"
	types "github.com/orbitcrm/blueprint-engine/internal/domain"
	"github.com/orbitcrm/blueprint-engine/internal/engine"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/blueprinterr"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/dbctx"
)

// seeds the Draft -> Review -> Approved(terminal) graph from the happy-path
// scenario.
type reviewFlow struct {
	bp            *types.Blueprint
	draft         *types.State
	review        *types.State
	approved      *types.State
	toReview      *types.Transition
	toApproved    *types.Transition
	recordID      uuid.UUID
	actorID       uuid.UUID
}

func seedReviewFlow(t *testing.T, h *harness) *reviewFlow {
	t.Helper()
	ctx := context.Background()

	bp := testutil.SeedBlueprint(t, ctx, h.tx, "deal review")
	draft := testutil.SeedState(t, ctx, h.tx, bp.ID, "Draft", true, false)
	review := testutil.SeedState(t, ctx, h.tx, bp.ID, "Review", false, false)
	approved := testutil.SeedState(t, ctx, h.tx, bp.ID, "Approved", false, true)

	toReview := testutil.SeedTransition(t, ctx, h.tx, bp.ID, draft.ID, review.ID, "Submit for review")
	toApproved := testutil.SeedTransition(t, ctx, h.tx, bp.ID, review.ID, approved.ID, "Approve")
	testutil.SeedCondition(t, ctx, h.tx, toApproved.ID, "approved_by_manager", types.OperatorEquals, "true", types.LogicalGroupAnd)

	return &reviewFlow{
		bp:         bp,
		draft:      draft,
		review:     review,
		approved:   approved,
		toReview:   toReview,
		toApproved: toApproved,
		recordID:   uuid.New(),
		actorID:    uuid.New(),
	}
}

func TestEngineHappyPathWithSlaBreach(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	flow := seedReviewFlow(t, h)

	sla := testutil.SeedSla(t, ctx, h.tx, flow.bp.ID, flow.review.ID, 24)
	rule := testutil.SeedSlaEscalation(t, ctx, h.tx, sla.ID, types.TriggerBreached, nil, 0)

	if _, err := h.engine.InitializeRecord(ctx, flow.bp.ID, flow.recordID); err != nil {
		t.Fatalf("InitializeRecord: %v", err)
	}

	result, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, flow.toReview.ID, flow.actorID)
	if err != nil {
		t.Fatalf("Apply to Review: %v", err)
	}
	if result.RecordState.CurrentStateID != flow.review.ID {
		t.Fatalf("current state = %v, want Review", result.RecordState.CurrentStateID)
	}

	open, err := h.instances.ListOpenByRecordAndBlueprint(dbctx.Context{Ctx: ctx, Tx: h.tx}, flow.recordID, flow.bp.ID)
	if err != nil || len(open) != 1 {
		t.Fatalf("open instances: err=%v len=%d", err, len(open))
	}
	wantDeadline := h.clock.Now().Add(24 * time.Hour)
	if !open[0].DeadlineAt.Equal(wantDeadline) {
		t.Fatalf("deadline = %v, want %v", open[0].DeadlineAt, wantDeadline)
	}

	// 25 simulated hours with no further transition
	h.clock.Advance(25 * time.Hour)

	statuses, err := h.sla.GetSlaStatus(ctx, flow.bp.ID, flow.recordID)
	if err != nil || len(statuses) != 1 {
		t.Fatalf("GetSlaStatus: err=%v len=%d", err, len(statuses))
	}
	if !statuses[0].Breached {
		t.Fatalf("expected breached status, got %+v", statuses[0])
	}
	if statuses[0].PercentElapsed < 100 {
		t.Fatalf("percent elapsed = %f, want >= 100", statuses[0].PercentElapsed)
	}

	report, err := h.escalations.RunSweep(ctx, h.clock.Now())
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if report.Fired != 1 {
		t.Fatalf("fired = %d, want 1 (report %+v)", report.Fired, report)
	}
	if h.runner.Calls() != 1 {
		t.Fatalf("runner calls = %d, want 1", h.runner.Calls())
	}

	// repeated sweeps never fire the same rule again
	for i := 0; i < 3; i++ {
		report, err = h.escalations.RunSweep(ctx, h.clock.Now())
		if err != nil {
			t.Fatalf("RunSweep #%d: %v", i+2, err)
		}
		if report.Fired != 0 {
			t.Fatalf("sweep #%d fired = %d, want 0", i+2, report.Fired)
		}
	}
	if h.runner.Calls() != 1 {
		t.Fatalf("runner calls after repeats = %d, want 1", h.runner.Calls())
	}

	logs, err := h.escLogs.ListByInstanceIDs(dbctx.Context{Ctx: ctx, Tx: h.tx}, []uuid.UUID{open[0].ID})
	if err != nil || len(logs) != 1 {
		t.Fatalf("escalation logs: err=%v len=%d", err, len(logs))
	}
	if logs[0].EscalationID != rule.ID {
		t.Fatalf("log escalation = %v, want %v", logs[0].EscalationID, rule.ID)
	}
}

func TestEngineConditionGating(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	flow := seedReviewFlow(t, h)

	if _, err := h.engine.InitializeRecord(ctx, flow.bp.ID, flow.recordID); err != nil {
		t.Fatalf("InitializeRecord: %v", err)
	}
	if _, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, flow.toReview.ID, flow.actorID); err != nil {
		t.Fatalf("Apply to Review: %v", err)
	}

	h.store.Set(flow.recordID, engine.Snapshot{"approved_by_manager": false})
	_, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, flow.toApproved.ID, flow.actorID)
	if !errors.Is(err, blueprinterr.ErrConditionNotMet) {
		t.Fatalf("err = %v, want ErrConditionNotMet", err)
	}

	h.store.Set(flow.recordID, engine.Snapshot{"approved_by_manager": true})
	result, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, flow.toApproved.ID, flow.actorID)
	if err != nil {
		t.Fatalf("Apply to Approved: %v", err)
	}
	if result.RecordState.CurrentStateID != flow.approved.ID {
		t.Fatalf("current state = %v, want Approved", result.RecordState.CurrentStateID)
	}
}

func TestEngineTerminalLock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	flow := seedReviewFlow(t, h)

	if _, err := h.engine.InitializeRecord(ctx, flow.bp.ID, flow.recordID); err != nil {
		t.Fatalf("InitializeRecord: %v", err)
	}
	if _, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, flow.toReview.ID, flow.actorID); err != nil {
		t.Fatalf("Apply to Review: %v", err)
	}
	h.store.Set(flow.recordID, engine.Snapshot{"approved_by_manager": true})
	if _, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, flow.toApproved.ID, flow.actorID); err != nil {
		t.Fatalf("Apply to Approved: %v", err)
	}

	// every transition id now fails, including ones targeting Approved
	for _, tr := range []uuid.UUID{flow.toReview.ID, flow.toApproved.ID} {
		_, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, tr, flow.actorID)
		if !errors.Is(err, blueprinterr.ErrRecordIsTerminal) {
			t.Fatalf("transition %v: err = %v, want ErrRecordIsTerminal", tr, err)
		}
	}
}

func TestEngineTransitionNotFoundAndInvalidSource(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	flow := seedReviewFlow(t, h)

	if _, err := h.engine.InitializeRecord(ctx, flow.bp.ID, flow.recordID); err != nil {
		t.Fatalf("InitializeRecord: %v", err)
	}

	_, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, uuid.New(), flow.actorID)
	if !errors.Is(err, blueprinterr.ErrTransitionNotFound) {
		t.Fatalf("unknown transition: err = %v, want ErrTransitionNotFound", err)
	}

	// record sits in Draft; the Review->Approved edge does not apply
	_, err = h.engine.Apply(ctx, flow.bp.ID, flow.recordID, flow.toApproved.ID, flow.actorID)
	if !errors.Is(err, blueprinterr.ErrInvalidSourceState) {
		t.Fatalf("stale source: err = %v, want ErrInvalidSourceState", err)
	}
}

func TestEngineAvailableTransitionsFiltersSilently(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	flow := seedReviewFlow(t, h)

	if _, err := h.engine.InitializeRecord(ctx, flow.bp.ID, flow.recordID); err != nil {
		t.Fatalf("InitializeRecord: %v", err)
	}
	if _, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, flow.toReview.ID, flow.actorID); err != nil {
		t.Fatalf("Apply to Review: %v", err)
	}

	h.store.Set(flow.recordID, engine.Snapshot{"approved_by_manager": false})
	available, err := h.engine.AvailableTransitions(ctx, flow.bp.ID, flow.recordID)
	if err != nil {
		t.Fatalf("AvailableTransitions: %v", err)
	}
	if len(available) != 0 {
		t.Fatalf("available = %d transitions, want 0", len(available))
	}

	h.store.Set(flow.recordID, engine.Snapshot{"approved_by_manager": true})
	available, err = h.engine.AvailableTransitions(ctx, flow.bp.ID, flow.recordID)
	if err != nil {
		t.Fatalf("AvailableTransitions: %v", err)
	}
	if len(available) != 1 || available[0].ID != flow.toApproved.ID {
		t.Fatalf("available = %v, want the Approve transition", available)
	}
}

func TestEngineSelfLoopResetsSlaClock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	flow := seedReviewFlow(t, h)

	retry := testutil.SeedTransition(t, ctx, h.tx, flow.bp.ID, flow.review.ID, flow.review.ID, "Re-review")
	testutil.SeedSla(t, ctx, h.tx, flow.bp.ID, flow.review.ID, 24)

	if _, err := h.engine.InitializeRecord(ctx, flow.bp.ID, flow.recordID); err != nil {
		t.Fatalf("InitializeRecord: %v", err)
	}
	if _, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, flow.toReview.ID, flow.actorID); err != nil {
		t.Fatalf("Apply to Review: %v", err)
	}

	h.clock.Advance(10 * time.Hour)
	result, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, retry.ID, flow.actorID)
	if err != nil {
		t.Fatalf("self-loop apply: %v", err)
	}
	if result.RecordState.CurrentStateID != flow.review.ID {
		t.Fatalf("state after self-loop = %v, want Review", result.RecordState.CurrentStateID)
	}
	if !result.RecordState.StateEnteredAt.Equal(h.clock.Now()) {
		t.Fatalf("state_entered_at not reset: %v", result.RecordState.StateEnteredAt)
	}

	open, err := h.instances.ListOpenByRecordAndBlueprint(dbctx.Context{Ctx: ctx, Tx: h.tx}, flow.recordID, flow.bp.ID)
	if err != nil || len(open) != 1 {
		t.Fatalf("open instances: err=%v len=%d", err, len(open))
	}
	if !open[0].StartedAt.Equal(h.clock.Now()) {
		t.Fatalf("sla clock not reset: started_at = %v", open[0].StartedAt)
	}
}

func TestEngineActionFailureIsolation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	flow := seedReviewFlow(t, h)

	failing := &recordingRunner{fail: true}
	h.registry.Register("send_email", failing)
	testutil.SeedAction(t, ctx, h.tx, flow.toReview.ID, types.ActionSendEmail, 0)
	testutil.SeedAction(t, ctx, h.tx, flow.toReview.ID, types.ActionNotifyUser, 1)

	if _, err := h.engine.InitializeRecord(ctx, flow.bp.ID, flow.recordID); err != nil {
		t.Fatalf("InitializeRecord: %v", err)
	}
	result, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, flow.toReview.ID, flow.actorID)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.RecordState.CurrentStateID != flow.review.ID {
		t.Fatal("failed action must not roll back the transition")
	}
	if h.runner.Calls() != 1 {
		t.Fatalf("second action ran %d times, want 1", h.runner.Calls())
	}

	logs, err := h.actionLogs.ListByExecutionID(dbctx.Context{Ctx: ctx, Tx: h.tx}, result.Execution.ID)
	if err != nil || len(logs) != 2 {
		t.Fatalf("action logs: err=%v len=%d", err, len(logs))
	}
	if logs[0].Status != types.ActionLogFailed {
		t.Fatalf("first action status = %s, want failed", logs[0].Status)
	}
	if logs[1].Status != types.ActionLogSuccess {
		t.Fatalf("second action status = %s, want success", logs[1].Status)
	}
}

func TestEngineTransitionHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	flow := seedReviewFlow(t, h)

	if _, err := h.engine.InitializeRecord(ctx, flow.bp.ID, flow.recordID); err != nil {
		t.Fatalf("InitializeRecord: %v", err)
	}
	if _, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, flow.toReview.ID, flow.actorID); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	history, err := h.engine.TransitionHistory(ctx, flow.bp.ID, flow.recordID)
	if err != nil {
		t.Fatalf("TransitionHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history len = %d, want 1", len(history))
	}
	if history[0].Status != types.ExecutionCompleted {
		t.Fatalf("execution status = %s, want completed", history[0].Status)
	}
}

func TestEngineSlaApproachingEscalation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	flow := seedReviewFlow(t, h)

	sla := testutil.SeedSla(t, ctx, h.tx, flow.bp.ID, flow.review.ID, 24)
	testutil.SeedSlaEscalation(t, ctx, h.tx, sla.ID, types.TriggerApproaching, testutil.PtrInt(50), 0)

	if _, err := h.engine.InitializeRecord(ctx, flow.bp.ID, flow.recordID); err != nil {
		t.Fatalf("InitializeRecord: %v", err)
	}
	if _, err := h.engine.Apply(ctx, flow.bp.ID, flow.recordID, flow.toReview.ID, flow.actorID); err != nil {
		t.Fatalf("Apply to Review: %v", err)
	}

	// 25% elapsed: under the threshold
	h.clock.Advance(6 * time.Hour)
	report, err := h.escalations.RunSweep(ctx, h.clock.Now())
	if err != nil || report.Fired != 0 {
		t.Fatalf("early sweep: err=%v fired=%d", err, report.Fired)
	}

	// 54% elapsed: over the threshold, well before the deadline
	h.clock.Advance(7 * time.Hour)
	report, err = h.escalations.RunSweep(ctx, h.clock.Now())
	if err != nil || report.Fired != 1 {
		t.Fatalf("due sweep: err=%v fired=%d (report %+v)", err, report.Fired, report)
	}
	if report.BreachesMarked != 0 {
		t.Fatalf("breaches marked = %d, want 0", report.BreachesMarked)
	}

	report, err = h.escalations.RunSweep(ctx, h.clock.Now())
	if err != nil || report.Fired != 0 {
		t.Fatalf("repeat sweep: err=%v fired=%d", err, report.Fired)
	}

	open, err := h.instances.ListOpenByRecordAndBlueprint(dbctx.Context{Ctx: ctx, Tx: h.tx}, flow.recordID, flow.bp.ID)
	if err != nil || len(open) != 1 {
		t.Fatalf("open instances: err=%v len=%d", err, len(open))
	}
	if open[0].Status != types.SlaInstanceActive {
		t.Fatalf("instance status = %s, want active", open[0].Status)
	}
}
