package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/orbitcrm/blueprint-engine/internal/data/repos"
	types "github.com/orbitcrm/blueprint-engine/internal/domain"
	"github.com/orbitcrm/blueprint-engine/internal/notify"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/blueprinterr"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/dbctx"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
)

type ApprovalService interface {
	// Respond resolves a pending request. Approval completes the parked
	// execution and applies the gated state change; rejection fails it.
	Respond(ctx context.Context, requestID, responderID uuid.UUID, approve bool, comments string) (*ApplyResult, error)
	// Reassign hands a pending request to a different approver.
	Reassign(ctx context.Context, requestID, newApproverID uuid.UUID) error
	// RunOverdueSweep walks pending requests and fires the highest due
	// ladder stage for each, at most once per (request, stage). AutoReject
	// is terminal: it expires the request and cancels the execution, and no
	// later stage fires for that request.
	RunOverdueSweep(ctx context.Context, now time.Time) (SweepReport, error)
}

type approvalService struct {
	db         *gorm.DB
	log        *logger.Logger
	clock      Clock
	bus        notify.Bus
	approvals  repos.ApprovalRepo
	requests   repos.ApprovalRequestRepo
	logs       repos.ApprovalEscalationLogRepo
	executions repos.ExecutionRepo
	engine     EngineService
}

func NewApprovalService(
	db *gorm.DB,
	baseLog *logger.Logger,
	clock Clock,
	bus notify.Bus,
	approvals repos.ApprovalRepo,
	requests repos.ApprovalRequestRepo,
	logs repos.ApprovalEscalationLogRepo,
	executions repos.ExecutionRepo,
	engine EngineService,
) ApprovalService {
	return &approvalService{
		db:         db,
		log:        baseLog.With("service", "ApprovalService"),
		clock:      clock,
		bus:        bus,
		approvals:  approvals,
		requests:   requests,
		logs:       logs,
		executions: executions,
		engine:     engine,
	}
}

func (s *approvalService) Respond(ctx context.Context, requestID, responderID uuid.UUID, approve bool, comments string) (*ApplyResult, error) {
	var executionID uuid.UUID
	var recordID uuid.UUID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		request, err := s.requests.LockPendingByID(dbc, requestID)
		if err != nil {
			return err
		}
		if request == nil {
			return blueprinterr.ErrApprovalNotPending
		}
		executionID = request.ExecutionID
		recordID = request.RecordID

		status := types.ApprovalApproved
		if !approve {
			status = types.ApprovalRejected
		}
		now := s.clock.Now()
		if err := s.requests.UpdateFields(dbc, request.ID, map[string]interface{}{
			"status":       status,
			"responded_by": responderID,
			"responded_at": now,
			"comments":     comments,
		}); err != nil {
			return err
		}

		if !approve {
			_, err := s.executions.UpdateFieldsIfStatus(dbc, executionID, types.ExecutionPendingApproval, map[string]interface{}{
				"status":        types.ExecutionFailed,
				"completed_at":  now,
				"error_message": "approval rejected",
			})
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notify.Event{
		Type:     notify.EventApprovalResolved,
		RecordID: recordID,
		Payload: map[string]interface{}{
			"approval_request_id": requestID.String(),
			"approved":            approve,
		},
	})

	if !approve {
		return &ApplyResult{}, nil
	}

	result, err := s.engine.CompleteApprovedExecution(ctx, executionID)
	if errors.Is(err, blueprinterr.ErrInvalidSourceState) {
		// the record moved on while the request was pending; the approval
		// stands resolved but the gated transition is void
		s.log.Warn("approved execution no longer applicable", "execution_id", executionID)
		return &ApplyResult{}, err
	}
	return result, err
}

func (s *approvalService) Reassign(ctx context.Context, requestID, newApproverID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		request, err := s.requests.LockPendingByID(dbc, requestID)
		if err != nil {
			return err
		}
		if request == nil {
			return blueprinterr.ErrApprovalNotPending
		}
		return s.requests.UpdateFields(dbc, request.ID, map[string]interface{}{
			"approver_id": newApproverID,
		})
	})
}

func (s *approvalService) RunOverdueSweep(ctx context.Context, now time.Time) (SweepReport, error) {
	pending, err := s.requests.ListPending(dbctx.Context{Ctx: ctx})
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Checked: len(pending)}
	for _, request := range pending {
		fired, stage, err := s.sweepRequest(ctx, request, now)
		if err != nil {
			report.Errors++
			s.log.Warn("approval sweep failed for request", "approval_request_id", request.ID, "error", err)
			continue
		}
		if fired {
			report.Fired++
			s.publish(ctx, notify.Event{
				Type:     notify.EventApprovalEscalated,
				RecordID: request.RecordID,
				Payload: map[string]interface{}{
					"approval_request_id": request.ID.String(),
					"stage":               stage,
				},
			})
		} else if stage != "" {
			report.Skipped++
		}
	}
	return report, nil
}

// sweepRequest fires the highest due ladder stage: auto_reject over escalate
// over reminder. Returns the stage considered and whether this call fired it.
func (s *approvalService) sweepRequest(ctx context.Context, request *types.ApprovalRequest, now time.Time) (bool, string, error) {
	dbc := dbctx.Context{Ctx: ctx}

	approvals, err := s.approvals.GetByIDs(dbc, []uuid.UUID{request.ApprovalID})
	if err != nil || len(approvals) == 0 {
		return false, "", err
	}
	approval := approvals[0]
	age := now.Sub(request.CreatedAt)

	// auto_reject is terminal; once logged nothing else ever fires
	rejected, err := s.logs.Exists(dbc, request.ID, types.StageAutoReject)
	if err != nil {
		return false, "", err
	}
	if rejected {
		return false, "", nil
	}

	if approval.AutoRejectDays != nil && age >= time.Duration(*approval.AutoRejectDays)*24*time.Hour {
		fired, err := s.fireStage(ctx, request, types.StageAutoReject, func(dbc dbctx.Context) error {
			if err := s.requests.UpdateFields(dbc, request.ID, map[string]interface{}{
				"status":       types.ApprovalExpired,
				"responded_at": now,
				"comments":     "auto-rejected: approval window elapsed",
			}); err != nil {
				return err
			}
			_, err := s.executions.UpdateFieldsIfStatus(dbc, request.ExecutionID, types.ExecutionPendingApproval, map[string]interface{}{
				"status":        types.ExecutionCancelled,
				"completed_at":  now,
				"error_message": "approval auto-rejected",
			})
			return err
		})
		return fired, types.StageAutoReject, err
	}

	if approval.EscalationHours != nil && age >= time.Duration(*approval.EscalationHours)*time.Hour {
		fired, err := s.fireStage(ctx, request, types.StageEscalate, nil)
		return fired, types.StageEscalate, err
	}

	if approval.ReminderHours != nil && age >= time.Duration(*approval.ReminderHours)*time.Hour {
		fired, err := s.fireStage(ctx, request, types.StageReminder, nil)
		return fired, types.StageReminder, err
	}

	return false, "", nil
}

// fireStage claims one (request, stage) pair under the request row lock,
// applies the optional stage mutation, and writes the log row. The unique
// (approval_request_id, stage) index backstops concurrent sweeps.
func (s *approvalService) fireStage(ctx context.Context, request *types.ApprovalRequest, stage string, mutate func(dbctx.Context) error) (bool, error) {
	fired := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		locked, err := s.requests.LockPendingByID(dbc, request.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			// resolved since the sweep listed it
			return nil
		}
		already, err := s.logs.Exists(dbc, request.ID, stage)
		if err != nil {
			return err
		}
		if already {
			return nil
		}

		if mutate != nil {
			if err := mutate(dbc); err != nil {
				return err
			}
		}

		inserted, err := s.logs.InsertOnce(dbc, &types.ApprovalEscalationLog{
			ApprovalRequestID: request.ID,
			Stage:             stage,
			ExecutedAt:        time.Now().UTC(),
			Status:            types.ActionLogSuccess,
			Result:            stagePayload(stage),
		})
		if err != nil {
			return err
		}
		fired = inserted
		return nil
	})
	return fired, err
}

func stagePayload(stage string) datatypes.JSON {
	raw, err := json.Marshal(map[string]string{"stage": stage})
	if err != nil {
		return datatypes.JSON([]byte(`{}`))
	}
	return datatypes.JSON(raw)
}

func (s *approvalService) publish(ctx context.Context, evt notify.Event) {
	if s.bus == nil {
		return
	}
	evt.OccurredAt = s.clock.Now()
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.log.Warn("event publish failed", "type", evt.Type, "error", err)
	}
}
