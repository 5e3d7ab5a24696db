package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orbitcrm/blueprint-engine/internal/data/repos"
	types "github.com/orbitcrm/blueprint-engine/internal/domain"
	"github.com/orbitcrm/blueprint-engine/internal/engine"
	"github.com/orbitcrm/blueprint-engine/internal/notify"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/blueprinterr"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/dbctx"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
)

// ApplyResult is the outcome of one transition request. When the transition
// is approval gated the state is unchanged and the execution parks as
// pending_approval until the request resolves.
type ApplyResult struct {
	RecordState     *types.RecordState
	Execution       *types.TransitionExecution
	PendingApproval bool
}

type EngineService interface {
	// InitializeRecord places a record in the blueprint's initial state and
	// starts any SLA clock the initial state carries.
	InitializeRecord(ctx context.Context, blueprintID, recordID uuid.UUID) (*types.RecordState, error)
	// Apply validates and applies one transition. State write, SLA close and
	// SLA open commit atomically; actions run after commit and never roll
	// the transition back.
	Apply(ctx context.Context, blueprintID, recordID, transitionID, actorID uuid.UUID) (*ApplyResult, error)
	// AvailableTransitions lists active transitions out of the record's
	// current state whose conditions hold. Guard failures are silent here.
	AvailableTransitions(ctx context.Context, blueprintID, recordID uuid.UUID) ([]*types.Transition, error)
	TransitionHistory(ctx context.Context, blueprintID, recordID uuid.UUID) ([]*types.TransitionExecution, error)

	// CompleteApprovedExecution finishes a parked execution after approval,
	// applying the state change it was gated on.
	CompleteApprovedExecution(ctx context.Context, executionID uuid.UUID) (*ApplyResult, error)
}

type engineService struct {
	db           *gorm.DB
	log          *logger.Logger
	clock        Clock
	records      RecordStore
	bus          notify.Bus
	states       repos.StateRepo
	transitions  repos.TransitionRepo
	recordStates repos.RecordStateRepo
	executions   repos.ExecutionRepo
	approvals    repos.ApprovalRepo
	requests     repos.ApprovalRequestRepo
	actions      ActionService
	sla          SlaService
}

func NewEngineService(
	db *gorm.DB,
	baseLog *logger.Logger,
	clock Clock,
	records RecordStore,
	bus notify.Bus,
	states repos.StateRepo,
	transitions repos.TransitionRepo,
	recordStates repos.RecordStateRepo,
	executions repos.ExecutionRepo,
	approvals repos.ApprovalRepo,
	requests repos.ApprovalRequestRepo,
	actions ActionService,
	sla SlaService,
) EngineService {
	return &engineService{
		db:           db,
		log:          baseLog.With("service", "EngineService"),
		clock:        clock,
		records:      records,
		bus:          bus,
		states:       states,
		transitions:  transitions,
		recordStates: recordStates,
		executions:   executions,
		approvals:    approvals,
		requests:     requests,
		actions:      actions,
		sla:          sla,
	}
}

func (s *engineService) InitializeRecord(ctx context.Context, blueprintID, recordID uuid.UUID) (*types.RecordState, error) {
	var created *types.RecordState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		existing, err := s.recordStates.GetByBlueprintAndRecord(dbc, blueprintID, recordID)
		if err != nil {
			return err
		}
		if existing != nil {
			created = existing
			return nil
		}

		initial, err := s.states.GetInitial(dbc, blueprintID)
		if err != nil {
			return err
		}
		if initial == nil {
			return fmt.Errorf("blueprint %s has no initial state", blueprintID)
		}

		now := s.clock.Now()
		rows, err := s.recordStates.Create(dbc, []*types.RecordState{{
			BlueprintID:    blueprintID,
			RecordID:       recordID,
			CurrentStateID: initial.ID,
			StateEnteredAt: now,
		}})
		if err != nil {
			return err
		}
		created = rows[0]

		_, err = s.sla.OpenForState(dbc, recordID, initial.ID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// transitionPlan is everything Apply resolves inside the lock and needs
// again after commit.
type transitionPlan struct {
	transition *types.Transition
	execution  *types.TransitionExecution
	actions    []*types.TransitionAction
	snapshot   engine.Snapshot
	parked     bool
}

func (s *engineService) Apply(ctx context.Context, blueprintID, recordID, transitionID, actorID uuid.UUID) (*ApplyResult, error) {
	snapshot, err := s.records.GetSnapshot(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("record snapshot: %w", err)
	}

	var plan transitionPlan
	var resultState *types.RecordState

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		transition, err := s.transitions.GetByID(dbc, transitionID)
		if err != nil {
			return err
		}
		if transition == nil || !transition.IsActive || transition.BlueprintID != blueprintID {
			return blueprinterr.ErrTransitionNotFound
		}

		// the row lock is the per-record mutual exclusion scope; a losing
		// racer re-reads state here and fails the source-state check below
		current, err := s.recordStates.LockByBlueprintAndRecord(dbc, blueprintID, recordID)
		if err != nil {
			return err
		}
		if current == nil {
			return blueprinterr.ErrInvalidSourceState
		}

		currentState, err := s.getState(dbc, current.CurrentStateID)
		if err != nil {
			return err
		}
		if currentState != nil && currentState.IsTerminal && transition.FromStateID != current.CurrentStateID {
			return blueprinterr.ErrRecordIsTerminal
		}
		if transition.FromStateID != current.CurrentStateID {
			return blueprinterr.ErrInvalidSourceState
		}

		conditions, err := s.transitions.ListConditions(dbc, transition.ID)
		if err != nil {
			return err
		}
		if failed := engine.FailedConditions(conditions, snapshot); len(failed) > 0 {
			return &blueprinterr.ConditionNotMetError{Failed: failed}
		}

		now := s.clock.Now()
		execution := &types.TransitionExecution{
			TransitionID: transition.ID,
			RecordID:     recordID,
			FromStateID:  transition.FromStateID,
			ToStateID:    transition.ToStateID,
			ExecutedBy:   actorID,
			Status:       types.ExecutionPending,
			StartedAt:    now,
		}

		approval, err := s.approvals.GetByTransitionID(dbc, transition.ID)
		if err != nil {
			return err
		}
		if approval != nil {
			execution.Status = types.ExecutionPendingApproval
			rows, err := s.executions.Create(dbc, []*types.TransitionExecution{execution})
			if err != nil {
				return err
			}
			execution = rows[0]

			approver := resolveApprover(approval, actorID)
			if _, err := s.requests.Create(dbc, []*types.ApprovalRequest{{
				ApprovalID:  approval.ID,
				RecordID:    recordID,
				ExecutionID: execution.ID,
				RequestedBy: actorID,
				ApproverID:  approver,
				Status:      types.ApprovalPending,
			}}); err != nil {
				return err
			}

			plan = transitionPlan{transition: transition, execution: execution, snapshot: snapshot, parked: true}
			resultState = current
			return nil
		}

		rows, err := s.executions.Create(dbc, []*types.TransitionExecution{execution})
		if err != nil {
			return err
		}
		execution = rows[0]

		newState, err := s.commitStateChange(dbc, current, transition, execution, now)
		if err != nil {
			return err
		}
		resultState = newState

		actions, err := s.transitions.ListActiveActions(dbc, transition.ID)
		if err != nil {
			return err
		}
		plan = transitionPlan{transition: transition, execution: execution, actions: actions, snapshot: snapshot}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if plan.parked {
		s.publish(ctx, notify.Event{
			Type:        notify.EventApprovalRequested,
			BlueprintID: blueprintID,
			RecordID:    recordID,
			Payload:     map[string]interface{}{"execution_id": plan.execution.ID.String(), "transition_id": plan.transition.ID.String()},
		})
		return &ApplyResult{RecordState: resultState, Execution: plan.execution, PendingApproval: true}, nil
	}

	s.dispatchActions(ctx, blueprintID, recordID, actorID, plan)
	return &ApplyResult{RecordState: resultState, Execution: plan.execution}, nil
}

// commitStateChange performs the atomic step: record-state write, SLA close
// for the vacated state, SLA open for the entered state, execution close.
func (s *engineService) commitStateChange(dbc dbctx.Context, current *types.RecordState, transition *types.Transition, execution *types.TransitionExecution, now time.Time) (*types.RecordState, error) {
	if err := s.recordStates.UpdateState(dbc, current.ID, transition.ToStateID, now); err != nil {
		return nil, err
	}
	if err := s.sla.CloseForRecord(dbc, current.RecordID, current.BlueprintID, now); err != nil {
		return nil, err
	}
	if _, err := s.sla.OpenForState(dbc, current.RecordID, transition.ToStateID, now); err != nil {
		return nil, err
	}
	if err := s.executions.UpdateFields(dbc, execution.ID, map[string]interface{}{
		"status":       types.ExecutionCompleted,
		"completed_at": now,
	}); err != nil {
		return nil, err
	}
	execution.Status = types.ExecutionCompleted
	execution.CompletedAt = &now

	updated := *current
	updated.CurrentStateID = transition.ToStateID
	updated.StateEnteredAt = now
	return &updated, nil
}

// dispatchActions runs after the transaction commits so slow collaborators
// never hold the record lock.
func (s *engineService) dispatchActions(ctx context.Context, blueprintID, recordID, actorID uuid.UUID, plan transitionPlan) {
	if len(plan.actions) > 0 {
		s.actions.RunForExecution(ctx, plan.execution.ID, plan.actions, ActionContext{
			BlueprintID:  blueprintID,
			RecordID:     recordID,
			TransitionID: plan.transition.ID,
			ExecutionID:  plan.execution.ID,
			ActorID:      actorID,
			Snapshot:     plan.snapshot,
		})
	}
	s.publish(ctx, notify.Event{
		Type:        notify.EventTransitionApplied,
		BlueprintID: blueprintID,
		RecordID:    recordID,
		Payload: map[string]interface{}{
			"transition_id": plan.transition.ID.String(),
			"to_state_id":   plan.transition.ToStateID.String(),
			"execution_id":  plan.execution.ID.String(),
		},
	})
}

func (s *engineService) CompleteApprovedExecution(ctx context.Context, executionID uuid.UUID) (*ApplyResult, error) {
	var plan transitionPlan
	var resultState *types.RecordState
	var blueprintID, recordID, actorID uuid.UUID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		execs, err := s.executions.GetByIDs(dbc, []uuid.UUID{executionID})
		if err != nil {
			return err
		}
		if len(execs) == 0 || execs[0].Status != types.ExecutionPendingApproval {
			return blueprinterr.ErrExecutionNotPending
		}
		execution := execs[0]

		transition, err := s.transitions.GetByID(dbc, execution.TransitionID)
		if err != nil {
			return err
		}
		if transition == nil {
			return blueprinterr.ErrTransitionNotFound
		}
		blueprintID = transition.BlueprintID
		recordID = execution.RecordID
		actorID = execution.ExecutedBy

		current, err := s.recordStates.LockByBlueprintAndRecord(dbc, blueprintID, recordID)
		if err != nil {
			return err
		}
		// the record may have moved while approval was pending
		if current == nil || current.CurrentStateID != transition.FromStateID {
			if err := s.executions.UpdateFields(dbc, execution.ID, map[string]interface{}{
				"status":        types.ExecutionCancelled,
				"error_message": "record left the source state while approval was pending",
			}); err != nil {
				return err
			}
			return blueprinterr.ErrInvalidSourceState
		}

		now := s.clock.Now()
		newState, err := s.commitStateChange(dbc, current, transition, execution, now)
		if err != nil {
			return err
		}
		resultState = newState

		actions, err := s.transitions.ListActiveActions(dbc, transition.ID)
		if err != nil {
			return err
		}

		plan = transitionPlan{transition: transition, execution: execution, actions: actions}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// snapshot fetched with the record-state lock released; a slow store
	// must not stall transitions contending on that row
	snapshot, err := s.records.GetSnapshot(ctx, recordID)
	if err != nil {
		s.log.Warn("snapshot unavailable for post-approval actions", "record_id", recordID, "error", err)
		snapshot = engine.Snapshot{}
	}
	plan.snapshot = snapshot

	s.dispatchActions(ctx, blueprintID, recordID, actorID, plan)
	return &ApplyResult{RecordState: resultState, Execution: plan.execution}, nil
}

func (s *engineService) AvailableTransitions(ctx context.Context, blueprintID, recordID uuid.UUID) ([]*types.Transition, error) {
	dbc := dbctx.Context{Ctx: ctx}

	current, err := s.recordStates.GetByBlueprintAndRecord(dbc, blueprintID, recordID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return []*types.Transition{}, nil
	}

	candidates, err := s.transitions.ListActiveByFromState(dbc, blueprintID, current.CurrentStateID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []*types.Transition{}, nil
	}

	snapshot, err := s.records.GetSnapshot(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("record snapshot: %w", err)
	}

	out := make([]*types.Transition, 0, len(candidates))
	for _, tr := range candidates {
		conditions, err := s.transitions.ListConditions(dbc, tr.ID)
		if err != nil {
			return nil, err
		}
		if engine.EvaluateConditions(conditions, snapshot) {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (s *engineService) TransitionHistory(ctx context.Context, blueprintID, recordID uuid.UUID) ([]*types.TransitionExecution, error) {
	return s.executions.ListByBlueprintAndRecord(dbctx.Context{Ctx: ctx}, blueprintID, recordID)
}

func (s *engineService) getState(dbc dbctx.Context, id uuid.UUID) (*types.State, error) {
	states, err := s.states.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, nil
	}
	return states[0], nil
}

func (s *engineService) publish(ctx context.Context, evt notify.Event) {
	if s.bus == nil {
		return
	}
	evt.OccurredAt = s.clock.Now()
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.log.Warn("event publish failed", "type", evt.Type, "error", err)
	}
}

// resolveApprover reads the approver from the approval config, falling back
// to the requesting actor when none is configured.
func resolveApprover(approval *types.Approval, fallback uuid.UUID) uuid.UUID {
	if len(approval.Config) == 0 {
		return fallback
	}
	var cfg struct {
		ApproverID  string   `json:"approver_id"`
		ApproverIDs []string `json:"approver_ids"`
	}
	if err := json.Unmarshal(approval.Config, &cfg); err != nil {
		return fallback
	}
	if cfg.ApproverID != "" {
		if id, err := uuid.Parse(cfg.ApproverID); err == nil {
			return id
		}
	}
	if len(cfg.ApproverIDs) > 0 {
		if id, err := uuid.Parse(cfg.ApproverIDs[0]); err == nil {
			return id
		}
	}
	return fallback
}
