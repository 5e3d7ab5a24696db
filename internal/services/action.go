package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/orbitcrm/blueprint-engine/internal/data/repos"
	types "github.com/orbitcrm/blueprint-engine/internal/domain"
	"github.com/orbitcrm/blueprint-engine/internal/engine"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/dbctx"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
	"github.com/orbitcrm/blueprint-engine/internal/utils"
)

// ActionContext carries everything a runner (and config templating) may need
// about the triggering transition.
type ActionContext struct {
	BlueprintID  uuid.UUID
	RecordID     uuid.UUID
	TransitionID uuid.UUID
	ExecutionID  uuid.UUID
	ActorID      uuid.UUID
	Snapshot     engine.Snapshot
}

// ActionRunner executes one action type. Implementations live outside the
// engine; the registry is the only coupling point.
type ActionRunner interface {
	Execute(ctx context.Context, config datatypes.JSON, actx ActionContext) (datatypes.JSON, error)
}

// ActionRunnerFunc adapts a function to ActionRunner.
type ActionRunnerFunc func(ctx context.Context, config datatypes.JSON, actx ActionContext) (datatypes.JSON, error)

func (f ActionRunnerFunc) Execute(ctx context.Context, config datatypes.JSON, actx ActionContext) (datatypes.JSON, error) {
	return f(ctx, config, actx)
}

// ActionRegistry maps action type strings to runners. New action types are
// added by registering a runner, never by branching inside the engine.
type ActionRegistry struct {
	mu      sync.RWMutex
	runners map[string]ActionRunner
}

func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{runners: map[string]ActionRunner{}}
}

func (r *ActionRegistry) Register(actionType string, runner ActionRunner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners[actionType] = runner
}

func (r *ActionRegistry) Resolve(actionType string) (ActionRunner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[actionType]
	return runner, ok
}

// ActionOutcome is the per-action result of one execution run.
type ActionOutcome struct {
	ActionID uuid.UUID
	Status   string
	Result   datatypes.JSON
}

type ActionService interface {
	// RunForExecution runs the actions in display order, writing one
	// ActionLog row per invocation. A failing action is logged and skipped
	// over; it never aborts the remaining actions.
	RunForExecution(ctx context.Context, executionID uuid.UUID, actions []*types.TransitionAction, actx ActionContext) []ActionOutcome
	// RunAction invokes a single action type outside an execution, used by
	// SLA and approval escalations. The caller persists the outcome.
	RunAction(ctx context.Context, actionType string, config datatypes.JSON, actx ActionContext) (datatypes.JSON, error)
}

type actionService struct {
	log      *logger.Logger
	registry *ActionRegistry
	logs     repos.ActionLogRepo
	timeout  time.Duration
}

func NewActionService(baseLog *logger.Logger, registry *ActionRegistry, logs repos.ActionLogRepo) ActionService {
	log := baseLog.With("service", "ActionService")
	timeoutSec := utils.GetEnvAsInt("ACTION_TIMEOUT_SECONDS", 30, log)
	return &actionService{
		log:      log,
		registry: registry,
		logs:     logs,
		timeout:  time.Duration(timeoutSec) * time.Second,
	}
}

func (s *actionService) RunForExecution(ctx context.Context, executionID uuid.UUID, actions []*types.TransitionAction, actx ActionContext) []ActionOutcome {
	outcomes := make([]ActionOutcome, 0, len(actions))
	for _, action := range actions {
		result, err := s.RunAction(ctx, action.Type, action.Config, actx)
		outcome := ActionOutcome{ActionID: action.ID, Status: types.ActionLogSuccess, Result: result}
		if err != nil {
			outcome.Status = types.ActionLogFailed
			outcome.Result = errorPayload(err)
			s.log.Warn("action failed",
				"execution_id", executionID,
				"action_id", action.ID,
				"action_type", action.Type,
				"error", err)
		}

		row := &types.ActionLog{
			ExecutionID: executionID,
			ActionID:    action.ID,
			Status:      outcome.Status,
			Result:      outcome.Result,
			ExecutedAt:  time.Now().UTC(),
		}
		if _, err := s.logs.Create(dbctx.Context{Ctx: ctx}, []*types.ActionLog{row}); err != nil {
			s.log.Error("action log write failed", "execution_id", executionID, "action_id", action.ID, "error", err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (s *actionService) RunAction(ctx context.Context, actionType string, config datatypes.JSON, actx ActionContext) (datatypes.JSON, error) {
	runner, ok := s.registry.Resolve(actionType)
	if !ok {
		return nil, fmt.Errorf("no runner registered for action type %q", actionType)
	}

	rendered := SubstituteVars(config, actx.Snapshot)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return runner.Execute(runCtx, rendered, actx)
}

// SubstituteVars replaces {{field}} tokens in the config payload with the
// snapshot value of that field, JSON-escaped so tokens inside string values
// stay valid.
func SubstituteVars(config datatypes.JSON, snap engine.Snapshot) datatypes.JSON {
	if len(config) == 0 || len(snap) == 0 {
		return config
	}
	text := string(config)
	if !strings.Contains(text, "{{") {
		return config
	}
	for field, value := range snap {
		token := "{{" + field + "}}"
		if !strings.Contains(text, token) {
			continue
		}
		text = strings.ReplaceAll(text, token, jsonEscape(value))
	}
	return datatypes.JSON([]byte(text))
}

func jsonEscape(v interface{}) string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case nil:
		s = ""
	default:
		s = fmt.Sprintf("%v", t)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	// strip the surrounding quotes; tokens sit inside JSON strings already
	return strings.Trim(string(raw), `"`)
}

func errorPayload(err error) datatypes.JSON {
	raw, mErr := json.Marshal(map[string]string{"error": err.Error()})
	if mErr != nil {
		return datatypes.JSON([]byte(`{"error":"action failed"}`))
	}
	return datatypes.JSON(raw)
}
