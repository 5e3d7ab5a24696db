package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/orbitcrm/blueprint-engine/internal/data/repos"
	types "github.com/orbitcrm/blueprint-engine/internal/domain"
	"github.com/orbitcrm/blueprint-engine/internal/engine"
	"github.com/orbitcrm/blueprint-engine/internal/notify"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/dbctx"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
	"github.com/orbitcrm/blueprint-engine/internal/utils"
)

// SweepReport aggregates one escalation sweep. Per-instance failures land in
// Errors without aborting the rest of the sweep.
type SweepReport struct {
	Checked        int
	Fired          int
	Skipped        int
	BreachesMarked int
	Errors         int
}

type EscalationService interface {
	// RunSweep walks every open SLA instance and fires each due escalation
	// rule at most once. Safe to run from multiple workers concurrently;
	// the unique (instance, escalation) log index is the sole duplicate
	// guard, so no in-process state survives between sweeps.
	RunSweep(ctx context.Context, now time.Time) (SweepReport, error)
}

type escalationService struct {
	db        *gorm.DB
	log       *logger.Logger
	records   RecordStore
	bus       notify.Bus
	slas      repos.SlaRepo
	instances repos.SlaInstanceRepo
	logs      repos.SlaEscalationLogRepo
	actions   ActionService
	sla       SlaService
	workers   int
}

func NewEscalationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	records RecordStore,
	bus notify.Bus,
	slas repos.SlaRepo,
	instances repos.SlaInstanceRepo,
	logs repos.SlaEscalationLogRepo,
	actions ActionService,
	sla SlaService,
) EscalationService {
	log := baseLog.With("service", "EscalationService")
	return &escalationService{
		db:        db,
		log:       log,
		records:   records,
		bus:       bus,
		slas:      slas,
		instances: instances,
		logs:      logs,
		actions:   actions,
		sla:       sla,
		workers:   utils.GetEnvAsInt("SWEEP_WORKERS", 4, log),
	}
}

func (s *escalationService) RunSweep(ctx context.Context, now time.Time) (SweepReport, error) {
	open, err := s.instances.ListOpen(dbctx.Context{Ctx: ctx})
	if err != nil {
		return SweepReport{}, err
	}

	var mu sync.Mutex
	report := SweepReport{Checked: len(open)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, inst := range open {
		inst := inst
		g.Go(func() error {
			r, err := s.sweepInstance(gctx, inst, now)
			mu.Lock()
			defer mu.Unlock()
			report.Fired += r.Fired
			report.Skipped += r.Skipped
			report.BreachesMarked += r.BreachesMarked
			if err != nil {
				report.Errors++
				s.log.Warn("sweep instance failed", "sla_instance_id", inst.ID, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

func (s *escalationService) sweepInstance(ctx context.Context, inst *types.SlaInstance, now time.Time) (SweepReport, error) {
	var report SweepReport
	dbc := dbctx.Context{Ctx: ctx}

	slas, err := s.slas.GetByIDs(dbc, []uuid.UUID{inst.SlaID})
	if err != nil || len(slas) == 0 {
		return report, err
	}
	sla := slas[0]

	rules, err := s.slas.ListEscalationsBySlaID(dbc, sla.ID)
	if err != nil {
		return report, err
	}
	if len(rules) == 0 {
		return report, nil
	}

	if s.sla.IsBreached(inst, now) {
		marked, err := s.instances.MarkBreached(dbc, inst.ID)
		if err != nil {
			return report, err
		}
		if marked {
			report.BreachesMarked++
			s.publish(ctx, notify.Event{
				Type:     notify.EventSlaBreached,
				RecordID: inst.RecordID,
				Payload:  map[string]interface{}{"sla_instance_id": inst.ID.String(), "sla_id": sla.ID.String()},
			})
		}
	}

	for _, rule := range rules {
		if !s.ruleDue(inst, sla, rule, now) {
			continue
		}
		fired, err := s.fireOnce(ctx, inst, sla, rule)
		if err != nil {
			return report, err
		}
		if fired {
			report.Fired++
		} else {
			report.Skipped++
		}
	}
	return report, nil
}

func (s *escalationService) ruleDue(inst *types.SlaInstance, sla *types.Sla, rule *types.SlaEscalation, now time.Time) bool {
	switch rule.TriggerType {
	case types.TriggerApproaching:
		if rule.TriggerValue == nil {
			return false
		}
		return s.sla.PercentElapsed(inst, sla, now) >= float64(*rule.TriggerValue)
	case types.TriggerBreached:
		return s.sla.IsBreached(inst, now)
	default:
		return false
	}
}

// fireOnce claims and fires one (instance, rule) pair. The claim transaction
// holds the instance row lock only long enough to re-check closure and dedupe
// against the log, so the action itself never blocks engine transitions
// contending on that row. The unique log index backstops racing sweepers.
func (s *escalationService) fireOnce(ctx context.Context, inst *types.SlaInstance, sla *types.Sla, rule *types.SlaEscalation) (bool, error) {
	claimed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		locked, err := s.instances.LockOpenByID(dbc, inst.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			// closed since the sweep listed it
			return nil
		}
		already, err := s.logs.Exists(dbc, inst.ID, rule.ID)
		if err != nil {
			return err
		}
		claimed = !already
		return nil
	})
	if err != nil || !claimed {
		return false, err
	}

	snapshot, err := s.records.GetSnapshot(ctx, inst.RecordID)
	if err != nil {
		s.log.Warn("snapshot unavailable for escalation", "record_id", inst.RecordID, "error", err)
		snapshot = engine.Snapshot{}
	}

	result, runErr := s.actions.RunAction(ctx, rule.ActionType, rule.Config, ActionContext{
		BlueprintID: sla.BlueprintID,
		RecordID:    inst.RecordID,
		Snapshot:    snapshot,
	})
	status := types.ActionLogSuccess
	if runErr != nil {
		status = types.ActionLogFailed
		result = errorPayload(runErr)
	}

	fired, err := s.logs.InsertOnce(dbctx.Context{Ctx: ctx}, &types.SlaEscalationLog{
		SlaInstanceID: inst.ID,
		EscalationID:  rule.ID,
		ExecutedAt:    time.Now().UTC(),
		Status:        status,
		Result:        result,
	})
	if err != nil {
		return false, err
	}

	if fired {
		s.publish(ctx, notify.Event{
			Type:     notify.EventEscalationFired,
			RecordID: inst.RecordID,
			Payload: map[string]interface{}{
				"sla_instance_id": inst.ID.String(),
				"escalation_id":   rule.ID.String(),
				"trigger_type":    rule.TriggerType,
			},
		})
	}
	return fired, nil
}

func (s *escalationService) publish(ctx context.Context, evt notify.Event) {
	if s.bus == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.log.Warn("event publish failed", "type", evt.Type, "error", err)
	}
}
