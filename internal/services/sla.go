package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/orbitcrm/blueprint-engine/internal/data/repos"
	types "github.com/orbitcrm/blueprint-engine/internal/domain"
	"github.com/orbitcrm/blueprint-engine/internal/engine"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/dbctx"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
)

// SlaStatus is the caller-facing view of one open SLA clock.
type SlaStatus struct {
	SlaID          uuid.UUID `json:"sla_id"`
	SlaInstanceID  uuid.UUID `json:"sla_instance_id"`
	PercentElapsed float64   `json:"percent_elapsed"`
	DeadlineAt     time.Time `json:"deadline_at"`
	Breached       bool      `json:"breached"`
}

type SlaService interface {
	// OpenForState starts one instance per active SLA on the entered state,
	// computing the deadline through the calendar. No active SLA is a no-op.
	OpenForState(dbc dbctx.Context, recordID, stateID uuid.UUID, enteredAt time.Time) ([]*types.SlaInstance, error)
	// CloseForRecord closes every open instance the record holds under the
	// blueprint, making them inert to the escalation sweep.
	CloseForRecord(dbc dbctx.Context, recordID, blueprintID uuid.UUID, closedAt time.Time) error
	PercentElapsed(inst *types.SlaInstance, sla *types.Sla, now time.Time) float64
	IsBreached(inst *types.SlaInstance, now time.Time) bool
	GetSlaStatus(ctx context.Context, blueprintID, recordID uuid.UUID) ([]SlaStatus, error)
}

type slaService struct {
	log       *logger.Logger
	calendar  *engine.Calendar
	clock     Clock
	slas      repos.SlaRepo
	instances repos.SlaInstanceRepo
}

func NewSlaService(baseLog *logger.Logger, calendar *engine.Calendar, clock Clock, slas repos.SlaRepo, instances repos.SlaInstanceRepo) SlaService {
	return &slaService{
		log:       baseLog.With("service", "SlaService"),
		calendar:  calendar,
		clock:     clock,
		slas:      slas,
		instances: instances,
	}
}

func (s *slaService) OpenForState(dbc dbctx.Context, recordID, stateID uuid.UUID, enteredAt time.Time) ([]*types.SlaInstance, error) {
	slas, err := s.slas.ListActiveByStateID(dbc, stateID)
	if err != nil {
		return nil, err
	}
	if len(slas) == 0 {
		return nil, nil
	}

	instances := make([]*types.SlaInstance, 0, len(slas))
	for _, sla := range slas {
		deadline := s.calendar.Deadline(
			enteredAt,
			time.Duration(sla.DurationHours)*time.Hour,
			sla.BusinessHoursOnly,
			sla.ExcludeWeekends,
		)
		instances = append(instances, &types.SlaInstance{
			SlaID:      sla.ID,
			RecordID:   recordID,
			StartedAt:  enteredAt,
			DeadlineAt: deadline,
			Status:     types.SlaInstanceActive,
		})
	}
	return s.instances.Create(dbc, instances)
}

func (s *slaService) CloseForRecord(dbc dbctx.Context, recordID, blueprintID uuid.UUID, closedAt time.Time) error {
	open, err := s.instances.ListOpenByRecordAndBlueprint(dbc, recordID, blueprintID)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(open))
	for _, inst := range open {
		ids = append(ids, inst.ID)
	}
	return s.instances.Close(dbc, ids, closedAt)
}

func (s *slaService) PercentElapsed(inst *types.SlaInstance, sla *types.Sla, now time.Time) float64 {
	if sla.DurationHours <= 0 {
		return 0
	}
	elapsed := s.calendar.Elapsed(inst.StartedAt, now, sla.BusinessHoursOnly, sla.ExcludeWeekends)
	pct := elapsed.Hours() / float64(sla.DurationHours) * 100
	if pct < 0 {
		return 0
	}
	return pct
}

func (s *slaService) IsBreached(inst *types.SlaInstance, now time.Time) bool {
	// deadline_at already encodes the calendar rules; wall clock suffices
	return !now.Before(inst.DeadlineAt)
}

func (s *slaService) GetSlaStatus(ctx context.Context, blueprintID, recordID uuid.UUID) ([]SlaStatus, error) {
	dbc := dbctx.Context{Ctx: ctx}
	open, err := s.instances.ListOpenByRecordAndBlueprint(dbc, recordID, blueprintID)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return []SlaStatus{}, nil
	}

	slaIDs := make([]uuid.UUID, 0, len(open))
	for _, inst := range open {
		slaIDs = append(slaIDs, inst.SlaID)
	}
	slas, err := s.slas.GetByIDs(dbc, slaIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.Sla, len(slas))
	for _, sla := range slas {
		byID[sla.ID] = sla
	}

	now := s.clock.Now()
	out := make([]SlaStatus, 0, len(open))
	for _, inst := range open {
		sla, ok := byID[inst.SlaID]
		if !ok {
			continue
		}
		out = append(out, SlaStatus{
			SlaID:          sla.ID,
			SlaInstanceID:  inst.ID,
			PercentElapsed: s.PercentElapsed(inst, sla, now),
			DeadlineAt:     inst.DeadlineAt,
			Breached:       s.IsBreached(inst, now),
		})
	}
	return out, nil
}
