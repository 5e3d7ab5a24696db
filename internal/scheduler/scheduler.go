package scheduler

import (
	"context"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
	"github.com/orbitcrm/blueprint-engine/internal/services"
	"github.com/orbitcrm/blueprint-engine/internal/utils"
)

// Scheduler drives the SLA escalation and approval overdue sweeps on a cron
// cadence. The sweeps are stateless, so overlapping or restarted schedulers
// are safe; the DB uniqueness constraints carry the at-most-once guarantee.
type Scheduler struct {
	log         *logger.Logger
	cron        *rcron.Cron
	clock       services.Clock
	escalations services.EscalationService
	approvals   services.ApprovalService

	slaSpec      string
	approvalSpec string
	sweepTimeout time.Duration
}

func New(baseLog *logger.Logger, clock services.Clock, escalations services.EscalationService, approvals services.ApprovalService) *Scheduler {
	log := baseLog.With("service", "Scheduler")
	return &Scheduler{
		log:          log,
		cron:         rcron.New(),
		clock:        clock,
		escalations:  escalations,
		approvals:    approvals,
		slaSpec:      utils.GetEnv("SLA_SWEEP_CRON", "* * * * *", log),
		approvalSpec: utils.GetEnv("APPROVAL_SWEEP_CRON", "*/5 * * * *", log),
		sweepTimeout: time.Duration(utils.GetEnvAsInt("SWEEP_TIMEOUT_SECONDS", 300, log)) * time.Second,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.slaSpec, s.runSlaSweep); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.approvalSpec, s.runApprovalSweep); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("scheduler started", "sla_sweep", s.slaSpec, "approval_sweep", s.approvalSpec)
	return nil
}

// Stop halts scheduling and waits for in-flight sweeps to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) runSlaSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.sweepTimeout)
	defer cancel()

	report, err := s.escalations.RunSweep(ctx, s.clock.Now())
	if err != nil {
		s.log.Error("sla sweep failed", "error", err)
		return
	}
	if report.Fired > 0 || report.Errors > 0 {
		s.log.Info("sla sweep done",
			"checked", report.Checked,
			"fired", report.Fired,
			"skipped", report.Skipped,
			"breaches_marked", report.BreachesMarked,
			"errors", report.Errors)
	}
}

func (s *Scheduler) runApprovalSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.sweepTimeout)
	defer cancel()

	report, err := s.approvals.RunOverdueSweep(ctx, s.clock.Now())
	if err != nil {
		s.log.Error("approval sweep failed", "error", err)
		return
	}
	if report.Fired > 0 || report.Errors > 0 {
		s.log.Info("approval sweep done",
			"checked", report.Checked,
			"fired", report.Fired,
			"skipped", report.Skipped,
			"errors", report.Errors)
	}
}
