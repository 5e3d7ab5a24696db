package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/orbitcrm/blueprint-engine/internal/data/repos"
	"github.com/orbitcrm/blueprint-engine/internal/data/repos/testutil"
	"github.com/orbitcrm/blueprint-engine/internal/engine"
	"github.com/orbitcrm/blueprint-engine/internal/notify"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeRecordStore struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]engine.Snapshot
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{snapshots: map[uuid.UUID]engine.Snapshot{}}
}

func (s *fakeRecordStore) Set(recordID uuid.UUID, snap engine.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[recordID] = snap
}

func (s *fakeRecordStore) GetSnapshot(ctx context.Context, recordID uuid.UUID) (engine.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.snapshots[recordID]; ok {
		return snap, nil
	}
	return engine.Snapshot{}, nil
}

// recordingRunner counts invocations and optionally fails.
type recordingRunner struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (r *recordingRunner) Execute(ctx context.Context, config datatypes.JSON, actx ActionContext) (datatypes.JSON, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.fail {
		return nil, context.DeadlineExceeded
	}
	return config, nil
}

func (r *recordingRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type harness struct {
	tx    *gorm.DB
	clock *testClock
	store *fakeRecordStore

	registry *ActionRegistry
	runner   *recordingRunner

	executions repos.ExecutionRepo
	actionLogs repos.ActionLogRepo
	instances  repos.SlaInstanceRepo
	escLogs    repos.SlaEscalationLogRepo
	requests   repos.ApprovalRequestRepo
	apprLogs   repos.ApprovalEscalationLogRepo

	engine      EngineService
	sla         SlaService
	escalations EscalationService
	approvals   ApprovalService
}

// newHarness wires the full service stack against a per-test rollback tx.
// Sweep workers are pinned to 1 so everything stays on the tx connection.
func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("SWEEP_WORKERS", "1")

	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)

	clock := newTestClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)) // Monday
	store := newFakeRecordStore()

	cal, err := engine.NewCalendar(engine.CalendarConfig{StartHour: 9, EndHour: 17, Timezone: "UTC"})
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}

	runner := &recordingRunner{}
	registry := NewActionRegistry()
	registry.Register("notify_user", runner)

	states := repos.NewStateRepo(tx, log)
	transitions := repos.NewTransitionRepo(tx, log)
	recordStates := repos.NewRecordStateRepo(tx, log)
	executions := repos.NewExecutionRepo(tx, log)
	actionLogs := repos.NewActionLogRepo(tx, log)
	slas := repos.NewSlaRepo(tx, log)
	instances := repos.NewSlaInstanceRepo(tx, log)
	escLogs := repos.NewSlaEscalationLogRepo(tx, log)
	approvals := repos.NewApprovalRepo(tx, log)
	requests := repos.NewApprovalRequestRepo(tx, log)
	apprLogs := repos.NewApprovalEscalationLogRepo(tx, log)

	bus := notify.NewNoopBus()
	actions := NewActionService(log, registry, actionLogs)
	slaSvc := NewSlaService(log, cal, clock, slas, instances)
	engineSvc := NewEngineService(tx, log, clock, store, bus,
		states, transitions, recordStates, executions,
		approvals, requests, actions, slaSvc)
	escalationSvc := NewEscalationService(tx, log, store, bus,
		slas, instances, escLogs, actions, slaSvc)
	approvalSvc := NewApprovalService(tx, log, clock, bus,
		approvals, requests, apprLogs, executions, engineSvc)

	return &harness{
		tx:          tx,
		clock:       clock,
		store:       store,
		registry:    registry,
		runner:      runner,
		executions:  executions,
		actionLogs:  actionLogs,
		instances:   instances,
		escLogs:     escLogs,
		requests:    requests,
		apprLogs:    apprLogs,
		engine:      engineSvc,
		sla:         slaSvc,
		escalations: escalationSvc,
		approvals:   approvalSvc,
	}
}
