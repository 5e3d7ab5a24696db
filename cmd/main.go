package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/orbitcrm/blueprint-engine/internal/data/repos"
	"github.com/orbitcrm/blueprint-engine/internal/db"
	"github.com/orbitcrm/blueprint-engine/internal/domain"
	"github.com/orbitcrm/blueprint-engine/internal/engine"
	"github.com/orbitcrm/blueprint-engine/internal/notify"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
	"github.com/orbitcrm/blueprint-engine/internal/scheduler"
	"github.com/orbitcrm/blueprint-engine/internal/services"
)

// emptyRecordStore stands in when no record backend is wired; embedders of
// the engine supply their own RecordStore.
type emptyRecordStore struct{}

func (emptyRecordStore) GetSnapshot(ctx context.Context, recordID uuid.UUID) (engine.Snapshot, error) {
	return engine.Snapshot{}, nil
}

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Calendar
	calCfg, err := engine.LoadCalendarConfig(log)
	if err != nil {
		log.Fatal("Calendar config load failed", "error", err)
	}
	calendar, err := engine.NewCalendar(calCfg)
	if err != nil {
		log.Fatal("Calendar config invalid", "error", err)
	}

	// Event bus
	var bus notify.Bus
	if os.Getenv("REDIS_ADDR") != "" {
		bus, err = notify.NewRedisBus(log)
		if err != nil {
			log.Fatal("Redis event bus init failed", "error", err)
		}
	} else {
		log.Warn("REDIS_ADDR not set; engine events will be dropped")
		bus = notify.NewNoopBus()
	}
	defer bus.Close()

	// Repos
	log.Info("Setting up Repos from main...")
	stateRepo := repos.NewStateRepo(thePG, log)
	transitionRepo := repos.NewTransitionRepo(thePG, log)
	recordStateRepo := repos.NewRecordStateRepo(thePG, log)
	executionRepo := repos.NewExecutionRepo(thePG, log)
	actionLogRepo := repos.NewActionLogRepo(thePG, log)
	slaRepo := repos.NewSlaRepo(thePG, log)
	slaInstanceRepo := repos.NewSlaInstanceRepo(thePG, log)
	slaEscalationLogRepo := repos.NewSlaEscalationLogRepo(thePG, log)
	approvalRepo := repos.NewApprovalRepo(thePG, log)
	approvalRequestRepo := repos.NewApprovalRequestRepo(thePG, log)
	approvalEscalationLogRepo := repos.NewApprovalEscalationLogRepo(thePG, log)

	// Action runners
	registry := services.NewActionRegistry()
	registry.Register(domain.ActionNotifyUser, services.NewEventRunner(log, bus, "action.notify_user"))
	registry.Register(domain.ActionSendEmail, services.NewEventRunner(log, bus, "action.send_email"))
	registry.Register(domain.ActionCreateTask, services.NewEventRunner(log, bus, "action.create_task"))
	registry.Register(domain.ActionUpdateField, services.NewEventRunner(log, bus, "action.update_field"))
	registry.Register(domain.ActionWebhook, services.NewWebhookRunner(log))

	// Services
	log.Info("Setting up Services from main...")
	clock := services.SystemClock()
	records := emptyRecordStore{}
	actionService := services.NewActionService(log, registry, actionLogRepo)
	slaService := services.NewSlaService(log, calendar, clock, slaRepo, slaInstanceRepo)
	engineService := services.NewEngineService(
		thePG, log, clock, records, bus,
		stateRepo, transitionRepo, recordStateRepo, executionRepo,
		approvalRepo, approvalRequestRepo,
		actionService, slaService,
	)
	escalationService := services.NewEscalationService(
		thePG, log, records, bus,
		slaRepo, slaInstanceRepo, slaEscalationLogRepo,
		actionService, slaService,
	)
	approvalService := services.NewApprovalService(
		thePG, log, clock, bus,
		approvalRepo, approvalRequestRepo, approvalEscalationLogRepo,
		executionRepo, engineService,
	)

	// Scheduler
	sched := scheduler.New(log, clock, escalationService, approvalService)
	if err := sched.Start(); err != nil {
		log.Fatal("Scheduler start failed", "error", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("Shutting down...")
	sched.Stop()
}
