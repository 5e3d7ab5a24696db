package repos

import (
	"gorm.io/gorm"

	"github.com/orbitcrm/blueprint-engine/internal/data/repos/blueprint"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
)

type BlueprintRepo = blueprint.BlueprintRepo
type StateRepo = blueprint.StateRepo
type TransitionRepo = blueprint.TransitionRepo
type RecordStateRepo = blueprint.RecordStateRepo
type ExecutionRepo = blueprint.ExecutionRepo
type ActionLogRepo = blueprint.ActionLogRepo

type SlaRepo = blueprint.SlaRepo
type SlaInstanceRepo = blueprint.SlaInstanceRepo
type SlaEscalationLogRepo = blueprint.SlaEscalationLogRepo

type ApprovalRepo = blueprint.ApprovalRepo
type ApprovalRequestRepo = blueprint.ApprovalRequestRepo
type ApprovalEscalationLogRepo = blueprint.ApprovalEscalationLogRepo

func NewBlueprintRepo(db *gorm.DB, baseLog *logger.Logger) BlueprintRepo {
	return blueprint.NewBlueprintRepo(db, baseLog)
}
func NewStateRepo(db *gorm.DB, baseLog *logger.Logger) StateRepo {
	return blueprint.NewStateRepo(db, baseLog)
}
func NewTransitionRepo(db *gorm.DB, baseLog *logger.Logger) TransitionRepo {
	return blueprint.NewTransitionRepo(db, baseLog)
}
func NewRecordStateRepo(db *gorm.DB, baseLog *logger.Logger) RecordStateRepo {
	return blueprint.NewRecordStateRepo(db, baseLog)
}
func NewExecutionRepo(db *gorm.DB, baseLog *logger.Logger) ExecutionRepo {
	return blueprint.NewExecutionRepo(db, baseLog)
}
func NewActionLogRepo(db *gorm.DB, baseLog *logger.Logger) ActionLogRepo {
	return blueprint.NewActionLogRepo(db, baseLog)
}

func NewSlaRepo(db *gorm.DB, baseLog *logger.Logger) SlaRepo {
	return blueprint.NewSlaRepo(db, baseLog)
}
func NewSlaInstanceRepo(db *gorm.DB, baseLog *logger.Logger) SlaInstanceRepo {
	return blueprint.NewSlaInstanceRepo(db, baseLog)
}
func NewSlaEscalationLogRepo(db *gorm.DB, baseLog *logger.Logger) SlaEscalationLogRepo {
	return blueprint.NewSlaEscalationLogRepo(db, baseLog)
}

func NewApprovalRepo(db *gorm.DB, baseLog *logger.Logger) ApprovalRepo {
	return blueprint.NewApprovalRepo(db, baseLog)
}
func NewApprovalRequestRepo(db *gorm.DB, baseLog *logger.Logger) ApprovalRequestRepo {
	return blueprint.NewApprovalRequestRepo(db, baseLog)
}
func NewApprovalEscalationLogRepo(db *gorm.DB, baseLog *logger.Logger) ApprovalEscalationLogRepo {
	return blueprint.NewApprovalEscalationLogRepo(db, baseLog)
}
