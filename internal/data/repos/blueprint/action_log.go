package blueprint

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/orbitcrm/blueprint-engine/internal/domain"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/dbctx"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
)

type ActionLogRepo interface {
	Create(dbc dbctx.Context, logs []*types.ActionLog) ([]*types.ActionLog, error)
	ListByExecutionID(dbc dbctx.Context, executionID uuid.UUID) ([]*types.ActionLog, error)
}

type actionLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActionLogRepo(db *gorm.DB, baseLog *logger.Logger) ActionLogRepo {
	return &actionLogRepo{
		db:  db,
		log: baseLog.With("repo", "ActionLogRepo"),
	}
}

func (r *actionLogRepo) Create(dbc dbctx.Context, logs []*types.ActionLog) ([]*types.ActionLog, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(logs) == 0 {
		return []*types.ActionLog{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *actionLogRepo) ListByExecutionID(dbc dbctx.Context, executionID uuid.UUID) ([]*types.ActionLog, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ActionLog
	if executionID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("execution_id = ?", executionID).
		Order("executed_at ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
