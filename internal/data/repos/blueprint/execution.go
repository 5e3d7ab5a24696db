package blueprint

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/orbitcrm/blueprint-engine/internal/domain"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/dbctx"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
)

type ExecutionRepo interface {
	Create(dbc dbctx.Context, executions []*types.TransitionExecution) ([]*types.TransitionExecution, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.TransitionExecution, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsIfStatus applies updates only when the row still has the
	// expected status; reports whether a row changed.
	UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, expectedStatus string, updates map[string]interface{}) (bool, error)
	ListByBlueprintAndRecord(dbc dbctx.Context, blueprintID, recordID uuid.UUID) ([]*types.TransitionExecution, error)
}

type executionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExecutionRepo(db *gorm.DB, baseLog *logger.Logger) ExecutionRepo {
	return &executionRepo{
		db:  db,
		log: baseLog.With("repo", "ExecutionRepo"),
	}
}

func (r *executionRepo) Create(dbc dbctx.Context, executions []*types.TransitionExecution) ([]*types.TransitionExecution, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(executions) == 0 {
		return []*types.TransitionExecution{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&executions).Error; err != nil {
		return nil, err
	}
	return executions, nil
}

func (r *executionRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.TransitionExecution, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.TransitionExecution
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *executionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.TransitionExecution{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *executionRepo) UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, expectedStatus string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.TransitionExecution{}).
		Where("id = ? AND status = ?", id, expectedStatus).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *executionRepo) ListByBlueprintAndRecord(dbc dbctx.Context, blueprintID, recordID uuid.UUID) ([]*types.TransitionExecution, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.TransitionExecution
	if blueprintID == uuid.Nil || recordID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Joins("JOIN blueprint_transition ON blueprint_transition.id = blueprint_transition_execution.transition_id").
		Where("blueprint_transition.blueprint_id = ? AND blueprint_transition_execution.record_id = ?", blueprintID, recordID).
		Order("blueprint_transition_execution.created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
