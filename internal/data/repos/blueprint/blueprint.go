package blueprint

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/orbitcrm/blueprint-engine/internal/domain"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/dbctx"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
)

type BlueprintRepo interface {
	Create(dbc dbctx.Context, blueprints []*types.Blueprint) ([]*types.Blueprint, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Blueprint, error)
	GetByModuleAndField(dbc dbctx.Context, moduleID, fieldID uuid.UUID) (*types.Blueprint, error)
	ListByModuleID(dbc dbctx.Context, moduleID uuid.UUID) ([]*types.Blueprint, error)
}

type blueprintRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBlueprintRepo(db *gorm.DB, baseLog *logger.Logger) BlueprintRepo {
	return &blueprintRepo{
		db:  db,
		log: baseLog.With("repo", "BlueprintRepo"),
	}
}

func (r *blueprintRepo) Create(dbc dbctx.Context, blueprints []*types.Blueprint) ([]*types.Blueprint, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(blueprints) == 0 {
		return []*types.Blueprint{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&blueprints).Error; err != nil {
		return nil, err
	}
	return blueprints, nil
}

func (r *blueprintRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Blueprint, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Blueprint
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

func (r *blueprintRepo) GetByModuleAndField(dbc dbctx.Context, moduleID, fieldID uuid.UUID) (*types.Blueprint, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if moduleID == uuid.Nil || fieldID == uuid.Nil {
		return nil, nil
	}
	var bp types.Blueprint
	err := transaction.WithContext(dbc.Ctx).
		Where("module_id = ? AND field_id = ?", moduleID, fieldID).
		Limit(1).
		Find(&bp).Error
	if err != nil {
		return nil, err
	}
	if bp.ID == uuid.Nil {
		return nil, nil
	}
	return &bp, nil
}

func (r *blueprintRepo) ListByModuleID(dbc dbctx.Context, moduleID uuid.UUID) ([]*types.Blueprint, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Blueprint
	if moduleID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("module_id = ?", moduleID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
