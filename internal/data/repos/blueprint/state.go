package blueprint

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/orbitcrm/blueprint-engine/internal/domain"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/dbctx"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
)

type StateRepo interface {
	Create(dbc dbctx.Context, states []*types.State) ([]*types.State, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.State, error)
	ListByBlueprintID(dbc dbctx.Context, blueprintID uuid.UUID) ([]*types.State, error)
	GetInitial(dbc dbctx.Context, blueprintID uuid.UUID) (*types.State, error)
}

type stateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStateRepo(db *gorm.DB, baseLog *logger.Logger) StateRepo {
	return &stateRepo{
		db:  db,
		log: baseLog.With("repo", "StateRepo"),
	}
}

func (r *stateRepo) Create(dbc dbctx.Context, states []*types.State) ([]*types.State, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(states) == 0 {
		return []*types.State{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

func (r *stateRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.State, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.State
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

func (r *stateRepo) ListByBlueprintID(dbc dbctx.Context, blueprintID uuid.UUID) ([]*types.State, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.State
	if blueprintID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("blueprint_id = ?", blueprintID).
		Order("display_order ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *stateRepo) GetInitial(dbc dbctx.Context, blueprintID uuid.UUID) (*types.State, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if blueprintID == uuid.Nil {
		return nil, nil
	}
	var st types.State
	err := transaction.WithContext(dbc.Ctx).
		Where("blueprint_id = ? AND is_initial = ?", blueprintID, true).
		Limit(1).
		Find(&st).Error
	if err != nil {
		return nil, err
	}
	if st.ID == uuid.Nil {
		return nil, nil
	}
	return &st, nil
}
