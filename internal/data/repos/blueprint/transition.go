package blueprint

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/orbitcrm/blueprint-engine/internal/domain"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/dbctx"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
)

type TransitionRepo interface {
	Create(dbc dbctx.Context, transitions []*types.Transition) ([]*types.Transition, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Transition, error)
	ListActiveByFromState(dbc dbctx.Context, blueprintID, fromStateID uuid.UUID) ([]*types.Transition, error)
	CreateConditions(dbc dbctx.Context, conditions []*types.TransitionCondition) ([]*types.TransitionCondition, error)
	ListConditions(dbc dbctx.Context, transitionID uuid.UUID) ([]*types.TransitionCondition, error)
	CreateActions(dbc dbctx.Context, actions []*types.TransitionAction) ([]*types.TransitionAction, error)
	ListActiveActions(dbc dbctx.Context, transitionID uuid.UUID) ([]*types.TransitionAction, error)
}

type transitionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTransitionRepo(db *gorm.DB, baseLog *logger.Logger) TransitionRepo {
	return &transitionRepo{
		db:  db,
		log: baseLog.With("repo", "TransitionRepo"),
	}
}

func (r *transitionRepo) Create(dbc dbctx.Context, transitions []*types.Transition) ([]*types.Transition, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(transitions) == 0 {
		return []*types.Transition{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&transitions).Error; err != nil {
		return nil, err
	}
	return transitions, nil
}

func (r *transitionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Transition, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var tr types.Transition
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&tr).Error
	if err != nil {
		return nil, err
	}
	if tr.ID == uuid.Nil {
		return nil, nil
	}
	return &tr, nil
}

func (r *transitionRepo) ListActiveByFromState(dbc dbctx.Context, blueprintID, fromStateID uuid.UUID) ([]*types.Transition, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Transition
	if blueprintID == uuid.Nil || fromStateID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("blueprint_id = ? AND from_state_id = ? AND is_active = ?", blueprintID, fromStateID, true).
		Order("display_order ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *transitionRepo) CreateConditions(dbc dbctx.Context, conditions []*types.TransitionCondition) ([]*types.TransitionCondition, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(conditions) == 0 {
		return []*types.TransitionCondition{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&conditions).Error; err != nil {
		return nil, err
	}
	return conditions, nil
}

func (r *transitionRepo) ListConditions(dbc dbctx.Context, transitionID uuid.UUID) ([]*types.TransitionCondition, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.TransitionCondition
	if transitionID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("transition_id = ?", transitionID).
		Order("display_order ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *transitionRepo) CreateActions(dbc dbctx.Context, actions []*types.TransitionAction) ([]*types.TransitionAction, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(actions) == 0 {
		return []*types.TransitionAction{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&actions).Error; err != nil {
		return nil, err
	}
	return actions, nil
}

func (r *transitionRepo) ListActiveActions(dbc dbctx.Context, transitionID uuid.UUID) ([]*types.TransitionAction, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.TransitionAction
	if transitionID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("transition_id = ? AND is_active = ?", transitionID, true).
		Order("display_order ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
