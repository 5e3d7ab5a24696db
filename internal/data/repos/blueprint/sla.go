package blueprint

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/orbitcrm/blueprint-engine/internal/domain"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/dbctx"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
)

type SlaRepo interface {
	Create(dbc dbctx.Context, slas []*types.Sla) ([]*types.Sla, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Sla, error)
	ListActiveByStateID(dbc dbctx.Context, stateID uuid.UUID) ([]*types.Sla, error)
	CreateEscalations(dbc dbctx.Context, escalations []*types.SlaEscalation) ([]*types.SlaEscalation, error)
	ListEscalationsBySlaID(dbc dbctx.Context, slaID uuid.UUID) ([]*types.SlaEscalation, error)
}

type slaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSlaRepo(db *gorm.DB, baseLog *logger.Logger) SlaRepo {
	return &slaRepo{
		db:  db,
		log: baseLog.With("repo", "SlaRepo"),
	}
}

func (r *slaRepo) Create(dbc dbctx.Context, slas []*types.Sla) ([]*types.Sla, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(slas) == 0 {
		return []*types.Sla{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&slas).Error; err != nil {
		return nil, err
	}
	return slas, nil
}

func (r *slaRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Sla, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Sla
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

func (r *slaRepo) ListActiveByStateID(dbc dbctx.Context, stateID uuid.UUID) ([]*types.Sla, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Sla
	if stateID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("state_id = ? AND is_active = ?", stateID, true).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *slaRepo) CreateEscalations(dbc dbctx.Context, escalations []*types.SlaEscalation) ([]*types.SlaEscalation, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(escalations) == 0 {
		return []*types.SlaEscalation{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&escalations).Error; err != nil {
		return nil, err
	}
	return escalations, nil
}

func (r *slaRepo) ListEscalationsBySlaID(dbc dbctx.Context, slaID uuid.UUID) ([]*types.SlaEscalation, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.SlaEscalation
	if slaID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("sla_id = ?", slaID).
		Order("display_order ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
