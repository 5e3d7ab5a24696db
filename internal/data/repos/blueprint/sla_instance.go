package blueprint

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/orbitcrm/blueprint-engine/internal/domain"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/dbctx"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
)

type SlaInstanceRepo interface {
	Create(dbc dbctx.Context, instances []*types.SlaInstance) ([]*types.SlaInstance, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.SlaInstance, error)
	ListOpenByRecordAndBlueprint(dbc dbctx.Context, recordID, blueprintID uuid.UUID) ([]*types.SlaInstance, error)
	// ListOpen returns every instance not yet closed, oldest first; the
	// escalation sweep iterates it.
	ListOpen(dbc dbctx.Context) ([]*types.SlaInstance, error)
	// LockOpenByID takes a FOR UPDATE lock and returns nil when the
	// instance has been closed meanwhile. Requires a tx.
	LockOpenByID(dbc dbctx.Context, id uuid.UUID) (*types.SlaInstance, error)
	Close(dbc dbctx.Context, ids []uuid.UUID, closedAt time.Time) error
	MarkBreached(dbc dbctx.Context, id uuid.UUID) (bool, error)
}

type slaInstanceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSlaInstanceRepo(db *gorm.DB, baseLog *logger.Logger) SlaInstanceRepo {
	return &slaInstanceRepo{
		db:  db,
		log: baseLog.With("repo", "SlaInstanceRepo"),
	}
}

func (r *slaInstanceRepo) Create(dbc dbctx.Context, instances []*types.SlaInstance) ([]*types.SlaInstance, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(instances) == 0 {
		return []*types.SlaInstance{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&instances).Error; err != nil {
		return nil, err
	}
	return instances, nil
}

func (r *slaInstanceRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.SlaInstance, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.SlaInstance
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

func (r *slaInstanceRepo) ListOpenByRecordAndBlueprint(dbc dbctx.Context, recordID, blueprintID uuid.UUID) ([]*types.SlaInstance, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.SlaInstance
	if recordID == uuid.Nil || blueprintID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Joins("JOIN blueprint_sla ON blueprint_sla.id = blueprint_sla_instance.sla_id").
		Where("blueprint_sla_instance.record_id = ? AND blueprint_sla.blueprint_id = ? AND blueprint_sla_instance.closed_at IS NULL", recordID, blueprintID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *slaInstanceRepo) ListOpen(dbc dbctx.Context) ([]*types.SlaInstance, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.SlaInstance
	if err := transaction.WithContext(dbc.Ctx).
		Where("closed_at IS NULL").
		Order("started_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *slaInstanceRepo) LockOpenByID(dbc dbctx.Context, id uuid.UUID) (*types.SlaInstance, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var inst types.SlaInstance
	err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND closed_at IS NULL", id).
		Limit(1).
		Find(&inst).Error
	if err != nil {
		return nil, err
	}
	if inst.ID == uuid.Nil {
		return nil, nil
	}
	return &inst, nil
}

func (r *slaInstanceRepo) Close(dbc dbctx.Context, ids []uuid.UUID, closedAt time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.SlaInstance{}).
		Where("id IN ? AND closed_at IS NULL", ids).
		Updates(map[string]interface{}{
			"closed_at":  closedAt,
			"status":     types.SlaInstanceCompleted,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *slaInstanceRepo) MarkBreached(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.SlaInstance{}).
		Where("id = ? AND status = ? AND closed_at IS NULL", id, types.SlaInstanceActive).
		Updates(map[string]interface{}{
			"status":     types.SlaInstanceBreached,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
