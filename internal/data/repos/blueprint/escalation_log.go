package blueprint

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/orbitcrm/blueprint-engine/internal/domain"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/dbctx"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
)

type SlaEscalationLogRepo interface {
	// InsertOnce writes the log row unless one already exists for the
	// (instance, escalation) pair. Reports whether this call inserted it;
	// a conflicting insert means "already fired" and is not an error.
	InsertOnce(dbc dbctx.Context, row *types.SlaEscalationLog) (bool, error)
	Exists(dbc dbctx.Context, instanceID, escalationID uuid.UUID) (bool, error)
	ListByInstanceIDs(dbc dbctx.Context, instanceIDs []uuid.UUID) ([]*types.SlaEscalationLog, error)
}

type slaEscalationLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSlaEscalationLogRepo(db *gorm.DB, baseLog *logger.Logger) SlaEscalationLogRepo {
	return &slaEscalationLogRepo{
		db:  db,
		log: baseLog.With("repo", "SlaEscalationLogRepo"),
	}
}

func (r *slaEscalationLogRepo) InsertOnce(dbc dbctx.Context, row *types.SlaEscalationLog) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return false, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sla_instance_id"}, {Name: "escalation_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *slaEscalationLogRepo) Exists(dbc dbctx.Context, instanceID, escalationID uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if instanceID == uuid.Nil || escalationID == uuid.Nil {
		return false, nil
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.SlaEscalationLog{}).
		Where("sla_instance_id = ? AND escalation_id = ?", instanceID, escalationID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *slaEscalationLogRepo) ListByInstanceIDs(dbc dbctx.Context, instanceIDs []uuid.UUID) ([]*types.SlaEscalationLog, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.SlaEscalationLog
	if len(instanceIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("sla_instance_id IN ?", instanceIDs).
		Order("executed_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
