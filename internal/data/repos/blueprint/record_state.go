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

type RecordStateRepo interface {
	Create(dbc dbctx.Context, states []*types.RecordState) ([]*types.RecordState, error)
	GetByBlueprintAndRecord(dbc dbctx.Context, blueprintID, recordID uuid.UUID) (*types.RecordState, error)
	// LockByBlueprintAndRecord takes a FOR UPDATE row lock; it is the
	// per-record mutual exclusion scope for transitions and requires a tx.
	LockByBlueprintAndRecord(dbc dbctx.Context, blueprintID, recordID uuid.UUID) (*types.RecordState, error)
	UpdateState(dbc dbctx.Context, id uuid.UUID, stateID uuid.UUID, enteredAt time.Time) error
}

type recordStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecordStateRepo(db *gorm.DB, baseLog *logger.Logger) RecordStateRepo {
	return &recordStateRepo{
		db:  db,
		log: baseLog.With("repo", "RecordStateRepo"),
	}
}

func (r *recordStateRepo) Create(dbc dbctx.Context, states []*types.RecordState) ([]*types.RecordState, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(states) == 0 {
		return []*types.RecordState{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

func (r *recordStateRepo) GetByBlueprintAndRecord(dbc dbctx.Context, blueprintID, recordID uuid.UUID) (*types.RecordState, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if blueprintID == uuid.Nil || recordID == uuid.Nil {
		return nil, nil
	}
	var rs types.RecordState
	err := transaction.WithContext(dbc.Ctx).
		Where("blueprint_id = ? AND record_id = ?", blueprintID, recordID).
		Limit(1).
		Find(&rs).Error
	if err != nil {
		return nil, err
	}
	if rs.ID == uuid.Nil {
		return nil, nil
	}
	return &rs, nil
}

func (r *recordStateRepo) LockByBlueprintAndRecord(dbc dbctx.Context, blueprintID, recordID uuid.UUID) (*types.RecordState, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if blueprintID == uuid.Nil || recordID == uuid.Nil {
		return nil, nil
	}
	var rs types.RecordState
	err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("blueprint_id = ? AND record_id = ?", blueprintID, recordID).
		Limit(1).
		Find(&rs).Error
	if err != nil {
		return nil, err
	}
	if rs.ID == uuid.Nil {
		return nil, nil
	}
	return &rs, nil
}

func (r *recordStateRepo) UpdateState(dbc dbctx.Context, id uuid.UUID, stateID uuid.UUID, enteredAt time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || stateID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.RecordState{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"current_state_id": stateID,
			"state_entered_at": enteredAt,
			"updated_at":       time.Now().UTC(),
		}).Error
}
