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

type ApprovalRepo interface {
	Create(dbc dbctx.Context, approvals []*types.Approval) ([]*types.Approval, error)
	GetByTransitionID(dbc dbctx.Context, transitionID uuid.UUID) (*types.Approval, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Approval, error)
}

type approvalRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewApprovalRepo(db *gorm.DB, baseLog *logger.Logger) ApprovalRepo {
	return &approvalRepo{
		db:  db,
		log: baseLog.With("repo", "ApprovalRepo"),
	}
}

func (r *approvalRepo) Create(dbc dbctx.Context, approvals []*types.Approval) ([]*types.Approval, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(approvals) == 0 {
		return []*types.Approval{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&approvals).Error; err != nil {
		return nil, err
	}
	return approvals, nil
}

func (r *approvalRepo) GetByTransitionID(dbc dbctx.Context, transitionID uuid.UUID) (*types.Approval, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if transitionID == uuid.Nil {
		return nil, nil
	}
	var ap types.Approval
	err := transaction.WithContext(dbc.Ctx).
		Where("transition_id = ?", transitionID).
		Limit(1).
		Find(&ap).Error
	if err != nil {
		return nil, err
	}
	if ap.ID == uuid.Nil {
		return nil, nil
	}
	return &ap, nil
}

func (r *approvalRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Approval, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Approval
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

type ApprovalRequestRepo interface {
	Create(dbc dbctx.Context, requests []*types.ApprovalRequest) ([]*types.ApprovalRequest, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ApprovalRequest, error)
	GetByExecutionID(dbc dbctx.Context, executionID uuid.UUID) (*types.ApprovalRequest, error)
	ListPending(dbc dbctx.Context) ([]*types.ApprovalRequest, error)
	// LockPendingByID takes a FOR UPDATE lock and returns nil when the
	// request is no longer pending. Requires a tx.
	LockPendingByID(dbc dbctx.Context, id uuid.UUID) (*types.ApprovalRequest, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type approvalRequestRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewApprovalRequestRepo(db *gorm.DB, baseLog *logger.Logger) ApprovalRequestRepo {
	return &approvalRequestRepo{
		db:  db,
		log: baseLog.With("repo", "ApprovalRequestRepo"),
	}
}

func (r *approvalRequestRepo) Create(dbc dbctx.Context, requests []*types.ApprovalRequest) ([]*types.ApprovalRequest, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(requests) == 0 {
		return []*types.ApprovalRequest{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *approvalRequestRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ApprovalRequest, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ApprovalRequest
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

func (r *approvalRequestRepo) GetByExecutionID(dbc dbctx.Context, executionID uuid.UUID) (*types.ApprovalRequest, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if executionID == uuid.Nil {
		return nil, nil
	}
	var req types.ApprovalRequest
	err := transaction.WithContext(dbc.Ctx).
		Where("execution_id = ?", executionID).
		Limit(1).
		Find(&req).Error
	if err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		return nil, nil
	}
	return &req, nil
}

func (r *approvalRequestRepo) ListPending(dbc dbctx.Context) ([]*types.ApprovalRequest, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ApprovalRequest
	if err := transaction.WithContext(dbc.Ctx).
		Where("status = ?", types.ApprovalPending).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *approvalRequestRepo) LockPendingByID(dbc dbctx.Context, id uuid.UUID) (*types.ApprovalRequest, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var req types.ApprovalRequest
	err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND status = ?", id, types.ApprovalPending).
		Limit(1).
		Find(&req).Error
	if err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		return nil, nil
	}
	return &req, nil
}

func (r *approvalRequestRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.ApprovalRequest{}).
		Where("id = ?", id).
		Updates(updates).Error
}

type ApprovalEscalationLogRepo interface {
	// InsertOnce writes the stage log unless the stage already fired for
	// the request. Reports whether this call inserted it.
	InsertOnce(dbc dbctx.Context, row *types.ApprovalEscalationLog) (bool, error)
	Exists(dbc dbctx.Context, requestID uuid.UUID, stage string) (bool, error)
	ListByRequestIDs(dbc dbctx.Context, requestIDs []uuid.UUID) ([]*types.ApprovalEscalationLog, error)
}

type approvalEscalationLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewApprovalEscalationLogRepo(db *gorm.DB, baseLog *logger.Logger) ApprovalEscalationLogRepo {
	return &approvalEscalationLogRepo{
		db:  db,
		log: baseLog.With("repo", "ApprovalEscalationLogRepo"),
	}
}

func (r *approvalEscalationLogRepo) InsertOnce(dbc dbctx.Context, row *types.ApprovalEscalationLog) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return false, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "approval_request_id"}, {Name: "stage"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *approvalEscalationLogRepo) Exists(dbc dbctx.Context, requestID uuid.UUID, stage string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if requestID == uuid.Nil || stage == "" {
		return false, nil
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.ApprovalEscalationLog{}).
		Where("approval_request_id = ? AND stage = ?", requestID, stage).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *approvalEscalationLogRepo) ListByRequestIDs(dbc dbctx.Context, requestIDs []uuid.UUID) ([]*types.ApprovalEscalationLog, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ApprovalEscalationLog
	if len(requestIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("approval_request_id IN ?", requestIDs).
		Order("executed_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
