package blueprint

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
	ApprovalExpired  = "expired"
)

// Approval escalation ladder stages, in firing priority order. AutoReject is
// terminal for the request.
const (
	StageReminder   = "reminder"
	StageEscalate   = "escalate"
	StageAutoReject = "auto_reject"
	StageReassign   = "reassign"
)

// Approval gates a transition behind a human sign-off. At most one config
// per transition; the ladder fields drive the overdue sweep.
type Approval struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	TransitionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"transition_id"`

	// specific_users|role_based|manager
	ApprovalType string         `gorm:"column:approval_type;size:50;not null" json:"approval_type"`
	Config       datatypes.JSON `gorm:"column:config;type:jsonb" json:"config"`

	ReminderHours   *int `gorm:"column:reminder_hours" json:"reminder_hours"`
	EscalationHours *int `gorm:"column:escalation_hours" json:"escalation_hours"`
	AutoRejectDays  *int `gorm:"column:auto_reject_days" json:"auto_reject_days"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Approval) TableName() string { return "blueprint_approval" }

// ApprovalRequest is the runtime row for one pending sign-off on one parked
// execution.
type ApprovalRequest struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	ApprovalID  uuid.UUID `gorm:"type:uuid;not null;index" json:"approval_id"`
	RecordID    uuid.UUID `gorm:"type:uuid;not null;index" json:"record_id"`
	ExecutionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"execution_id"`
	RequestedBy uuid.UUID `gorm:"type:uuid;not null" json:"requested_by"`
	ApproverID  uuid.UUID `gorm:"type:uuid;not null;index" json:"approver_id"`

	// pending|approved|rejected|expired
	Status string `gorm:"column:status;size:50;not null;index" json:"status"`

	RespondedBy *uuid.UUID `gorm:"type:uuid;column:responded_by" json:"responded_by"`
	RespondedAt *time.Time `gorm:"column:responded_at" json:"responded_at"`
	Comments    string     `gorm:"column:comments" json:"comments"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ApprovalRequest) TableName() string { return "blueprint_approval_request" }

// ApprovalEscalationLog records one ladder stage firing for one request.
// The unique (approval_request_id, stage) index enforces at-most-once per
// stage across concurrent sweeps.
type ApprovalEscalationLog struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	ApprovalRequestID uuid.UUID `gorm:"type:uuid;not null;index:idx_approval_stage_once,unique,priority:1" json:"approval_request_id"`
	// reminder|escalate|auto_reject|reassign
	Stage string `gorm:"column:stage;size:50;not null;index:idx_approval_stage_once,unique,priority:2" json:"stage"`

	ExecutedAt time.Time `gorm:"column:executed_at;not null" json:"executed_at"`
	// success|failed
	Status string         `gorm:"column:status;size:50;not null" json:"status"`
	Result datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ApprovalEscalationLog) TableName() string { return "blueprint_approval_escalation_log" }
