package blueprint

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ExecutionPending         = "pending"
	ExecutionPendingApproval = "pending_approval"
	ExecutionCompleted       = "completed"
	ExecutionFailed          = "failed"
	ExecutionCancelled       = "cancelled"
)

const (
	ActionLogSuccess = "success"
	ActionLogFailed  = "failed"
)

// RecordState is the current-state pointer: exactly one live row per
// (blueprint, record). Only the engine mutates it, under a row lock.
type RecordState struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	BlueprintID uuid.UUID `gorm:"type:uuid;not null;index:idx_record_state_blueprint_record,unique,priority:1" json:"blueprint_id"`
	RecordID    uuid.UUID `gorm:"type:uuid;not null;index:idx_record_state_blueprint_record,unique,priority:2" json:"record_id"`

	CurrentStateID uuid.UUID `gorm:"type:uuid;not null;index" json:"current_state_id"`
	StateEnteredAt time.Time `gorm:"column:state_entered_at;not null" json:"state_entered_at"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (RecordState) TableName() string { return "blueprint_record_state" }

// TransitionExecution is the audit row for one transition attempt. Approval
// gated transitions park here as pending_approval until resolved.
type TransitionExecution struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	TransitionID uuid.UUID `gorm:"type:uuid;not null;index" json:"transition_id"`
	RecordID     uuid.UUID `gorm:"type:uuid;not null;index" json:"record_id"`
	FromStateID  uuid.UUID `gorm:"type:uuid;not null" json:"from_state_id"`
	ToStateID    uuid.UUID `gorm:"type:uuid;not null" json:"to_state_id"`
	ExecutedBy   uuid.UUID `gorm:"type:uuid;not null" json:"executed_by"`

	// pending|pending_approval|completed|failed|cancelled
	Status string `gorm:"column:status;size:50;not null;index" json:"status"`

	StartedAt    time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	CompletedAt  *time.Time `gorm:"column:completed_at" json:"completed_at"`
	ErrorMessage string     `gorm:"column:error_message" json:"error_message"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (TransitionExecution) TableName() string { return "blueprint_transition_execution" }

// ActionLog is the append-only outcome of one action invocation within one
// execution. A failed action never blocks the transition or later actions.
type ActionLog struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	ExecutionID uuid.UUID `gorm:"type:uuid;not null;index" json:"execution_id"`
	ActionID    uuid.UUID `gorm:"type:uuid;not null;index" json:"action_id"`

	// success|failed
	Status     string         `gorm:"column:status;size:50;not null" json:"status"`
	Result     datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`
	ExecutedAt time.Time      `gorm:"column:executed_at;not null" json:"executed_at"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ActionLog) TableName() string { return "blueprint_action_log" }
