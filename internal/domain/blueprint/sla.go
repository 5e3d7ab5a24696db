package blueprint

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TriggerApproaching = "approaching"
	TriggerBreached    = "breached"
)

const (
	SlaInstanceActive    = "active"
	SlaInstanceCompleted = "completed"
	SlaInstanceBreached  = "breached"
)

// Sla is a per-state deadline policy. The clock starts when a record enters
// the state and honors the business-hours and weekend flags via the
// calendar.
type Sla struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	BlueprintID uuid.UUID `gorm:"type:uuid;not null;index" json:"blueprint_id"`
	StateID     uuid.UUID `gorm:"type:uuid;not null;index" json:"state_id"`

	Name              string `gorm:"not null" json:"name"`
	DurationHours     int    `gorm:"column:duration_hours;not null" json:"duration_hours"`
	BusinessHoursOnly bool   `gorm:"column:business_hours_only;not null;default:false" json:"business_hours_only"`
	ExcludeWeekends   bool   `gorm:"column:exclude_weekends;not null;default:false" json:"exclude_weekends"`
	IsActive          bool   `gorm:"column:is_active;not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Sla) TableName() string { return "blueprint_sla" }

// SlaEscalation is an ordered rule on an SLA. Approaching rules fire at a
// percent-elapsed threshold, breached rules when the deadline passes. Each
// rule fires at most once per SLA instance.
type SlaEscalation struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	SlaID uuid.UUID `gorm:"type:uuid;not null;index" json:"sla_id"`

	// approaching|breached
	TriggerType string `gorm:"column:trigger_type;size:50;not null" json:"trigger_type"`
	// Percent elapsed for approaching rules; unused for breached.
	TriggerValue *int `gorm:"column:trigger_value" json:"trigger_value"`

	ActionType   string         `gorm:"column:action_type;size:50;not null" json:"action_type"`
	Config       datatypes.JSON `gorm:"column:config;type:jsonb" json:"config"`
	DisplayOrder int            `gorm:"column:display_order;not null;default:0" json:"display_order"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (SlaEscalation) TableName() string { return "blueprint_sla_escalation" }

// SlaInstance is the live clock for one record occupying one SLA-bearing
// state. Closed instances are inert to the escalation sweep.
type SlaInstance struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	SlaID    uuid.UUID `gorm:"type:uuid;not null;index" json:"sla_id"`
	RecordID uuid.UUID `gorm:"type:uuid;not null;index" json:"record_id"`

	StartedAt  time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	DeadlineAt time.Time  `gorm:"column:deadline_at;not null;index" json:"deadline_at"`
	ClosedAt   *time.Time `gorm:"column:closed_at" json:"closed_at"`

	// active|completed|breached
	Status string `gorm:"column:status;size:50;not null;index" json:"status"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (SlaInstance) TableName() string { return "blueprint_sla_instance" }

// SlaEscalationLog records one firing of one escalation rule against one
// instance. The unique (sla_instance_id, escalation_id) index is the sole
// at-most-once mechanism; rows are never mutated.
type SlaEscalationLog struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	SlaInstanceID uuid.UUID `gorm:"type:uuid;not null;index:idx_sla_escalation_once,unique,priority:1" json:"sla_instance_id"`
	EscalationID  uuid.UUID `gorm:"type:uuid;not null;index:idx_sla_escalation_once,unique,priority:2" json:"escalation_id"`

	ExecutedAt time.Time `gorm:"column:executed_at;not null" json:"executed_at"`
	// success|failed
	Status string         `gorm:"column:status;size:50;not null" json:"status"`
	Result datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (SlaEscalationLog) TableName() string { return "blueprint_sla_escalation_log" }
