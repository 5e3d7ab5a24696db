package blueprint

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Condition operators supported by the transition guard evaluator.
const (
	OperatorEquals     = "equals"
	OperatorNotEquals  = "not_equals"
	OperatorGreater    = "greater_than"
	OperatorLess       = "less_than"
	OperatorContains   = "contains"
	OperatorIsEmpty    = "is_empty"
	OperatorIsNotEmpty = "is_not_empty"
)

const (
	LogicalGroupAnd = "AND"
	LogicalGroupOr  = "OR"
)

// Built-in action types. The executor resolves these through a runner
// registry, so deployments can register additional types.
const (
	ActionSendEmail   = "send_email"
	ActionUpdateField = "update_field"
	ActionCreateTask  = "create_task"
	ActionWebhook     = "webhook"
	ActionNotifyUser  = "notify_user"
)

// Blueprint is a workflow definition bound to one field of one module.
// States and transitions hang off it; records of the module are driven
// through the state graph at runtime.
type Blueprint struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	ModuleID uuid.UUID `gorm:"type:uuid;not null;index:idx_blueprint_module_field,unique,priority:1" json:"module_id"`
	FieldID  uuid.UUID `gorm:"type:uuid;not null;index:idx_blueprint_module_field,unique,priority:2" json:"field_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"column:description" json:"description"`
	IsActive    bool   `gorm:"column:is_active;not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Blueprint) TableName() string { return "blueprint" }

// State is a node a record can occupy. Exactly one state per blueprint has
// IsInitial set; terminal states accept no outgoing transitions unless an
// explicit reopen transition is modeled.
type State struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	BlueprintID uuid.UUID `gorm:"type:uuid;not null;index" json:"blueprint_id"`

	Name             string `gorm:"not null" json:"name"`
	FieldOptionValue string `gorm:"column:field_option_value" json:"field_option_value"`
	Color            string `gorm:"column:color;size:7" json:"color"`
	IsInitial        bool   `gorm:"column:is_initial;not null;default:false" json:"is_initial"`
	IsTerminal       bool   `gorm:"column:is_terminal;not null;default:false" json:"is_terminal"`
	DisplayOrder     int    `gorm:"column:display_order;not null;default:0" json:"display_order"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (State) TableName() string { return "blueprint_state" }

// Transition is a directed edge between two states of the same blueprint.
// Self-loops are legal and reset the state clock.
type Transition struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	BlueprintID uuid.UUID `gorm:"type:uuid;not null;index" json:"blueprint_id"`
	FromStateID uuid.UUID `gorm:"type:uuid;not null;index" json:"from_state_id"`
	ToStateID   uuid.UUID `gorm:"type:uuid;not null" json:"to_state_id"`

	Name         string `gorm:"not null" json:"name"`
	ButtonLabel  string `gorm:"column:button_label;size:100" json:"button_label"`
	DisplayOrder int    `gorm:"column:display_order;not null;default:0" json:"display_order"`
	IsActive     bool   `gorm:"column:is_active;not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Transition) TableName() string { return "blueprint_transition" }

// TransitionCondition is one comparison in a transition guard. Conditions
// are partitioned by logical group: every AND condition must hold and at
// least one OR condition must hold (each group vacuously true when empty).
type TransitionCondition struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	TransitionID uuid.UUID `gorm:"type:uuid;not null;index" json:"transition_id"`

	// FieldName is the record field api name looked up in the snapshot.
	FieldName    string `gorm:"column:field_name;not null" json:"field_name"`
	Operator     string `gorm:"column:operator;size:50;not null" json:"operator"`
	Value        string `gorm:"column:value" json:"value"`
	LogicalGroup string `gorm:"column:logical_group;size:50;not null;default:AND" json:"logical_group"`
	DisplayOrder int    `gorm:"column:display_order;not null;default:0" json:"display_order"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (TransitionCondition) TableName() string { return "blueprint_transition_condition" }

// TransitionAction is an ordered side effect fired after a transition
// commits. Config is opaque to the engine and interpreted by the runner
// registered for the action type.
type TransitionAction struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	TransitionID uuid.UUID `gorm:"type:uuid;not null;index" json:"transition_id"`

	Type         string         `gorm:"column:type;size:50;not null" json:"type"`
	Config       datatypes.JSON `gorm:"column:config;type:jsonb" json:"config"`
	DisplayOrder int            `gorm:"column:display_order;not null;default:0" json:"display_order"`
	IsActive     bool           `gorm:"column:is_active;not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (TransitionAction) TableName() string { return "blueprint_transition_action" }
