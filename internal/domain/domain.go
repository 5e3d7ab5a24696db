package domain

import (
	"github.com/orbitcrm/blueprint-engine/internal/domain/blueprint"
)

const (
	OperatorEquals     = blueprint.OperatorEquals
	OperatorNotEquals  = blueprint.OperatorNotEquals
	OperatorGreater    = blueprint.OperatorGreater
	OperatorLess       = blueprint.OperatorLess
	OperatorContains   = blueprint.OperatorContains
	OperatorIsEmpty    = blueprint.OperatorIsEmpty
	OperatorIsNotEmpty = blueprint.OperatorIsNotEmpty

	LogicalGroupAnd = blueprint.LogicalGroupAnd
	LogicalGroupOr  = blueprint.LogicalGroupOr

	ActionSendEmail   = blueprint.ActionSendEmail
	ActionUpdateField = blueprint.ActionUpdateField
	ActionCreateTask  = blueprint.ActionCreateTask
	ActionWebhook     = blueprint.ActionWebhook
	ActionNotifyUser  = blueprint.ActionNotifyUser

	TriggerApproaching = blueprint.TriggerApproaching
	TriggerBreached    = blueprint.TriggerBreached

	SlaInstanceActive    = blueprint.SlaInstanceActive
	SlaInstanceCompleted = blueprint.SlaInstanceCompleted
	SlaInstanceBreached  = blueprint.SlaInstanceBreached

	ExecutionPending         = blueprint.ExecutionPending
	ExecutionPendingApproval = blueprint.ExecutionPendingApproval
	ExecutionCompleted       = blueprint.ExecutionCompleted
	ExecutionFailed          = blueprint.ExecutionFailed
	ExecutionCancelled       = blueprint.ExecutionCancelled

	ActionLogSuccess = blueprint.ActionLogSuccess
	ActionLogFailed  = blueprint.ActionLogFailed

	ApprovalPending  = blueprint.ApprovalPending
	ApprovalApproved = blueprint.ApprovalApproved
	ApprovalRejected = blueprint.ApprovalRejected
	ApprovalExpired  = blueprint.ApprovalExpired

	StageReminder   = blueprint.StageReminder
	StageEscalate   = blueprint.StageEscalate
	StageAutoReject = blueprint.StageAutoReject
	StageReassign   = blueprint.StageReassign
)

type (
	Blueprint           = blueprint.Blueprint
	State               = blueprint.State
	Transition          = blueprint.Transition
	TransitionCondition = blueprint.TransitionCondition
	TransitionAction    = blueprint.TransitionAction

	Sla              = blueprint.Sla
	SlaEscalation    = blueprint.SlaEscalation
	SlaInstance      = blueprint.SlaInstance
	SlaEscalationLog = blueprint.SlaEscalationLog

	RecordState         = blueprint.RecordState
	TransitionExecution = blueprint.TransitionExecution
	ActionLog           = blueprint.ActionLog

	Approval              = blueprint.Approval
	ApprovalRequest       = blueprint.ApprovalRequest
	ApprovalEscalationLog = blueprint.ApprovalEscalationLog
)
