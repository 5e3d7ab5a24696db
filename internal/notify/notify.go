package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventTransitionApplied = "transition.applied"
	EventApprovalRequested = "approval.requested"
	EventApprovalResolved  = "approval.resolved"
	EventApprovalEscalated = "approval.escalated"
	EventSlaBreached       = "sla.breached"
	EventEscalationFired   = "sla.escalation_fired"
)

// Event is the engine's outbound notification envelope, published after the
// originating transaction commits.
type Event struct {
	Type        string                 `json:"type"`
	BlueprintID uuid.UUID              `json:"blueprint_id,omitempty"`
	RecordID    uuid.UUID              `json:"record_id,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

type Bus interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}
