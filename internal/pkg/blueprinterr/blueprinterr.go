package blueprinterr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransitionNotFound is returned when a transition id does not exist
	// or the transition has been deactivated.
	ErrTransitionNotFound = errors.New("transition not found")
	// ErrInvalidSourceState is returned when the record is not in the
	// transition's from state. Safe to retry after re-reading state.
	ErrInvalidSourceState = errors.New("record is not in the expected source state")
	// ErrConditionNotMet is returned when a transition guard fails.
	ErrConditionNotMet = errors.New("transition conditions not met")
	// ErrRecordIsTerminal is returned when the record sits in a terminal
	// state and the transition does not originate from it.
	ErrRecordIsTerminal = errors.New("record is in a terminal state")
	// ErrCalendarConfigInvalid is a blueprint configuration-time failure.
	ErrCalendarConfigInvalid = errors.New("calendar configuration invalid")
	// ErrApprovalNotPending is returned when responding to a request that
	// has already been resolved.
	ErrApprovalNotPending = errors.New("approval request is not pending")
	// ErrExecutionNotPending is returned when completing or cancelling an
	// execution that already reached a final status.
	ErrExecutionNotPending = errors.New("transition execution is not pending")
)

// ConditionNotMetError carries the user-visible reasons a guard failed so
// callers can explain why a transition is unavailable.
type ConditionNotMetError struct {
	Failed []string
}

func (e *ConditionNotMetError) Error() string {
	if len(e.Failed) == 0 {
		return ErrConditionNotMet.Error()
	}
	return fmt.Sprintf("%s: %s", ErrConditionNotMet.Error(), strings.Join(e.Failed, "; "))
}

func (e *ConditionNotMetError) Unwrap() error { return ErrConditionNotMet }
