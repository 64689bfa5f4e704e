package workflow

import "github.com/garyjia/expense-approval/internal/domain/entity"

// NewRequestStateMachine returns the request lifecycle machine positioned at current.
// approved and rejected have no outgoing transitions.
func NewRequestStateMachine(current entity.Status) StateMachine {
	builder := NewBuilder()

	builder.Configure(entity.StatusSubmitted).
		Permit(TriggerAttachRule, entity.StatusPending)

	builder.Configure(entity.StatusPending).
		Permit(TriggerApprove, entity.StatusApproved).
		Permit(TriggerReject, entity.StatusRejected)

	return builder.Build(current)
}

// TriggerFor maps an evaluated status to the trigger that reaches it from pending
func TriggerFor(status entity.Status) (Trigger, bool) {
	switch status {
	case entity.StatusApproved:
		return TriggerApprove, true
	case entity.StatusRejected:
		return TriggerReject, true
	default:
		return "", false
	}
}
