package workflow

// Trigger represents an event that can cause a status transition
type Trigger string

const (
	TriggerAttachRule Trigger = "ATTACH_RULE"
	TriggerApprove    Trigger = "APPROVE"
	TriggerReject     Trigger = "REJECT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
