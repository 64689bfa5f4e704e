package event

// Type identifies the type of domain event
type Type string

const (
	TypeRuleAttached     Type = "request.rule_attached"
	TypeDecisionRecorded Type = "request.decision_recorded"
	TypeRequestFinalized Type = "request.finalized"
)

// Payload keys shared by producers and sinks
const (
	KeyRequestorID    = "requestor_id"
	KeyApproverID     = "approver_id"
	KeyVerdict        = "verdict"
	KeyPreviousStatus = "previous_status"
	KeyFinalStatus    = "final_status"
	KeyDecisionCount  = "decision_count"
	KeyAmountCents    = "amount_cents"
	KeyCurrency       = "currency"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRuleAttached,
		TypeDecisionRecorded,
		TypeRequestFinalized:
		return true
	default:
		return false
	}
}
