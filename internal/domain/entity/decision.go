package entity

import "time"

// Verdict is an approver's vote
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// IsValid reports whether v is approve or reject
func (v Verdict) IsValid() bool {
	return v == VerdictApprove || v == VerdictReject
}

func (v Verdict) String() string {
	return string(v)
}

// Decision is one ledger entry: an approver's vote on a request.
// At most one decision exists per (RequestID, ApproverID).
type Decision struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	ApproverID string    `json:"approver_id"`
	Verdict    Verdict   `json:"verdict"`
	Comment    string    `json:"comment,omitempty"`
	Sequence   int       `json:"sequence"`
	DecidedAt  time.Time `json:"decided_at"`
}
