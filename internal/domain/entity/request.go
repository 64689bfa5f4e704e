package entity

import "time"

// Request is an expense request submitted by an employee.
// The approval engine only ever writes Status.
type Request struct {
	ID          string     `json:"id"`
	RequestorID string     `json:"requestor_id"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	ExpenseDate *time.Time `json:"expense_date,omitempty"`
	PaidBy      string     `json:"paid_by,omitempty"`
	Remarks     string     `json:"remarks,omitempty"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Status is the workflow status of a request
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// IsTerminal reports whether no further decision may change the status
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusSubmitted, StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}

// StatusTotal aggregates requests sharing a status and currency
type StatusTotal struct {
	Status      Status `json:"status"`
	Currency    string `json:"currency"`
	Count       int    `json:"count"`
	AmountCents int64  `json:"amount_cents"`
}

// ExpenseSummary groups request totals by status. Amounts in different
// currencies are never added together.
type ExpenseSummary struct {
	ManagerID string         `json:"manager_id,omitempty"`
	Totals    []*StatusTotal `json:"totals"`
}

// Total returns the amount for one status and currency, zero when absent
func (s *ExpenseSummary) Total(status Status, currency string) int64 {
	for _, t := range s.Totals {
		if t.Status == status && t.Currency == currency {
			return t.AmountCents
		}
	}
	return 0
}
