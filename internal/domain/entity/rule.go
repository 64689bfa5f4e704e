package entity

import "time"

// Rule is the approval policy attached to exactly one request.
// Rules are immutable once stored.
type Rule struct {
	ID                  string    `json:"id"`
	RequestID           string    `json:"request_id"`
	Description         string    `json:"description"`
	ManagerRequired     bool      `json:"manager_required"`
	TempManager         string    `json:"temp_manager,omitempty"`
	ManagerID           string    `json:"manager_id,omitempty"` // resolved at attach time
	Sequential          bool      `json:"sequential"`
	PercentageRequired  float64   `json:"percentage_required"`
	Approvers           []string  `json:"approvers"`
	CompulsoryApprovers []string  `json:"compulsory_approvers"`
	CreatedAt           time.Time `json:"created_at"`
}

// HasApprover reports whether id is listed in Approvers
func (r *Rule) HasApprover(id string) bool {
	return r.Position(id) >= 0
}

// Position returns the index of id in Approvers, or -1
func (r *Rule) Position(id string) int {
	for i, a := range r.Approvers {
		if a == id {
			return i
		}
	}
	return -1
}

// IsManager reports whether id is the required manager for this rule
func (r *Rule) IsManager(id string) bool {
	return r.ManagerRequired && r.ManagerID != "" && r.ManagerID == id
}

// CanVote reports whether id may record a decision under this rule
func (r *Rule) CanVote(id string) bool {
	return r.HasApprover(id) || r.IsManager(id)
}

// Compulsory returns the compulsory approvers including the required manager.
// The result has no duplicates.
func (r *Rule) Compulsory() []string {
	out := make([]string, 0, len(r.CompulsoryApprovers)+1)
	seen := make(map[string]bool, len(r.CompulsoryApprovers)+1)
	for _, id := range r.CompulsoryApprovers {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if r.ManagerRequired && r.ManagerID != "" && !seen[r.ManagerID] {
		out = append(out, r.ManagerID)
	}
	return out
}
