package workflow

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Coordinator owns the workflow state of expense requests.
// Mutating operations on one request are serialized; different requests run in parallel.
type Coordinator interface {
	// AttachRule validates and stores the approval rule, moving the request to pending
	AttachRule(ctx context.Context, in RuleInput) (*entity.Rule, error)

	// SubmitDecision records one approver's verdict and re-evaluates the request
	SubmitDecision(ctx context.Context, in DecisionInput) (*DecisionResult, error)

	// GetStatus returns the last committed status and ledger without locking
	GetStatus(ctx context.Context, requestID string) (*StatusSnapshot, error)
}

// RuleInput is the administrator-authored rule for one request
type RuleInput struct {
	RequestID           string   `json:"-"`
	Description         string   `json:"description"`
	ManagerRequired     bool     `json:"manager_required"`
	TempManager         string   `json:"temp_manager"`
	Sequential          bool     `json:"sequential"`
	PercentageRequired  float64  `json:"percentage_required"`
	Approvers           []string `json:"approvers"`
	CompulsoryApprovers []string `json:"compulsory_approvers"`
}

// DecisionInput carries the request/approver/verdict triple
type DecisionInput struct {
	RequestID  string         `json:"-"`
	ApproverID string         `json:"approver_id"`
	Verdict    entity.Verdict `json:"verdict"`
	Comment    string         `json:"comment"`
}

// DecisionResult describes the outcome of an accepted decision
type DecisionResult struct {
	Decision       *entity.Decision `json:"decision"`
	PreviousStatus entity.Status    `json:"previous_status"`
	Status         entity.Status    `json:"status"`
	Finalized      bool             `json:"finalized"`
}

// StatusSnapshot is a read-only view for audit and display
type StatusSnapshot struct {
	RequestID  string             `json:"request_id"`
	Status     entity.Status      `json:"status"`
	Rule       *entity.Rule       `json:"rule,omitempty"`
	Decisions  []*entity.Decision `json:"decisions"`
	Tally      *domainwf.Tally    `json:"tally,omitempty"`
	NextInLine string             `json:"next_in_line,omitempty"`
}
