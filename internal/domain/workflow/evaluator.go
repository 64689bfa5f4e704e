package workflow

import (
	"fmt"
	"math"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// thresholdEpsilon absorbs float error in percentage*count products (70% of 10 must be 7, not 8)
const thresholdEpsilon = 1e-9

// Tally summarizes a ledger against a rule
type Tally struct {
	Approvals  int `json:"approvals"`
	Rejections int `json:"rejections"`
	Undecided  int `json:"undecided"`
	Required   int `json:"required"`
}

// verdicts indexes a ledger by approver
func verdicts(ledger []*entity.Decision) map[string]entity.Verdict {
	out := make(map[string]entity.Verdict, len(ledger))
	for _, d := range ledger {
		out[d.ApproverID] = d.Verdict
	}
	return out
}

// RequiredApprovals returns how many listed approvers must approve.
// Never less than one so that a 0% rule is not approved by silence.
func RequiredApprovals(rule *entity.Rule) int {
	n := len(rule.Approvers)
	required := int(math.Ceil(rule.PercentageRequired*float64(n)/100 - thresholdEpsilon))
	if required < 1 {
		required = 1
	}
	if required > n && n > 0 {
		required = n
	}
	return required
}

// Summarize counts listed approvers' verdicts. The manager is counted only when listed.
func Summarize(rule *entity.Rule, ledger []*entity.Decision) Tally {
	votes := verdicts(ledger)
	t := Tally{Required: RequiredApprovals(rule)}
	for _, id := range rule.Approvers {
		switch votes[id] {
		case entity.VerdictApprove:
			t.Approvals++
		case entity.VerdictReject:
			t.Rejections++
		default:
			t.Undecided++
		}
	}
	return t
}

// Evaluate computes the workflow status for a rule and its accepted decisions.
// It is pure: the same inputs always give the same status.
//
// Rejections are checked before completeness, so a compulsory or sequential
// reject ends the request even while other compulsory votes are outstanding.
// A percentage rule is only rejected once every listed approver has voted.
func Evaluate(rule *entity.Rule, ledger []*entity.Decision) entity.Status {
	votes := verdicts(ledger)
	compulsory := rule.Compulsory()

	for _, id := range compulsory {
		if votes[id] == entity.VerdictReject {
			return entity.StatusRejected
		}
	}

	if rule.Sequential {
		for _, id := range rule.Approvers {
			if votes[id] == entity.VerdictReject {
				return entity.StatusRejected
			}
		}
	}

	for _, id := range compulsory {
		if _, ok := votes[id]; !ok {
			return entity.StatusPending
		}
	}

	tally := Summarize(rule, ledger)
	if tally.Approvals >= tally.Required {
		return entity.StatusApproved
	}
	if tally.Undecided == 0 {
		return entity.StatusRejected
	}
	return entity.StatusPending
}

// NextInLine returns the first listed approver without a decision
func NextInLine(rule *entity.Rule, ledger []*entity.Decision) (string, bool) {
	votes := verdicts(ledger)
	for _, id := range rule.Approvers {
		if _, ok := votes[id]; !ok {
			return id, true
		}
	}
	return "", false
}

// CheckOrder returns ErrOutOfOrder when a sequential rule receives a vote from a
// listed approver whose turn has not come. Parallel rules and an unlisted manager
// are never out of order.
func CheckOrder(rule *entity.Rule, ledger []*entity.Decision, approverID string) error {
	if !rule.Sequential || !rule.HasApprover(approverID) {
		return nil
	}
	next, ok := NextInLine(rule, ledger)
	if !ok || next == approverID {
		return nil
	}
	return fmt.Errorf("%w: %s must decide before %s", ErrOutOfOrder, next, approverID)
}

// ValidateRule checks the structural invariants of a rule.
// Directory entitlement is checked by the caller.
func ValidateRule(rule *entity.Rule) error {
	if len(rule.Approvers) == 0 {
		return fmt.Errorf("%w: approvers must not be empty", ErrInvalidRule)
	}

	listed := make(map[string]bool, len(rule.Approvers))
	for _, id := range rule.Approvers {
		if id == "" {
			return fmt.Errorf("%w: approver id must not be empty", ErrInvalidRule)
		}
		if listed[id] {
			return fmt.Errorf("%w: duplicate approver %s", ErrInvalidRule, id)
		}
		listed[id] = true
	}

	seen := make(map[string]bool, len(rule.CompulsoryApprovers))
	for _, id := range rule.CompulsoryApprovers {
		if !listed[id] {
			return fmt.Errorf("%w: compulsory approver %s is not an approver", ErrInvalidRule, id)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate compulsory approver %s", ErrInvalidRule, id)
		}
		seen[id] = true
	}

	if math.IsNaN(rule.PercentageRequired) || rule.PercentageRequired < 0 || rule.PercentageRequired > 100 {
		return fmt.Errorf("%w: percentage_required must be within [0, 100], got %v", ErrInvalidRule, rule.PercentageRequired)
	}

	return nil
}
