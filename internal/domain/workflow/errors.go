package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a status transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidRule is returned when a rule payload fails validation
	ErrInvalidRule = errors.New("invalid rule")

	// ErrRuleAlreadyExists is returned when a request already carries a rule
	ErrRuleAlreadyExists = errors.New("rule already exists")

	// ErrRequestNotFound is returned for an unknown request id
	ErrRequestNotFound = errors.New("request not found")

	// ErrNoRuleAttached is returned when a decision arrives before any rule
	ErrNoRuleAttached = errors.New("no rule attached")

	// ErrAlreadyTerminal is returned when the request is already approved or rejected
	ErrAlreadyTerminal = errors.New("request already finalized")

	// ErrDuplicateDecision is returned when the approver has already voted
	ErrDuplicateDecision = errors.New("duplicate decision")

	// ErrNotEligibleApprover is returned when the identity may not vote on the request
	ErrNotEligibleApprover = errors.New("not an eligible approver")

	// ErrOutOfOrder is returned when a sequential rule receives a vote out of turn
	ErrOutOfOrder = errors.New("decision out of order")

	// ErrBusy is returned when the request lock could not be acquired in time
	ErrBusy = errors.New("request busy")

	// ErrInvalidDecision is returned for malformed decision input
	ErrInvalidDecision = errors.New("invalid decision")
)

// Kind codes exposed to transports
const (
	KindInvalidRule         = "InvalidRule"
	KindRuleAlreadyExists   = "RuleAlreadyExists"
	KindRequestNotFound     = "RequestNotFound"
	KindNoRuleAttached      = "NoRuleAttached"
	KindAlreadyTerminal     = "AlreadyTerminal"
	KindDuplicateDecision   = "DuplicateDecision"
	KindNotEligibleApprover = "NotEligibleApprover"
	KindOutOfOrder          = "OutOfOrder"
	KindBusy                = "Busy"
	KindInvalidDecision     = "InvalidDecision"
	KindInternal            = "Internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidRule, KindInvalidRule},
	{ErrRuleAlreadyExists, KindRuleAlreadyExists},
	{ErrRequestNotFound, KindRequestNotFound},
	{ErrNoRuleAttached, KindNoRuleAttached},
	{ErrAlreadyTerminal, KindAlreadyTerminal},
	{ErrDuplicateDecision, KindDuplicateDecision},
	{ErrNotEligibleApprover, KindNotEligibleApprover},
	{ErrOutOfOrder, KindOutOfOrder},
	{ErrBusy, KindBusy},
	{ErrInvalidDecision, KindInvalidDecision},
}

// Kind returns the failure kind of err, or KindInternal when err wraps none of the sentinels
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsRetryable reports whether the caller may retry the same operation later
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy)
}
