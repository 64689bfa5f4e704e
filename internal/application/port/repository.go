package port

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// RequestRepository defines persistence operations for expense requests.
// Getters return nil, nil when the row does not exist.
type RequestRepository interface {
	Create(ctx context.Context, req *entity.Request) error
	GetByID(ctx context.Context, id string) (*entity.Request, error)
	UpdateStatus(ctx context.Context, id string, status entity.Status) error
	List(ctx context.Context, limit, offset int) ([]*entity.Request, error)
	ListByRequestor(ctx context.Context, requestorID string, limit, offset int) ([]*entity.Request, error)
	// SummarizeByStatus totals all requests by status and currency
	SummarizeByStatus(ctx context.Context) ([]*entity.StatusTotal, error)
	// SummarizeByManager totals the requests of a manager's direct reports
	SummarizeByManager(ctx context.Context, managerID string) ([]*entity.StatusTotal, error)
}

// RuleRepository defines persistence operations for approval rules.
// Create fails with ErrRuleAlreadyExists when the request already has a rule.
type RuleRepository interface {
	Create(ctx context.Context, rule *entity.Rule) error
	GetByRequestID(ctx context.Context, requestID string) (*entity.Rule, error)
}

// DecisionRepository is the append-only decision ledger.
// Append fails with ErrDuplicateDecision when the approver already voted.
type DecisionRepository interface {
	Append(ctx context.Context, decision *entity.Decision) error
	ListByRequestID(ctx context.Context, requestID string) ([]*entity.Decision, error)
}

// UserRepository defines persistence operations for directory users
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	UpdateRole(ctx context.Context, id string, role entity.Role) error
	UpdateManager(ctx context.Context, id string, managerID string) error
	List(ctx context.Context, limit, offset int) ([]*entity.User, error)
}

// OutboxRepository stores events awaiting delivery to sinks
type OutboxRepository interface {
	Create(ctx context.Context, evt *entity.OutboxEvent) error
	GetPending(ctx context.Context, limit int) ([]*entity.OutboxEvent, error)
	GetByRequestID(ctx context.Context, requestID string) ([]*entity.OutboxEvent, error)
	MarkSent(ctx context.Context, id int64) error
	// RecordFailure increments attempts and moves the row to FAILED once final is set
	RecordFailure(ctx context.Context, id int64, errMsg string, final bool) error
	// ListDeliveries returns the handlers already settled for an event
	ListDeliveries(ctx context.Context, outboxID int64) ([]*entity.OutboxDelivery, error)
	// RecordDelivery settles one handler for an event; settling twice is a no-op
	RecordDelivery(ctx context.Context, d *entity.OutboxDelivery) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
