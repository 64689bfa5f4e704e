package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/garyjia/expense-approval/workflow"

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Repositories groups the stores the coordinator reads and writes
type Repositories struct {
	Requests  port.RequestRepository
	Rules     port.RuleRepository
	Decisions port.DecisionRepository
	Outbox    port.OutboxRepository
}

type coordinatorImpl struct {
	requests  port.RequestRepository
	rules     port.RuleRepository
	decisions port.DecisionRepository
	outbox    port.OutboxRepository
	directory port.UserDirectory
	txManager port.TransactionManager
	locker    *Locker
	logger    Logger

	dispatcher  dispatcher.Dispatcher
	onFinalized func()
	tracer      trace.Tracer
	now         func() time.Time
}

// Option configures the coordinator
type Option func(*coordinatorImpl)

// WithDispatcher publishes rule_attached and decision_recorded events after commit
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(c *coordinatorImpl) {
		c.dispatcher = d
	}
}

// WithLocker replaces the default per-request locker
func WithLocker(l *Locker) Option {
	return func(c *coordinatorImpl) {
		c.locker = l
	}
}

// WithFinalizedHook is called after a terminal status commits, typically to wake the outbox relay
func WithFinalizedHook(fn func()) Option {
	return func(c *coordinatorImpl) {
		c.onFinalized = fn
	}
}

// WithTracer sets the tracer used for coordinator spans
func WithTracer(t trace.Tracer) Option {
	return func(c *coordinatorImpl) {
		c.tracer = t
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(c *coordinatorImpl) {
		c.now = now
	}
}

// NewCoordinator creates a workflow coordinator
func NewCoordinator(
	repos Repositories,
	directory port.UserDirectory,
	txManager port.TransactionManager,
	logger Logger,
	opts ...Option,
) Coordinator {
	c := &coordinatorImpl{
		requests:  repos.Requests,
		rules:     repos.Rules,
		decisions: repos.Decisions,
		outbox:    repos.Outbox,
		directory: directory,
		txManager: txManager,
		logger:    logger,
		locker:    NewLocker(DefaultLockTimeout),
		tracer:    otel.Tracer(tracerName),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AttachRule validates the rule against the directory and stores it.
// Errors follow request order: RequestNotFound, then RuleAlreadyExists,
// then InvalidRule.
func (c *coordinatorImpl) AttachRule(ctx context.Context, in RuleInput) (rule *entity.Rule, err error) {
	ctx, span := c.tracer.Start(ctx, "workflow.AttachRule",
		trace.WithAttributes(attribute.String("request.id", in.RequestID)))
	defer func() { endSpan(span, err) }()

	rule = &entity.Rule{
		ID:                  uuid.NewString(),
		RequestID:           in.RequestID,
		Description:         in.Description,
		ManagerRequired:     in.ManagerRequired,
		TempManager:         in.TempManager,
		Sequential:          in.Sequential,
		PercentageRequired:  in.PercentageRequired,
		Approvers:           in.Approvers,
		CompulsoryApprovers: in.CompulsoryApprovers,
		CreatedAt:           c.now(),
	}
	if rule.CompulsoryApprovers == nil {
		rule.CompulsoryApprovers = []string{}
	}

	release, err := c.locker.Acquire(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	defer release()

	txCtx := context.WithoutCancel(ctx)
	err = c.txManager.WithTransaction(txCtx, func(txCtx context.Context) error {
		req, err := c.loadRequest(txCtx, in.RequestID)
		if err != nil {
			return err
		}

		existing, err := c.rules.GetByRequestID(txCtx, req.ID)
		if err != nil {
			return fmt.Errorf("load rule: %w", err)
		}
		if existing != nil || req.Status != entity.StatusSubmitted {
			return fmt.Errorf("%w: request %s is %s", domainwf.ErrRuleAlreadyExists, req.ID, req.Status)
		}

		if err := domainwf.ValidateRule(rule); err != nil {
			return err
		}
		if err := c.checkEntitlement(txCtx, rule); err != nil {
			return err
		}

		for _, id := range rule.Approvers {
			if id == req.RequestorID {
				return fmt.Errorf("%w: requestor %s cannot approve their own request", domainwf.ErrInvalidRule, id)
			}
		}

		if rule.ManagerRequired {
			managerID, err := c.resolveManager(txCtx, rule, req)
			if err != nil {
				return err
			}
			rule.ManagerID = managerID
		}

		machine := domainwf.NewRequestStateMachine(req.Status)
		if err := machine.Fire(domainwf.TriggerAttachRule); err != nil {
			return err
		}

		if err := c.rules.Create(txCtx, rule); err != nil {
			return err
		}
		if err := c.requests.UpdateStatus(txCtx, req.ID, machine.State()); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		return nil
	})
	if err != nil {
		c.logger.Error("Failed to attach rule", "request_id", in.RequestID, "kind", domainwf.Kind(err), "error", err)
		return nil, err
	}

	c.logger.Info("Rule attached",
		"request_id", rule.RequestID,
		"rule_id", rule.ID,
		"approvers", len(rule.Approvers),
		"sequential", rule.Sequential,
		"manager_id", rule.ManagerID,
	)
	c.publish(ctx, event.NewEvent(event.TypeRuleAttached, rule.RequestID, map[string]interface{}{
		"rule_id": rule.ID,
	}))
	return rule, nil
}

// checkEntitlement asks the directory whether every named approver may vote
func (c *coordinatorImpl) checkEntitlement(ctx context.Context, rule *entity.Rule) error {
	for _, id := range rule.Approvers {
		ok, err := c.directory.IsEligibleApprover(ctx, id)
		if err != nil {
			return fmt.Errorf("check approver %s: %w", id, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s is not entitled to approve", domainwf.ErrInvalidRule, id)
		}
	}

	if rule.ManagerRequired && rule.TempManager != "" {
		ok, err := c.directory.IsEligibleApprover(ctx, rule.TempManager)
		if err != nil {
			return fmt.Errorf("check temp manager %s: %w", rule.TempManager, err)
		}
		if !ok {
			return fmt.Errorf("%w: temp manager %s is not entitled to approve", domainwf.ErrInvalidRule, rule.TempManager)
		}
	}
	return nil
}

// resolveManager picks the temporary manager, else the requestor's assigned manager
func (c *coordinatorImpl) resolveManager(ctx context.Context, rule *entity.Rule, req *entity.Request) (string, error) {
	managerID := rule.TempManager
	if managerID == "" {
		id, err := c.directory.GetManagerOf(ctx, req.RequestorID)
		if err != nil {
			return "", fmt.Errorf("resolve manager: %w", err)
		}
		managerID = id
	}
	if managerID == "" {
		return "", fmt.Errorf("%w: manager required but requestor %s has no manager", domainwf.ErrInvalidRule, req.RequestorID)
	}
	if managerID == req.RequestorID {
		return "", fmt.Errorf("%w: requestor %s cannot be their own manager", domainwf.ErrInvalidRule, managerID)
	}
	return managerID, nil
}

// SubmitDecision appends the decision, evaluates and persists the status atomically
func (c *coordinatorImpl) SubmitDecision(ctx context.Context, in DecisionInput) (result *DecisionResult, err error) {
	ctx, span := c.tracer.Start(ctx, "workflow.SubmitDecision", trace.WithAttributes(
		attribute.String("request.id", in.RequestID),
		attribute.String("approver.id", in.ApproverID),
		attribute.String("verdict", in.Verdict.String()),
	))
	defer func() { endSpan(span, err) }()

	if in.RequestID == "" || in.ApproverID == "" {
		return nil, fmt.Errorf("%w: request_id and approver_id are required", domainwf.ErrInvalidDecision)
	}
	if !in.Verdict.IsValid() {
		return nil, fmt.Errorf("%w: unknown verdict %q", domainwf.ErrInvalidDecision, in.Verdict)
	}

	release, err := c.locker.Acquire(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	defer release()

	result = &DecisionResult{}
	var req *entity.Request
	var ledger []*entity.Decision

	// Once the lock is held the submission runs to completion even if the caller goes away
	txCtx := context.WithoutCancel(ctx)
	err = c.txManager.WithTransaction(txCtx, func(txCtx context.Context) error {
		var err error
		req, err = c.loadRequest(txCtx, in.RequestID)
		if err != nil {
			return err
		}

		switch {
		case req.Status == entity.StatusSubmitted:
			return fmt.Errorf("%w: request %s", domainwf.ErrNoRuleAttached, req.ID)
		case req.Status.IsTerminal():
			return fmt.Errorf("%w: request %s is %s", domainwf.ErrAlreadyTerminal, req.ID, req.Status)
		}

		rule, err := c.rules.GetByRequestID(txCtx, req.ID)
		if err != nil {
			return fmt.Errorf("load rule: %w", err)
		}
		if rule == nil {
			return fmt.Errorf("%w: request %s", domainwf.ErrNoRuleAttached, req.ID)
		}
		if !rule.CanVote(in.ApproverID) {
			return fmt.Errorf("%w: %s on request %s", domainwf.ErrNotEligibleApprover, in.ApproverID, req.ID)
		}

		ledger, err = c.decisions.ListByRequestID(txCtx, req.ID)
		if err != nil {
			return fmt.Errorf("load decisions: %w", err)
		}
		for _, d := range ledger {
			if d.ApproverID == in.ApproverID {
				return fmt.Errorf("%w: %s already voted %s on request %s", domainwf.ErrDuplicateDecision, in.ApproverID, d.Verdict, req.ID)
			}
		}
		if err := domainwf.CheckOrder(rule, ledger, in.ApproverID); err != nil {
			return err
		}

		decision := &entity.Decision{
			ID:         uuid.NewString(),
			RequestID:  req.ID,
			ApproverID: in.ApproverID,
			Verdict:    in.Verdict,
			Comment:    in.Comment,
			Sequence:   len(ledger) + 1,
			DecidedAt:  c.now(),
		}
		if err := c.decisions.Append(txCtx, decision); err != nil {
			return err
		}
		ledger = append(ledger, decision)

		result.Decision = decision
		result.PreviousStatus = req.Status
		result.Status = domainwf.Evaluate(rule, ledger)

		trigger, terminal := domainwf.TriggerFor(result.Status)
		if !terminal {
			return nil
		}

		machine := domainwf.NewRequestStateMachine(req.Status)
		if err := machine.Fire(trigger); err != nil {
			return err
		}
		if err := c.requests.UpdateStatus(txCtx, req.ID, machine.State()); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		result.Finalized = true
		return c.enqueueFinalized(txCtx, req, result.Status, len(ledger))
	})
	if err != nil {
		c.logger.Error("Decision rejected",
			"request_id", in.RequestID,
			"approver_id", in.ApproverID,
			"kind", domainwf.Kind(err),
			"error", err,
		)
		return nil, err
	}

	c.logger.Info("Decision recorded",
		"request_id", in.RequestID,
		"approver_id", in.ApproverID,
		"verdict", in.Verdict,
		"sequence", result.Decision.Sequence,
		"status", result.Status,
	)
	span.SetAttributes(attribute.String("status", result.Status.String()))

	c.publish(ctx, event.NewEvent(event.TypeDecisionRecorded, req.ID, map[string]interface{}{
		event.KeyApproverID:  in.ApproverID,
		event.KeyVerdict:     in.Verdict.String(),
		event.KeyFinalStatus: result.Status.String(),
	}))

	if result.Finalized {
		c.logger.Info("Request finalized", "request_id", req.ID, "status", result.Status, "decisions", len(ledger))
		if c.onFinalized != nil {
			c.onFinalized()
		}
	}
	return result, nil
}

// enqueueFinalized writes the finalized event in the caller's transaction
func (c *coordinatorImpl) enqueueFinalized(ctx context.Context, req *entity.Request, status entity.Status, decisionCount int) error {
	evt := event.NewEvent(event.TypeRequestFinalized, req.ID, map[string]interface{}{
		event.KeyRequestorID:    req.RequestorID,
		event.KeyPreviousStatus: req.Status.String(),
		event.KeyFinalStatus:    status.String(),
		event.KeyDecisionCount:  decisionCount,
		event.KeyAmountCents:    req.AmountCents,
		event.KeyCurrency:       req.Currency,
	})
	payload, err := evt.Encode()
	if err != nil {
		return err
	}

	if err := c.outbox.Create(ctx, &entity.OutboxEvent{
		EventID:   evt.ID,
		RequestID: req.ID,
		Type:      evt.Type.String(),
		Payload:   payload,
		Status:    entity.OutboxStatusPending,
		CreatedAt: c.now(),
	}); err != nil {
		return fmt.Errorf("enqueue finalized event: %w", err)
	}
	return nil
}

// GetStatus reads the committed state without taking the request lock
func (c *coordinatorImpl) GetStatus(ctx context.Context, requestID string) (snapshot *StatusSnapshot, err error) {
	ctx, span := c.tracer.Start(ctx, "workflow.GetStatus",
		trace.WithAttributes(attribute.String("request.id", requestID)))
	defer func() { endSpan(span, err) }()

	req, err := c.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	rule, err := c.rules.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load rule: %w", err)
	}

	decisions, err := c.decisions.ListByRequestID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load decisions: %w", err)
	}
	if decisions == nil {
		decisions = []*entity.Decision{}
	}

	snapshot = &StatusSnapshot{
		RequestID: req.ID,
		Status:    req.Status,
		Rule:      rule,
		Decisions: decisions,
	}
	if rule != nil {
		tally := domainwf.Summarize(rule, decisions)
		snapshot.Tally = &tally
		if rule.Sequential && req.Status == entity.StatusPending {
			snapshot.NextInLine, _ = domainwf.NextInLine(rule, decisions)
		}
	}
	return snapshot, nil
}

func (c *coordinatorImpl) loadRequest(ctx context.Context, id string) (*entity.Request, error) {
	req, err := c.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %s", domainwf.ErrRequestNotFound, id)
	}
	return req, nil
}

// publish sends an informational event; delivery is best effort
func (c *coordinatorImpl) publish(ctx context.Context, evt *event.Event) {
	if c.dispatcher == nil {
		return
	}
	c.dispatcher.DispatchAsync(context.WithoutCancel(ctx), evt)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domainwf.Kind(err))
	}
	span.End()
}
