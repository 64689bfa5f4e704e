package worker

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"go.uber.org/zap"
)

// Handler names the sinks are subscribed under. The notifier is fire and
// forget and belongs in OutboxWorkerConfig.SingleAttempt.
const (
	NotifierHandlerName = "requestor_notifier"
	ReportHandlerName   = "audit_report"
)

// NoticeLoader rebuilds the committed state of a finalized request for sinks
type NoticeLoader struct {
	requests  port.RequestRepository
	rules     port.RuleRepository
	decisions port.DecisionRepository
	directory port.UserDirectory
}

// NewNoticeLoader creates a loader over the engine's stores
func NewNoticeLoader(
	requests port.RequestRepository,
	rules port.RuleRepository,
	decisions port.DecisionRepository,
	directory port.UserDirectory,
) *NoticeLoader {
	return &NoticeLoader{
		requests:  requests,
		rules:     rules,
		decisions: decisions,
		directory: directory,
	}
}

// Load builds the notice for a request.finalized event
func (l *NoticeLoader) Load(ctx context.Context, evt *event.Event) (*port.FinalizedNotice, error) {
	if evt.Type != event.TypeRequestFinalized {
		return nil, fmt.Errorf("unexpected event type %s", evt.Type)
	}

	req, err := l.requests.GetByID(ctx, evt.RequestID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("request %s not found", evt.RequestID)
	}

	rule, err := l.rules.GetByRequestID(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}

	decisions, err := l.decisions.ListByRequestID(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}

	requestor, err := l.directory.GetUser(ctx, req.RequestorID)
	if err != nil {
		return nil, fmt.Errorf("get requestor: %w", err)
	}

	final := entity.Status(evt.GetPayloadString(event.KeyFinalStatus))
	if !final.IsTerminal() {
		final = req.Status
	}

	return &port.FinalizedNotice{
		EventID:     evt.ID,
		Request:     req,
		Rule:        rule,
		Decisions:   decisions,
		Requestor:   requestor,
		FinalStatus: final,
		FinalizedAt: evt.Timestamp,
	}, nil
}

// NotificationHandler adapts a NotificationSink to the dispatcher
func NotificationHandler(loader *NoticeLoader, sink port.NotificationSink) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		notice, err := loader.Load(ctx, evt)
		if err != nil {
			return err
		}
		return sink.RequestFinalized(ctx, notice)
	}
}

// ReportHandler adapts a ReportWriter to the dispatcher
func ReportHandler(loader *NoticeLoader, writer port.ReportWriter, logger *zap.Logger) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		notice, err := loader.Load(ctx, evt)
		if err != nil {
			return err
		}
		path, err := writer.WriteFinalized(ctx, notice)
		if err != nil {
			return err
		}
		logger.Info("Decision report written",
			zap.String("request_id", notice.Request.ID),
			zap.String("path", path))
		return nil
	}
}
