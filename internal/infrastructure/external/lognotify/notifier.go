package lognotify

import (
	"context"

	"github.com/garyjia/expense-approval/internal/application/port"
	"go.uber.org/zap"
)

// Notifier records finalized requests in the application log.
// It stands in for the Lark sink when Lark is disabled.
type Notifier struct {
	logger *zap.Logger
}

// NewNotifier creates a log-backed notification sink
func NewNotifier(logger *zap.Logger) *Notifier {
	return &Notifier{logger: logger}
}

// RequestFinalized logs the outcome and never fails
func (n *Notifier) RequestFinalized(ctx context.Context, notice *port.FinalizedNotice) error {
	fields := []zap.Field{
		zap.String("event_id", notice.EventID),
		zap.String("request_id", notice.Request.ID),
		zap.String("requestor_id", notice.Request.RequestorID),
		zap.String("status", notice.FinalStatus.String()),
		zap.Int64("amount_cents", notice.Request.AmountCents),
		zap.String("currency", notice.Request.Currency),
		zap.Int("decisions", len(notice.Decisions)),
		zap.Time("finalized_at", notice.FinalizedAt),
	}
	if notice.Rule != nil {
		fields = append(fields, zap.Strings("approvers", notice.Rule.Approvers))
	}

	n.logger.Info("Request finalized", fields...)
	return nil
}

var _ port.NotificationSink = (*Notifier)(nil)
