package lark

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"go.uber.org/zap"
)

// Notifier tells the requestor over Lark IM that their request was decided
type Notifier struct {
	sender port.MessageSender
	logger *zap.Logger
}

// NewNotifier creates a Lark notification sink
func NewNotifier(sender port.MessageSender, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		logger: logger,
	}
}

// RequestFinalized sends the outcome to the requestor's Lark account.
// Requestors without a linked Lark account are skipped. The event id is the
// dedup key, so a resend after a crash does not reach the requestor twice.
func (n *Notifier) RequestFinalized(ctx context.Context, notice *port.FinalizedNotice) error {
	if notice.Requestor == nil || notice.Requestor.LarkOpenID == "" {
		n.logger.Info("Requestor has no Lark account, skipping notification",
			zap.String("request_id", notice.Request.ID))
		return nil
	}

	if err := n.sender.SendText(ctx, notice.Requestor.LarkOpenID, FormatNotice(notice), notice.EventID); err != nil {
		return fmt.Errorf("notify requestor %s: %w", notice.Requestor.ID, err)
	}
	return nil
}

// FormatNotice renders the message body for a finalized request
func FormatNotice(notice *port.FinalizedNotice) string {
	req := notice.Request

	var b strings.Builder
	outcome := "approved"
	if notice.FinalStatus == entity.StatusRejected {
		outcome = "rejected"
	}
	fmt.Fprintf(&b, "Your expense request has been %s.\n", outcome)
	fmt.Fprintf(&b, "Request: %s\n", req.ID)
	fmt.Fprintf(&b, "Amount: %s %s\n", formatCents(req.AmountCents), req.Currency)
	fmt.Fprintf(&b, "Category: %s\n", req.Category)
	fmt.Fprintf(&b, "Description: %s\n", req.Description)

	if len(notice.Decisions) > 0 {
		b.WriteString("\nDecisions:\n")
		for _, d := range notice.Decisions {
			fmt.Fprintf(&b, "%d. %s %s", d.Sequence, d.ApproverID, d.Verdict)
			if d.Comment != "" {
				fmt.Fprintf(&b, " (%s)", d.Comment)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

var _ port.NotificationSink = (*Notifier)(nil)
