package port

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// UserDirectory answers role and reporting-line questions for the engine
type UserDirectory interface {
	// IsEligibleApprover reports whether the identity may be listed as an approver
	IsEligibleApprover(ctx context.Context, userID string) (bool, error)
	// GetManagerOf returns the assigned manager, or "" when none
	GetManagerOf(ctx context.Context, userID string) (string, error)
	GetUser(ctx context.Context, userID string) (*entity.User, error)
}

// FinalizedNotice carries everything a sink needs about a finalized request
type FinalizedNotice struct {
	EventID     string
	Request     *entity.Request
	Rule        *entity.Rule
	Decisions   []*entity.Decision
	Requestor   *entity.User
	FinalStatus entity.Status
	FinalizedAt time.Time
}

// NotificationSink receives terminal outcomes. Failures never affect workflow status.
type NotificationSink interface {
	RequestFinalized(ctx context.Context, notice *FinalizedNotice) error
}

// ReportWriter persists an audit report for a finalized request and returns its location
type ReportWriter interface {
	WriteFinalized(ctx context.Context, notice *FinalizedNotice) (string, error)
}

// MessageSender defines IM message sending operations. Sends sharing a
// dedupKey are delivered at most once by the IM backend.
type MessageSender interface {
	SendText(ctx context.Context, openID, content, dedupKey string) error
}

// FileStorage stores generated artifacts under a base directory
type FileStorage interface {
	Save(ctx context.Context, path string, content []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) bool
	Delete(ctx context.Context, path string) error
	GetFullPath(path string) string
}
