package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// DecisionRepository implements port.DecisionRepository
type DecisionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDecisionRepository creates a new decision ledger repository
func NewDecisionRepository(db *sql.DB, logger *zap.Logger) port.DecisionRepository {
	return &DecisionRepository{
		db:     db,
		logger: logger,
	}
}

// Append adds a decision to the ledger, assigning the next sequence number
// when the caller did not set one.
func (r *DecisionRepository) Append(ctx context.Context, d *entity.Decision) error {
	exec := sqlite.ExecutorFor(ctx, r.db)

	if d.Sequence == 0 {
		err := exec.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sequence), 0) + 1 FROM decisions WHERE request_id = ?`,
			d.RequestID,
		).Scan(&d.Sequence)
		if err != nil {
			r.logger.Error("Failed to compute decision sequence", zap.String("request_id", d.RequestID), zap.Error(err))
			return fmt.Errorf("failed to compute decision sequence: %w", err)
		}
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO decisions (id, request_id, approver_id, verdict, comment, sequence, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := exec.ExecContext(ctx, query,
		d.ID,
		d.RequestID,
		d.ApproverID,
		d.Verdict,
		d.Comment,
		d.Sequence,
		d.DecidedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s on request %s", workflow.ErrDuplicateDecision, d.ApproverID, d.RequestID)
	}
	if err != nil {
		r.logger.Error("Failed to append decision",
			zap.String("request_id", d.RequestID),
			zap.String("approver_id", d.ApproverID),
			zap.Error(err))
		return fmt.Errorf("failed to append decision: %w", err)
	}
	return nil
}

// ListByRequestID returns the ledger ordered by sequence
func (r *DecisionRepository) ListByRequestID(ctx context.Context, requestID string) ([]*entity.Decision, error) {
	query := `
		SELECT id, request_id, approver_id, verdict, comment, sequence, decided_at
		FROM decisions
		WHERE request_id = ?
		ORDER BY sequence
	`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to list decisions", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*entity.Decision
	for rows.Next() {
		var d entity.Decision
		if err := rows.Scan(
			&d.ID,
			&d.RequestID,
			&d.ApproverID,
			&d.Verdict,
			&d.Comment,
			&d.Sequence,
			&d.DecidedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, &d)
	}
	return decisions, rows.Err()
}

var _ port.DecisionRepository = (*DecisionRepository)(nil)
