package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const outboxColumns = `id, event_id, request_id, type, payload, status, attempts, last_error, sent_at, created_at`

// OutboxRepository implements port.OutboxRepository
type OutboxRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *sql.DB, logger *zap.Logger) port.OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a pending event. Called inside the transaction that produced it.
func (r *OutboxRepository) Create(ctx context.Context, evt *entity.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (event_id, request_id, type, payload, status, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, 0, '', ?)
	`

	if evt.Status == "" {
		evt.Status = entity.OutboxStatusPending
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		evt.EventID,
		evt.RequestID,
		evt.Type,
		evt.Payload,
		evt.Status,
		evt.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create outbox event",
			zap.String("request_id", evt.RequestID),
			zap.String("type", evt.Type),
			zap.Error(err))
		return fmt.Errorf("failed to create outbox event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	evt.ID = id
	return nil
}

// GetPending returns the oldest undelivered events
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*entity.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_events WHERE status = ? ORDER BY id LIMIT ?`
	return r.query(ctx, "get pending outbox events", query, entity.OutboxStatusPending, limit)
}

// GetByRequestID returns every event recorded for a request
func (r *OutboxRepository) GetByRequestID(ctx context.Context, requestID string) ([]*entity.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_events WHERE request_id = ? ORDER BY id`
	return r.query(ctx, "get outbox events by request", query, requestID)
}

// MarkSent marks an event as delivered
func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	query := `UPDATE outbox_events SET status = ?, sent_at = ?, attempts = attempts + 1, last_error = '' WHERE id = ?`

	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query, entity.OutboxStatusSent, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to mark outbox event as sent", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark sent: %w", err)
	}
	return nil
}

// RecordFailure counts a failed delivery attempt
func (r *OutboxRepository) RecordFailure(ctx context.Context, id int64, errMsg string, final bool) error {
	status := entity.OutboxStatusPending
	if final {
		status = entity.OutboxStatusFailed
	}

	query := `UPDATE outbox_events SET status = ?, attempts = attempts + 1, last_error = ? WHERE id = ?`
	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query, status, errMsg, id)
	if err != nil {
		r.logger.Error("Failed to record outbox failure", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

// ListDeliveries returns the settled handlers for an event
func (r *OutboxRepository) ListDeliveries(ctx context.Context, outboxID int64) ([]*entity.OutboxDelivery, error) {
	query := `SELECT outbox_id, handler, status, error, delivered_at FROM outbox_deliveries WHERE outbox_id = ? ORDER BY delivered_at`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, outboxID)
	if err != nil {
		r.logger.Error("Failed to list outbox deliveries", zap.Int64("outbox_id", outboxID), zap.Error(err))
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*entity.OutboxDelivery
	for rows.Next() {
		var d entity.OutboxDelivery
		if err := rows.Scan(&d.OutboxID, &d.Handler, &d.Status, &d.Error, &d.DeliveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, &d)
	}
	return deliveries, rows.Err()
}

// RecordDelivery settles a handler for an event. The first record wins.
func (r *OutboxRepository) RecordDelivery(ctx context.Context, d *entity.OutboxDelivery) error {
	query := `
		INSERT INTO outbox_deliveries (outbox_id, handler, status, error, delivered_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (outbox_id, handler) DO NOTHING
	`

	if d.DeliveredAt.IsZero() {
		d.DeliveredAt = time.Now().UTC()
	}

	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query, d.OutboxID, d.Handler, d.Status, d.Error, d.DeliveredAt)
	if err != nil {
		r.logger.Error("Failed to record outbox delivery",
			zap.Int64("outbox_id", d.OutboxID),
			zap.String("handler", d.Handler),
			zap.Error(err))
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

func (r *OutboxRepository) query(ctx context.Context, op, query string, args ...interface{}) ([]*entity.OutboxEvent, error) {
	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var events []*entity.OutboxEvent
	for rows.Next() {
		var evt entity.OutboxEvent
		var sentAt sql.NullTime
		if err := rows.Scan(
			&evt.ID,
			&evt.EventID,
			&evt.RequestID,
			&evt.Type,
			&evt.Payload,
			&evt.Status,
			&evt.Attempts,
			&evt.LastError,
			&sentAt,
			&evt.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		if sentAt.Valid {
			evt.SentAt = &sentAt.Time
		}
		events = append(events, &evt)
	}
	return events, rows.Err()
}

var _ port.OutboxRepository = (*OutboxRepository)(nil)
