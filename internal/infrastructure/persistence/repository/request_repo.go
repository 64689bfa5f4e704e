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

const requestColumns = `id, requestor_id, amount_cents, currency, category, description,
	expense_date, paid_by, remarks, status, created_at, updated_at`

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new expense request
func (r *RequestRepository) Create(ctx context.Context, req *entity.Request) error {
	query := `
		INSERT INTO requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = req.CreatedAt

	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		req.ID,
		req.RequestorID,
		req.AmountCents,
		req.Currency,
		req.Category,
		req.Description,
		req.ExpenseDate,
		req.PaidBy,
		req.Remarks,
		req.Status,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.String("request_id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// GetByID retrieves a request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = ?`

	req, err := scanRequest(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request by ID", zap.String("request_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// UpdateStatus updates the workflow status of a request
func (r *RequestRepository) UpdateStatus(ctx context.Context, id string, status entity.Status) error {
	query := `UPDATE requests SET status = ?, updated_at = ? WHERE id = ?`

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update status",
			zap.String("request_id", id),
			zap.String("status", status.String()),
			zap.Error(err))
		return fmt.Errorf("failed to update status: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update status: request %s not found", id)
	}
	return nil
}

// List retrieves requests newest first
func (r *RequestRepository) List(ctx context.Context, limit, offset int) ([]*entity.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	return r.query(ctx, "list requests", query, limit, offset)
}

// ListByRequestor retrieves the requests submitted by one user
func (r *RequestRepository) ListByRequestor(ctx context.Context, requestorID string, limit, offset int) ([]*entity.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE requestor_id = ?
		ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	return r.query(ctx, "list requests by requestor", query, requestorID, limit, offset)
}

// SummarizeByStatus totals every request by status and currency
func (r *RequestRepository) SummarizeByStatus(ctx context.Context) ([]*entity.StatusTotal, error) {
	query := `
		SELECT status, currency, COUNT(*), COALESCE(SUM(amount_cents), 0)
		FROM requests
		GROUP BY status, currency
		ORDER BY status, currency
	`
	return r.summarize(ctx, "summarize requests", query)
}

// SummarizeByManager totals the requests submitted by the manager's direct reports
func (r *RequestRepository) SummarizeByManager(ctx context.Context, managerID string) ([]*entity.StatusTotal, error) {
	query := `
		SELECT r.status, r.currency, COUNT(*), COALESCE(SUM(r.amount_cents), 0)
		FROM requests r
		JOIN users u ON u.id = r.requestor_id
		WHERE u.manager_id = ?
		GROUP BY r.status, r.currency
		ORDER BY r.status, r.currency
	`
	return r.summarize(ctx, "summarize team requests", query, managerID)
}

func (r *RequestRepository) summarize(ctx context.Context, op, query string, args ...interface{}) ([]*entity.StatusTotal, error) {
	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	totals := []*entity.StatusTotal{}
	for rows.Next() {
		var t entity.StatusTotal
		if err := rows.Scan(&t.Status, &t.Currency, &t.Count, &t.AmountCents); err != nil {
			return nil, fmt.Errorf("failed to scan total: %w", err)
		}
		totals = append(totals, &t)
	}
	return totals, rows.Err()
}

func (r *RequestRepository) query(ctx context.Context, op, query string, args ...interface{}) ([]*entity.Request, error) {
	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var requests []*entity.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*entity.Request, error) {
	var req entity.Request
	var expenseDate sql.NullTime

	err := row.Scan(
		&req.ID,
		&req.RequestorID,
		&req.AmountCents,
		&req.Currency,
		&req.Category,
		&req.Description,
		&expenseDate,
		&req.PaidBy,
		&req.Remarks,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if expenseDate.Valid {
		req.ExpenseDate = &expenseDate.Time
	}
	return &req, nil
}

var _ port.RequestRepository = (*RequestRepository)(nil)
