package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// RuleRepository implements port.RuleRepository
type RuleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *sql.DB, logger *zap.Logger) port.RuleRepository {
	return &RuleRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores the rule. The UNIQUE index on request_id rejects a second rule.
func (r *RuleRepository) Create(ctx context.Context, rule *entity.Rule) error {
	query := `
		INSERT INTO rules (
			id, request_id, description, manager_required, temp_manager, manager_id,
			sequential, percentage_required, approvers, compulsory_approvers, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	approvers, err := json.Marshal(nonNil(rule.Approvers))
	if err != nil {
		return fmt.Errorf("failed to encode approvers: %w", err)
	}
	compulsory, err := json.Marshal(nonNil(rule.CompulsoryApprovers))
	if err != nil {
		return fmt.Errorf("failed to encode compulsory approvers: %w", err)
	}

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	_, err = sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		rule.ID,
		rule.RequestID,
		rule.Description,
		rule.ManagerRequired,
		rule.TempManager,
		rule.ManagerID,
		rule.Sequential,
		rule.PercentageRequired,
		string(approvers),
		string(compulsory),
		rule.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: request %s", workflow.ErrRuleAlreadyExists, rule.RequestID)
	}
	if err != nil {
		r.logger.Error("Failed to create rule", zap.String("request_id", rule.RequestID), zap.Error(err))
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// GetByRequestID retrieves the rule attached to a request
func (r *RuleRepository) GetByRequestID(ctx context.Context, requestID string) (*entity.Rule, error) {
	query := `
		SELECT id, request_id, description, manager_required, temp_manager, manager_id,
			sequential, percentage_required, approvers, compulsory_approvers, created_at
		FROM rules
		WHERE request_id = ?
	`

	var rule entity.Rule
	var approvers, compulsory string

	err := sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, requestID).Scan(
		&rule.ID,
		&rule.RequestID,
		&rule.Description,
		&rule.ManagerRequired,
		&rule.TempManager,
		&rule.ManagerID,
		&rule.Sequential,
		&rule.PercentageRequired,
		&approvers,
		&compulsory,
		&rule.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get rule", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	if err := json.Unmarshal([]byte(approvers), &rule.Approvers); err != nil {
		return nil, fmt.Errorf("failed to decode approvers: %w", err)
	}
	if err := json.Unmarshal([]byte(compulsory), &rule.CompulsoryApprovers); err != nil {
		return nil, fmt.Errorf("failed to decode compulsory approvers: %w", err)
	}
	return &rule, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

var _ port.RuleRepository = (*RuleRepository)(nil)
