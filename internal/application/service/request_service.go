package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/pkg/utils"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// CreateRequestInput is the payload for submitting an expense
type CreateRequestInput struct {
	RequestorID string     `json:"requestor_id"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	ExpenseDate *time.Time `json:"expense_date,omitempty"`
	PaidBy      string     `json:"paid_by,omitempty"`
	Remarks     string     `json:"remarks,omitempty"`
}

// RequestService manages expense requests
type RequestService interface {
	Create(ctx context.Context, in CreateRequestInput) (*entity.Request, error)
	Get(ctx context.Context, id string) (*entity.Request, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Request, error)
	ListByRequestor(ctx context.Context, requestorID string, limit, offset int) ([]*entity.Request, error)
	Summary(ctx context.Context) (*entity.ExpenseSummary, error)
	TeamSummary(ctx context.Context, managerID string) (*entity.ExpenseSummary, error)
}

type requestServiceImpl struct {
	requests port.RequestRepository
	users    port.UserRepository
	logger   Logger
	now      func() time.Time
}

// NewRequestService creates a new RequestService
func NewRequestService(requests port.RequestRepository, users port.UserRepository, logger Logger) RequestService {
	return &requestServiceImpl{
		requests: requests,
		users:    users,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create validates the input and stores a new request in status submitted
func (s *requestServiceImpl) Create(ctx context.Context, in CreateRequestInput) (*entity.Request, error) {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.Category = strings.ToLower(utils.SanitizeString(in.Category))
	in.Description = utils.SanitizeString(in.Description)
	in.Remarks = utils.SanitizeString(in.Remarks)

	if err := validateRequestInput(in); err != nil {
		return nil, err
	}

	requestor, err := s.users.GetByID(ctx, in.RequestorID)
	if err != nil {
		return nil, fmt.Errorf("get requestor: %w", err)
	}
	if requestor == nil {
		return nil, fmt.Errorf("%w: requestor %s", ErrUserNotFound, in.RequestorID)
	}

	now := s.now()
	req := &entity.Request{
		ID:          uuid.NewString(),
		RequestorID: requestor.ID,
		AmountCents: in.AmountCents,
		Currency:    in.Currency,
		Category:    in.Category,
		Description: in.Description,
		ExpenseDate: in.ExpenseDate,
		PaidBy:      in.PaidBy,
		Remarks:     in.Remarks,
		Status:      entity.StatusSubmitted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.requests.Create(ctx, req); err != nil {
		s.logger.Error("Failed to create request", "requestor_id", in.RequestorID, "error", err)
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.logger.Info("Request submitted",
		"request_id", req.ID,
		"requestor_id", req.RequestorID,
		"amount_cents", req.AmountCents,
		"currency", req.Currency,
	)
	return req, nil
}

func validateRequestInput(in CreateRequestInput) error {
	if strings.TrimSpace(in.RequestorID) == "" {
		return fmt.Errorf("%w: requestor_id is required", ErrValidation)
	}
	if err := utils.ValidateAmountCents(in.AmountCents); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := utils.ValidateCurrency(in.Currency); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if in.Category == "" {
		return fmt.Errorf("%w: category is required", ErrValidation)
	}
	if in.Description == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	return nil
}

// Get returns a request or ErrRequestNotFound
func (s *requestServiceImpl) Get(ctx context.Context, id string) (*entity.Request, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %s", domainwf.ErrRequestNotFound, id)
	}
	return req, nil
}

func (s *requestServiceImpl) List(ctx context.Context, limit, offset int) ([]*entity.Request, error) {
	limit, offset = page(limit, offset)
	reqs, err := s.requests.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return reqs, nil
}

func (s *requestServiceImpl) ListByRequestor(ctx context.Context, requestorID string, limit, offset int) ([]*entity.Request, error) {
	limit, offset = page(limit, offset)
	reqs, err := s.requests.ListByRequestor(ctx, requestorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list requests for %s: %w", requestorID, err)
	}
	return reqs, nil
}

// Summary totals every request in the company by status and currency
func (s *requestServiceImpl) Summary(ctx context.Context) (*entity.ExpenseSummary, error) {
	totals, err := s.requests.SummarizeByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("summarize requests: %w", err)
	}
	return &entity.ExpenseSummary{Totals: nonNilTotals(totals)}, nil
}

// TeamSummary totals the requests of a manager's direct reports
func (s *requestServiceImpl) TeamSummary(ctx context.Context, managerID string) (*entity.ExpenseSummary, error) {
	manager, err := s.users.GetByID(ctx, managerID)
	if err != nil {
		return nil, fmt.Errorf("get manager: %w", err)
	}
	if manager == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, managerID)
	}
	if !manager.Role.CanManage() {
		return nil, fmt.Errorf("%w: %s has role %s", ErrNotManager, managerID, manager.Role)
	}

	totals, err := s.requests.SummarizeByManager(ctx, managerID)
	if err != nil {
		return nil, fmt.Errorf("summarize team of %s: %w", managerID, err)
	}
	return &entity.ExpenseSummary{ManagerID: managerID, Totals: nonNilTotals(totals)}, nil
}

func nonNilTotals(totals []*entity.StatusTotal) []*entity.StatusTotal {
	if totals == nil {
		return []*entity.StatusTotal{}
	}
	return totals
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
