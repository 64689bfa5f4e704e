package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

type mockCoordinator struct {
	attachRuleFunc     func(ctx context.Context, in workflow.RuleInput) (*entity.Rule, error)
	submitDecisionFunc func(ctx context.Context, in workflow.DecisionInput) (*workflow.DecisionResult, error)
	getStatusFunc      func(ctx context.Context, requestID string) (*workflow.StatusSnapshot, error)
}

func (m *mockCoordinator) AttachRule(ctx context.Context, in workflow.RuleInput) (*entity.Rule, error) {
	return m.attachRuleFunc(ctx, in)
}

func (m *mockCoordinator) SubmitDecision(ctx context.Context, in workflow.DecisionInput) (*workflow.DecisionResult, error) {
	return m.submitDecisionFunc(ctx, in)
}

func (m *mockCoordinator) GetStatus(ctx context.Context, requestID string) (*workflow.StatusSnapshot, error) {
	return m.getStatusFunc(ctx, requestID)
}

type mockRequestService struct {
	createFunc          func(ctx context.Context, in service.CreateRequestInput) (*entity.Request, error)
	getFunc             func(ctx context.Context, id string) (*entity.Request, error)
	listFunc            func(ctx context.Context, limit, offset int) ([]*entity.Request, error)
	listByRequestorFunc func(ctx context.Context, requestorID string, limit, offset int) ([]*entity.Request, error)
	summaryFunc         func(ctx context.Context, managerID string) (*entity.ExpenseSummary, error)
}

func (m *mockRequestService) Create(ctx context.Context, in service.CreateRequestInput) (*entity.Request, error) {
	return m.createFunc(ctx, in)
}

func (m *mockRequestService) Get(ctx context.Context, id string) (*entity.Request, error) {
	return m.getFunc(ctx, id)
}

func (m *mockRequestService) List(ctx context.Context, limit, offset int) ([]*entity.Request, error) {
	return m.listFunc(ctx, limit, offset)
}

func (m *mockRequestService) ListByRequestor(ctx context.Context, requestorID string, limit, offset int) ([]*entity.Request, error) {
	return m.listByRequestorFunc(ctx, requestorID, limit, offset)
}

func (m *mockRequestService) Summary(ctx context.Context) (*entity.ExpenseSummary, error) {
	return m.summaryFunc(ctx, "")
}

func (m *mockRequestService) TeamSummary(ctx context.Context, managerID string) (*entity.ExpenseSummary, error) {
	return m.summaryFunc(ctx, managerID)
}

type mockDirectory struct {
	service.DirectoryService
	createUserFunc    func(ctx context.Context, in service.CreateUserInput) (*entity.User, error)
	getUserFunc       func(ctx context.Context, id string) (*entity.User, error)
	changeRoleFunc    func(ctx context.Context, id string, role entity.Role) (*entity.User, error)
	assignManagerFunc func(ctx context.Context, id, managerID string) (*entity.User, error)
	listUsersFunc     func(ctx context.Context, limit, offset int) ([]*entity.User, error)
}

func (m *mockDirectory) ListUsers(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	return m.listUsersFunc(ctx, limit, offset)
}

func (m *mockDirectory) CreateUser(ctx context.Context, in service.CreateUserInput) (*entity.User, error) {
	return m.createUserFunc(ctx, in)
}

func (m *mockDirectory) GetUser(ctx context.Context, id string) (*entity.User, error) {
	return m.getUserFunc(ctx, id)
}

func (m *mockDirectory) ChangeRole(ctx context.Context, id string, role entity.Role) (*entity.User, error) {
	return m.changeRoleFunc(ctx, id, role)
}

func (m *mockDirectory) AssignManager(ctx context.Context, id, managerID string) (*entity.User, error) {
	return m.assignManagerFunc(ctx, id, managerID)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func newTestServer(services Services) *Server {
	gin.SetMode(gin.TestMode)
	return NewServer(DefaultServerConfig(), services, &mockLogger{})
}

func do(t *testing.T, s *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(Services{})

	rec, env := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestAttachRule_UsesPathID(t *testing.T) {
	var got workflow.RuleInput
	s := newTestServer(Services{Coordinator: &mockCoordinator{
		attachRuleFunc: func(ctx context.Context, in workflow.RuleInput) (*entity.Rule, error) {
			got = in
			return &entity.Rule{ID: "rule-1", RequestID: in.RequestID, Approvers: in.Approvers}, nil
		},
	}})

	rec, env := do(t, s, http.MethodPost, "/api/requests/r1/rule", map[string]interface{}{
		"approvers":           []string{"A", "B"},
		"sequential":          true,
		"percentage_required": 50,
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "r1", got.RequestID)
	assert.True(t, got.Sequential)
	assert.Equal(t, []string{"A", "B"}, got.Approvers)
}

func TestSubmitDecision(t *testing.T) {
	s := newTestServer(Services{Coordinator: &mockCoordinator{
		submitDecisionFunc: func(ctx context.Context, in workflow.DecisionInput) (*workflow.DecisionResult, error) {
			return &workflow.DecisionResult{
				Decision:       &entity.Decision{RequestID: in.RequestID, ApproverID: in.ApproverID, Verdict: in.Verdict, Sequence: 1},
				PreviousStatus: entity.StatusPending,
				Status:         entity.StatusApproved,
				Finalized:      true,
			}, nil
		},
	}})

	rec, env := do(t, s, http.MethodPost, "/api/requests/r1/decisions", map[string]string{
		"approver_id": "A",
		"verdict":     "approve",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var result workflow.DecisionResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, entity.StatusApproved, result.Status)
	assert.True(t, result.Finalized)
	assert.Equal(t, "r1", result.Decision.RequestID)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domainwf.ErrInvalidRule, http.StatusBadRequest, domainwf.KindInvalidRule},
		{domainwf.ErrInvalidDecision, http.StatusBadRequest, domainwf.KindInvalidDecision},
		{domainwf.ErrNotEligibleApprover, http.StatusForbidden, domainwf.KindNotEligibleApprover},
		{domainwf.ErrRequestNotFound, http.StatusNotFound, domainwf.KindRequestNotFound},
		{domainwf.ErrRuleAlreadyExists, http.StatusConflict, domainwf.KindRuleAlreadyExists},
		{domainwf.ErrNoRuleAttached, http.StatusConflict, domainwf.KindNoRuleAttached},
		{domainwf.ErrAlreadyTerminal, http.StatusConflict, domainwf.KindAlreadyTerminal},
		{domainwf.ErrDuplicateDecision, http.StatusConflict, domainwf.KindDuplicateDecision},
		{domainwf.ErrOutOfOrder, http.StatusConflict, domainwf.KindOutOfOrder},
		{domainwf.ErrBusy, http.StatusServiceUnavailable, domainwf.KindBusy},
		{fmt.Errorf("load request: disk I/O error"), http.StatusInternalServerError, domainwf.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			s := newTestServer(Services{Coordinator: &mockCoordinator{
				submitDecisionFunc: func(ctx context.Context, in workflow.DecisionInput) (*workflow.DecisionResult, error) {
					return nil, fmt.Errorf("%w: detail", tt.err)
				},
			}})

			rec, env := do(t, s, http.MethodPost, "/api/requests/r1/decisions", map[string]string{
				"approver_id": "A",
				"verdict":     "approve",
			})
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantCode, env.Code)

			if tt.wantCode == domainwf.KindBusy {
				assert.Equal(t, retryAfterSeconds, rec.Header().Get("Retry-After"))
			}
			if tt.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, "internal error", env.Error)
			}
		})
	}
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(Services{Coordinator: &mockCoordinator{}})

	rec, env := do(t, s, http.MethodPost, "/api/requests/r1/rule", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeBadRequest, env.Code)
}

func TestGetStatus(t *testing.T) {
	s := newTestServer(Services{Coordinator: &mockCoordinator{
		getStatusFunc: func(ctx context.Context, requestID string) (*workflow.StatusSnapshot, error) {
			return &workflow.StatusSnapshot{
				RequestID:  requestID,
				Status:     entity.StatusPending,
				Decisions:  []*entity.Decision{},
				Tally:      &domainwf.Tally{Approvals: 1, Undecided: 2, Required: 3},
				NextInLine: "B",
			}, nil
		},
	}})

	rec, env := do(t, s, http.MethodGet, "/api/requests/r7/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap workflow.StatusSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, "r7", snap.RequestID)
	assert.Equal(t, "B", snap.NextInLine)
	assert.Equal(t, 3, snap.Tally.Required)
}

func TestRequests(t *testing.T) {
	var listedBy string
	s := newTestServer(Services{Requests: &mockRequestService{
		createFunc: func(ctx context.Context, in service.CreateRequestInput) (*entity.Request, error) {
			if in.AmountCents <= 0 {
				return nil, fmt.Errorf("%w: amount must be positive", service.ErrValidation)
			}
			return &entity.Request{ID: "r1", RequestorID: in.RequestorID, Status: entity.StatusSubmitted}, nil
		},
		getFunc: func(ctx context.Context, id string) (*entity.Request, error) {
			return nil, fmt.Errorf("%w: %s", domainwf.ErrRequestNotFound, id)
		},
		listFunc: func(ctx context.Context, limit, offset int) ([]*entity.Request, error) {
			return nil, nil
		},
		listByRequestorFunc: func(ctx context.Context, requestorID string, limit, offset int) ([]*entity.Request, error) {
			listedBy = requestorID
			return []*entity.Request{{ID: "r1"}}, nil
		},
	}})

	rec, _ := do(t, s, http.MethodPost, "/api/requests", map[string]interface{}{
		"requestor_id": "emp", "amount_cents": 1000, "currency": "USD", "category": "meal", "description": "Lunch",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, env := do(t, s, http.MethodPost, "/api/requests", map[string]interface{}{"requestor_id": "emp"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, env.Code)

	rec, env = do(t, s, http.MethodGet, "/api/requests/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domainwf.KindRequestNotFound, env.Code)

	rec, env = do(t, s, http.MethodGet, "/api/requests", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(env.Data))

	rec, _ = do(t, s, http.MethodGet, "/api/requests?requestor_id=emp&limit=5", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "emp", listedBy)
}

func TestUsers(t *testing.T) {
	var gotRole entity.Role
	s := newTestServer(Services{Directory: &mockDirectory{
		createUserFunc: func(ctx context.Context, in service.CreateUserInput) (*entity.User, error) {
			return &entity.User{ID: "u1", Name: in.Name, Email: in.Email, Role: in.Role}, nil
		},
		getUserFunc: func(ctx context.Context, id string) (*entity.User, error) {
			return nil, fmt.Errorf("%w: %s", service.ErrUserNotFound, id)
		},
		changeRoleFunc: func(ctx context.Context, id string, role entity.Role) (*entity.User, error) {
			gotRole = role
			return &entity.User{ID: id, Role: role}, nil
		},
		assignManagerFunc: func(ctx context.Context, id, managerID string) (*entity.User, error) {
			return nil, fmt.Errorf("%w: %s is not a manager", service.ErrValidation, managerID)
		},
	}})

	rec, env := do(t, s, http.MethodPost, "/api/users", map[string]string{
		"name": "Ann", "email": "ann@example.com", "role": "manager",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, string(env.Data), `"role":"manager"`)

	rec, _ = do(t, s, http.MethodPost, "/api/users", map[string]string{"name": "Ann", "role": "overlord"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = do(t, s, http.MethodGet, "/api/users/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeUserNotFound, env.Code)

	rec, _ = do(t, s, http.MethodPut, "/api/users/u1/role", map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entity.RoleAdmin, gotRole)

	rec, env = do(t, s, http.MethodPut, "/api/users/u1/manager", map[string]string{"manager_id": "peer"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, env.Code)
}

func TestListUsers(t *testing.T) {
	var gotLimit, gotOffset int
	s := newTestServer(Services{Directory: &mockDirectory{
		listUsersFunc: func(ctx context.Context, limit, offset int) ([]*entity.User, error) {
			gotLimit, gotOffset = limit, offset
			if offset > 0 {
				return nil, nil
			}
			return []*entity.User{{ID: "u1", Role: entity.RoleEmployee}, {ID: "u2", Role: entity.RoleManager}}, nil
		},
	}})

	rec, env := do(t, s, http.MethodGet, "/api/users?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, gotLimit)

	var users []entity.User
	require.NoError(t, json.Unmarshal(env.Data, &users))
	require.Len(t, users, 2)
	assert.Equal(t, entity.RoleManager, users[1].Role)

	rec, env = do(t, s, http.MethodGet, "/api/users?offset=50", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, gotOffset)
	assert.JSONEq(t, `[]`, string(env.Data))

	rec, _ = do(t, s, http.MethodGet, "/api/users?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExpenseSummaries(t *testing.T) {
	s := newTestServer(Services{Requests: &mockRequestService{
		summaryFunc: func(ctx context.Context, managerID string) (*entity.ExpenseSummary, error) {
			switch managerID {
			case "":
				return &entity.ExpenseSummary{Totals: []*entity.StatusTotal{
					{Status: entity.StatusApproved, Currency: "USD", Count: 3, AmountCents: 9000},
				}}, nil
			case "boss":
				return &entity.ExpenseSummary{ManagerID: "boss", Totals: []*entity.StatusTotal{}}, nil
			case "emp":
				return nil, fmt.Errorf("%w: emp has role employee", service.ErrNotManager)
			default:
				return nil, fmt.Errorf("%w: %s", service.ErrUserNotFound, managerID)
			}
		},
	}})

	rec, env := do(t, s, http.MethodGet, "/api/expenses/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary entity.ExpenseSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, int64(9000), summary.Total(entity.StatusApproved, "USD"))

	rec, env = do(t, s, http.MethodGet, "/api/users/boss/team/expenses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"manager_id":"boss","totals":[]}`, string(env.Data))

	rec, env = do(t, s, http.MethodGet, "/api/users/emp/team/expenses", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeNotManager, env.Code)

	rec, env = do(t, s, http.MethodGet, "/api/users/ghost/team/expenses", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeUserNotFound, env.Code)
}
