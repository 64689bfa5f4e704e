package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestDB(t *testing.T) (*sql.DB, *zap.Logger) {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "test.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).Run())
	return db.DB, logger
}

func seedUser(t *testing.T, repo *UserRepository, id string, role entity.Role) *entity.User {
	t.Helper()
	user := &entity.User{ID: id, Name: "User " + id, Email: id + "@example.com", Role: role}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func seedRequest(t *testing.T, repo *RequestRepository, id, requestorID string) *entity.Request {
	t.Helper()
	req := &entity.Request{
		ID:          id,
		RequestorID: requestorID,
		AmountCents: 12550,
		Currency:    "USD",
		Category:    entity.CategoryTravel,
		Description: "Taxi to airport",
		Status:      entity.StatusSubmitted,
	}
	require.NoError(t, repo.Create(context.Background(), req))
	return req
}

func TestUserRepository(t *testing.T) {
	db, logger := setupTestDB(t)
	repo := NewUserRepository(db, logger).(*UserRepository)
	ctx := context.Background()

	manager := seedUser(t, repo, "m1", entity.RoleManager)
	seedUser(t, repo, "e1", entity.RoleEmployee)

	t.Run("get by id", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "m1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, manager.Email, got.Email)
		assert.Equal(t, entity.RoleManager, got.Role)
		assert.Empty(t, got.ManagerID)
	})

	t.Run("missing user returns nil", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("assign and clear manager", func(t *testing.T) {
		require.NoError(t, repo.UpdateManager(ctx, "e1", "m1"))
		got, err := repo.GetByID(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, "m1", got.ManagerID)

		require.NoError(t, repo.UpdateManager(ctx, "e1", ""))
		got, err = repo.GetByID(ctx, "e1")
		require.NoError(t, err)
		assert.Empty(t, got.ManagerID)
	})

	t.Run("unknown manager violates foreign key", func(t *testing.T) {
		assert.Error(t, repo.UpdateManager(ctx, "e1", "ghost"))
	})

	t.Run("update role", func(t *testing.T) {
		require.NoError(t, repo.UpdateRole(ctx, "e1", entity.RoleAdmin))
		got, err := repo.GetByEmail(ctx, "e1@example.com")
		require.NoError(t, err)
		assert.Equal(t, entity.RoleAdmin, got.Role)
	})

	t.Run("duplicate email", func(t *testing.T) {
		err := repo.Create(ctx, &entity.User{ID: "x", Name: "X", Email: "m1@example.com", Role: entity.RoleEmployee})
		assert.Error(t, err)
	})

	t.Run("list", func(t *testing.T) {
		users, err := repo.List(ctx, 10, 0)
		require.NoError(t, err)
		assert.Len(t, users, 2)
	})
}

func TestRequestRepository(t *testing.T) {
	db, logger := setupTestDB(t)
	users := NewUserRepository(db, logger).(*UserRepository)
	repo := NewRequestRepository(db, logger).(*RequestRepository)
	ctx := context.Background()

	seedUser(t, users, "e1", entity.RoleEmployee)
	seedUser(t, users, "e2", entity.RoleEmployee)

	date := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	req := seedRequest(t, repo, "r1", "e1")
	withDate := &entity.Request{
		ID: "r2", RequestorID: "e2", AmountCents: 900, Currency: "EUR",
		Category: entity.CategoryMeal, Description: "Lunch", ExpenseDate: &date,
		PaidBy: "card", Remarks: "client visit", Status: entity.StatusSubmitted,
	}
	require.NoError(t, repo.Create(ctx, withDate))

	t.Run("round trip", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "r1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, req.AmountCents, got.AmountCents)
		assert.Equal(t, entity.StatusSubmitted, got.Status)
		assert.Nil(t, got.ExpenseDate)

		got, err = repo.GetByID(ctx, "r2")
		require.NoError(t, err)
		require.NotNil(t, got.ExpenseDate)
		assert.True(t, date.Equal(*got.ExpenseDate))
		assert.Equal(t, "client visit", got.Remarks)
	})

	t.Run("not found", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("update status", func(t *testing.T) {
		require.NoError(t, repo.UpdateStatus(ctx, "r1", entity.StatusPending))
		got, err := repo.GetByID(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, entity.StatusPending, got.Status)

		assert.Error(t, repo.UpdateStatus(ctx, "missing", entity.StatusPending))
		assert.Error(t, repo.UpdateStatus(ctx, "r1", entity.Status("bogus")))
	})

	t.Run("list", func(t *testing.T) {
		all, err := repo.List(ctx, 10, 0)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		mine, err := repo.ListByRequestor(ctx, "e2", 10, 0)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, "r2", mine[0].ID)
	})

	t.Run("unknown requestor violates foreign key", func(t *testing.T) {
		err := repo.Create(ctx, &entity.Request{ID: "r3", RequestorID: "ghost", AmountCents: 1,
			Currency: "USD", Category: "other", Description: "x", Status: entity.StatusSubmitted})
		assert.Error(t, err)
	})
}

func TestRequestRepository_Summaries(t *testing.T) {
	db, logger := setupTestDB(t)
	users := NewUserRepository(db, logger).(*UserRepository)
	repo := NewRequestRepository(db, logger).(*RequestRepository)
	ctx := context.Background()

	empty, err := repo.SummarizeByStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	seedUser(t, users, "m1", entity.RoleManager)
	seedUser(t, users, "e1", entity.RoleEmployee)
	seedUser(t, users, "e2", entity.RoleEmployee)
	seedUser(t, users, "e3", entity.RoleEmployee)
	require.NoError(t, users.UpdateManager(ctx, "e1", "m1"))
	require.NoError(t, users.UpdateManager(ctx, "e2", "m1"))

	seedRequest(t, repo, "r1", "e1")
	seedRequest(t, repo, "r2", "e2")
	seedRequest(t, repo, "r3", "e3")
	require.NoError(t, repo.Create(ctx, &entity.Request{ID: "r4", RequestorID: "e1", AmountCents: 700,
		Currency: "EUR", Category: entity.CategoryMeal, Description: "Dinner", Status: entity.StatusSubmitted}))
	require.NoError(t, repo.UpdateStatus(ctx, "r2", entity.StatusApproved))

	t.Run("company", func(t *testing.T) {
		totals, err := repo.SummarizeByStatus(ctx)
		require.NoError(t, err)
		summary := &entity.ExpenseSummary{Totals: totals}

		assert.Len(t, totals, 3)
		assert.Equal(t, int64(12550), summary.Total(entity.StatusApproved, "USD"))
		assert.Equal(t, int64(25100), summary.Total(entity.StatusSubmitted, "USD"))
		assert.Equal(t, int64(700), summary.Total(entity.StatusSubmitted, "EUR"))
		assert.Zero(t, summary.Total(entity.StatusRejected, "USD"))
	})

	t.Run("team", func(t *testing.T) {
		totals, err := repo.SummarizeByManager(ctx, "m1")
		require.NoError(t, err)
		summary := &entity.ExpenseSummary{Totals: totals}

		assert.Equal(t, int64(12550), summary.Total(entity.StatusApproved, "USD"))
		assert.Equal(t, int64(12550), summary.Total(entity.StatusSubmitted, "USD"))
		assert.Equal(t, int64(700), summary.Total(entity.StatusSubmitted, "EUR"))

		var count int
		for _, tot := range totals {
			count += tot.Count
		}
		assert.Equal(t, 3, count)
	})

	t.Run("manager without reports", func(t *testing.T) {
		totals, err := repo.SummarizeByManager(ctx, "e3")
		require.NoError(t, err)
		assert.Empty(t, totals)
	})
}

func TestRuleRepository(t *testing.T) {
	db, logger := setupTestDB(t)
	users := NewUserRepository(db, logger).(*UserRepository)
	requests := NewRequestRepository(db, logger).(*RequestRepository)
	repo := NewRuleRepository(db, logger)
	ctx := context.Background()

	seedUser(t, users, "e1", entity.RoleEmployee)
	seedRequest(t, requests, "r1", "e1")

	rule := &entity.Rule{
		ID:                  "rule-1",
		RequestID:           "r1",
		Description:         "Two of three",
		ManagerRequired:     true,
		ManagerID:           "m1",
		Sequential:          true,
		PercentageRequired:  66.7,
		Approvers:           []string{"a", "b", "c"},
		CompulsoryApprovers: []string{"b"},
	}
	require.NoError(t, repo.Create(ctx, rule))

	got, err := repo.GetByRequestID(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rule.Approvers, got.Approvers)
	assert.Equal(t, rule.CompulsoryApprovers, got.CompulsoryApprovers)
	assert.True(t, got.ManagerRequired)
	assert.True(t, got.Sequential)
	assert.Equal(t, "m1", got.ManagerID)
	assert.InDelta(t, 66.7, got.PercentageRequired, 1e-9)

	err = repo.Create(ctx, &entity.Rule{ID: "rule-2", RequestID: "r1", Approvers: []string{"a"}})
	assert.True(t, errors.Is(err, workflow.ErrRuleAlreadyExists), "got %v", err)

	missing, err := repo.GetByRequestID(ctx, "r9")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDecisionRepository(t *testing.T) {
	db, logger := setupTestDB(t)
	users := NewUserRepository(db, logger).(*UserRepository)
	requests := NewRequestRepository(db, logger).(*RequestRepository)
	repo := NewDecisionRepository(db, logger)
	ctx := context.Background()

	seedUser(t, users, "e1", entity.RoleEmployee)
	seedRequest(t, requests, "r1", "e1")

	first := &entity.Decision{ID: "d1", RequestID: "r1", ApproverID: "a", Verdict: entity.VerdictApprove}
	second := &entity.Decision{ID: "d2", RequestID: "r1", ApproverID: "b", Verdict: entity.VerdictReject, Comment: "no receipt"}
	require.NoError(t, repo.Append(ctx, first))
	require.NoError(t, repo.Append(ctx, second))
	assert.Equal(t, 1, first.Sequence)
	assert.Equal(t, 2, second.Sequence)

	dup := &entity.Decision{ID: "d3", RequestID: "r1", ApproverID: "a", Verdict: entity.VerdictReject}
	err := repo.Append(ctx, dup)
	assert.True(t, errors.Is(err, workflow.ErrDuplicateDecision), "got %v", err)

	ledger, err := repo.ListByRequestID(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, "a", ledger[0].ApproverID)
	assert.Equal(t, entity.VerdictReject, ledger[1].Verdict)
	assert.Equal(t, "no receipt", ledger[1].Comment)
}

func TestOutboxRepository(t *testing.T) {
	db, logger := setupTestDB(t)
	users := NewUserRepository(db, logger).(*UserRepository)
	requests := NewRequestRepository(db, logger).(*RequestRepository)
	repo := NewOutboxRepository(db, logger)
	ctx := context.Background()

	seedUser(t, users, "e1", entity.RoleEmployee)
	seedRequest(t, requests, "r1", "e1")

	a := &entity.OutboxEvent{EventID: "evt-a", RequestID: "r1", Type: "request.finalized", Payload: "{}"}
	b := &entity.OutboxEvent{EventID: "evt-b", RequestID: "r1", Type: "request.finalized", Payload: "{}"}
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	assert.NotZero(t, a.ID)

	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "evt-a", pending[0].EventID)

	require.NoError(t, repo.MarkSent(ctx, a.ID))
	require.NoError(t, repo.RecordFailure(ctx, b.ID, "timeout", false))

	pending, err = repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "timeout", pending[0].LastError)

	require.NoError(t, repo.RecordFailure(ctx, b.ID, "timeout again", true))
	pending, err = repo.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	all, err := repo.GetByRequestID(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, entity.OutboxStatusSent, all[0].Status)
	assert.NotNil(t, all[0].SentAt)
	assert.Equal(t, entity.OutboxStatusFailed, all[1].Status)
	assert.Equal(t, 2, all[1].Attempts)
}

func TestOutboxRepository_Deliveries(t *testing.T) {
	db, logger := setupTestDB(t)
	users := NewUserRepository(db, logger).(*UserRepository)
	requests := NewRequestRepository(db, logger).(*RequestRepository)
	repo := NewOutboxRepository(db, logger)
	ctx := context.Background()

	seedUser(t, users, "e1", entity.RoleEmployee)
	seedRequest(t, requests, "r1", "e1")

	row := &entity.OutboxEvent{EventID: "evt-a", RequestID: "r1", Type: "request.finalized", Payload: "{}"}
	require.NoError(t, repo.Create(ctx, row))

	none, err := repo.ListDeliveries(ctx, row.ID)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, repo.RecordDelivery(ctx, &entity.OutboxDelivery{
		OutboxID: row.ID, Handler: "requestor_notifier", Status: entity.OutboxStatusSent,
	}))
	require.NoError(t, repo.RecordDelivery(ctx, &entity.OutboxDelivery{
		OutboxID: row.ID, Handler: "audit_report", Status: entity.OutboxStatusFailed, Error: "disk full",
	}))
	// A second record for a settled handler keeps the first
	require.NoError(t, repo.RecordDelivery(ctx, &entity.OutboxDelivery{
		OutboxID: row.ID, Handler: "requestor_notifier", Status: entity.OutboxStatusFailed, Error: "late",
	}))

	got, err := repo.ListDeliveries(ctx, row.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byHandler := map[string]*entity.OutboxDelivery{}
	for _, d := range got {
		byHandler[d.Handler] = d
	}
	assert.Equal(t, entity.OutboxStatusSent, byHandler["requestor_notifier"].Status)
	assert.Empty(t, byHandler["requestor_notifier"].Error)
	assert.Equal(t, "disk full", byHandler["audit_report"].Error)
}

func TestTransaction_RollbackDiscardsWrites(t *testing.T) {
	db, logger := setupTestDB(t)
	tm := sqlite.NewDB(db, logger)
	users := NewUserRepository(db, logger).(*UserRepository)
	requests := NewRequestRepository(db, logger).(*RequestRepository)
	decisions := NewDecisionRepository(db, logger)
	ctx := context.Background()

	seedUser(t, users, "e1", entity.RoleEmployee)
	seedRequest(t, requests, "r1", "e1")

	boom := errors.New("boom")
	err := tm.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := decisions.Append(txCtx, &entity.Decision{ID: "d1", RequestID: "r1", ApproverID: "a", Verdict: entity.VerdictApprove}); err != nil {
			return err
		}
		if err := requests.UpdateStatus(txCtx, "r1", entity.StatusApproved); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	ledger, err := decisions.ListByRequestID(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, ledger)

	req, err := requests.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSubmitted, req.Status)
}
