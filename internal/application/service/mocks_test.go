package service

import (
	"context"
	"sync"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

type mockRequestRepo struct {
	createFunc          func(ctx context.Context, req *entity.Request) error
	getByIDFunc         func(ctx context.Context, id string) (*entity.Request, error)
	listFunc            func(ctx context.Context, limit, offset int) ([]*entity.Request, error)
	listByRequestorFunc func(ctx context.Context, requestorID string, limit, offset int) ([]*entity.Request, error)
	summarizeFunc       func(ctx context.Context, managerID string) ([]*entity.StatusTotal, error)
}

func (m *mockRequestRepo) Create(ctx context.Context, req *entity.Request) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, req)
	}
	return nil
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id string) (*entity.Request, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockRequestRepo) UpdateStatus(ctx context.Context, id string, status entity.Status) error {
	return nil
}

func (m *mockRequestRepo) List(ctx context.Context, limit, offset int) ([]*entity.Request, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, limit, offset)
	}
	return []*entity.Request{}, nil
}

func (m *mockRequestRepo) ListByRequestor(ctx context.Context, requestorID string, limit, offset int) ([]*entity.Request, error) {
	if m.listByRequestorFunc != nil {
		return m.listByRequestorFunc(ctx, requestorID, limit, offset)
	}
	return []*entity.Request{}, nil
}

func (m *mockRequestRepo) SummarizeByStatus(ctx context.Context) ([]*entity.StatusTotal, error) {
	if m.summarizeFunc != nil {
		return m.summarizeFunc(ctx, "")
	}
	return nil, nil
}

func (m *mockRequestRepo) SummarizeByManager(ctx context.Context, managerID string) ([]*entity.StatusTotal, error) {
	if m.summarizeFunc != nil {
		return m.summarizeFunc(ctx, managerID)
	}
	return nil, nil
}

// memUserRepo keeps users in a map so directory flows can be checked end to end
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*entity.User
}

func newMemUserRepo(users ...*entity.User) *memUserRepo {
	repo := &memUserRepo{users: make(map[string]*entity.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (m *memUserRepo) Create(ctx context.Context, user *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memUserRepo) UpdateRole(ctx context.Context, id string, role entity.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].Role = role
	return nil
}

func (m *memUserRepo) UpdateManager(ctx context.Context, id string, managerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].ManagerID = managerID
	return nil
}

func (m *memUserRepo) List(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

type mockTxManager struct{}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}
