package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// In-memory stores guarded by mutexes so the coordinator can be exercised concurrently.

type memRequests struct {
	mu       sync.Mutex
	requests map[string]*entity.Request
	updates  int
}

func (m *memRequests) Create(ctx context.Context, req *entity.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *memRequests) GetByID(ctx context.Context, id string) (*entity.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (m *memRequests) UpdateStatus(ctx context.Context, id string, status entity.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return fmt.Errorf("request %s not found", id)
	}
	req.Status = status
	m.updates++
	return nil
}

func (m *memRequests) List(ctx context.Context, limit, offset int) ([]*entity.Request, error) {
	return nil, nil
}

func (m *memRequests) ListByRequestor(ctx context.Context, requestorID string, limit, offset int) ([]*entity.Request, error) {
	return nil, nil
}

func (m *memRequests) SummarizeByStatus(ctx context.Context) ([]*entity.StatusTotal, error) {
	return nil, nil
}

func (m *memRequests) SummarizeByManager(ctx context.Context, managerID string) ([]*entity.StatusTotal, error) {
	return nil, nil
}

func (m *memRequests) status(id string) entity.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[id].Status
}

type memRules struct {
	mu    sync.Mutex
	rules map[string]*entity.Rule
}

func (m *memRules) Create(ctx context.Context, rule *entity.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[rule.RequestID]; ok {
		return domainwf.ErrRuleAlreadyExists
	}
	cp := *rule
	m.rules[rule.RequestID] = &cp
	return nil
}

func (m *memRules) GetByRequestID(ctx context.Context, requestID string) (*entity.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[requestID]
	if !ok {
		return nil, nil
	}
	cp := *rule
	return &cp, nil
}

type memDecisions struct {
	mu        sync.Mutex
	decisions map[string][]*entity.Decision
	appendErr error
}

func (m *memDecisions) Append(ctx context.Context, d *entity.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	for _, existing := range m.decisions[d.RequestID] {
		if existing.ApproverID == d.ApproverID {
			return domainwf.ErrDuplicateDecision
		}
	}
	cp := *d
	m.decisions[d.RequestID] = append(m.decisions[d.RequestID], &cp)
	return nil
}

func (m *memDecisions) ListByRequestID(ctx context.Context, requestID string) ([]*entity.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.Decision, 0, len(m.decisions[requestID]))
	for _, d := range m.decisions[requestID] {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (m *memDecisions) count(requestID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.decisions[requestID])
}

type memOutbox struct {
	mu     sync.Mutex
	events []*entity.OutboxEvent
}

func (m *memOutbox) Create(ctx context.Context, evt *entity.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *evt
	cp.ID = int64(len(m.events) + 1)
	m.events = append(m.events, &cp)
	evt.ID = cp.ID
	return nil
}

func (m *memOutbox) GetPending(ctx context.Context, limit int) ([]*entity.OutboxEvent, error) {
	return nil, nil
}

func (m *memOutbox) GetByRequestID(ctx context.Context, requestID string) ([]*entity.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.OutboxEvent
	for _, e := range m.events {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memOutbox) MarkSent(ctx context.Context, id int64) error { return nil }

func (m *memOutbox) ListDeliveries(ctx context.Context, outboxID int64) ([]*entity.OutboxDelivery, error) {
	return nil, nil
}

func (m *memOutbox) RecordDelivery(ctx context.Context, d *entity.OutboxDelivery) error { return nil }

func (m *memOutbox) RecordFailure(ctx context.Context, id int64, errMsg string, final bool) error {
	return nil
}

type memDirectory struct {
	users map[string]*entity.User
}

func (m *memDirectory) IsEligibleApprover(ctx context.Context, userID string) (bool, error) {
	user, ok := m.users[userID]
	if !ok {
		return false, nil
	}
	return user.Role.CanApprove(), nil
}

func (m *memDirectory) GetManagerOf(ctx context.Context, userID string) (string, error) {
	if user, ok := m.users[userID]; ok {
		return user.ManagerID, nil
	}
	return "", nil
}

func (m *memDirectory) GetUser(ctx context.Context, userID string) (*entity.User, error) {
	return m.users[userID], nil
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *recordingDispatcher) Subscribe(event.Type, dispatcher.Handler)              {}
func (r *recordingDispatcher) SubscribeNamed(event.Type, string, dispatcher.Handler) {}
func (r *recordingDispatcher) Unsubscribe(event.Type, string)                        {}
func (r *recordingDispatcher) ListHandlers(event.Type) []dispatcher.HandlerInfo      { return nil }
func (r *recordingDispatcher) Close() error                                          { return nil }

func (r *recordingDispatcher) DispatchTo(ctx context.Context, evt *event.Event, name string) error {
	return r.Dispatch(ctx, evt)
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	r.DispatchAsync(ctx, evt)
	return nil
}

func (r *recordingDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingDispatcher) count(t event.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
