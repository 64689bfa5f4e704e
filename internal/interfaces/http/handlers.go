package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	requests    service.RequestService
	directory   service.DirectoryService
	coordinator workflow.Coordinator
	version     string
	logger      Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, version string, logger Logger) *Handlers {
	return &Handlers{
		requests:    services.Requests,
		directory:   services.Directory,
		coordinator: services.Coordinator,
		version:     version,
		logger:      logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ListRequestsQuery represents query parameters for listing requests
type ListRequestsQuery struct {
	Limit       int    `form:"limit"`
	Offset      int    `form:"offset"`
	RequestorID string `form:"requestor_id"`
}

// PageQuery represents paging parameters
type PageQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// ChangeRoleRequest is the body of PUT /api/users/:id/role
type ChangeRoleRequest struct {
	Role entity.Role `json:"role" binding:"required"`
}

// AssignManagerRequest is the body of PUT /api/users/:id/manager
type AssignManagerRequest struct {
	ManagerID string `json:"manager_id"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   h.version,
		},
	})
}

// CreateUser handles POST /api/users
func (h *Handlers) CreateUser(c *gin.Context) {
	var in service.CreateUserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	user, err := h.directory.CreateUser(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "CreateUser", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: user})
}

// ListUsers handles GET /api/users
func (h *Handlers) ListUsers(c *gin.Context) {
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}

	users, err := h.directory.ListUsers(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		h.fail(c, "ListUsers", err)
		return
	}
	if users == nil {
		users = []*entity.User{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: users})
}

// TeamSummary handles GET /api/users/:id/team/expenses
func (h *Handlers) TeamSummary(c *gin.Context) {
	summary, err := h.requests.TeamSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "TeamSummary", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: summary})
}

// ExpenseSummary handles GET /api/expenses/summary
func (h *Handlers) ExpenseSummary(c *gin.Context) {
	summary, err := h.requests.Summary(c.Request.Context())
	if err != nil {
		h.fail(c, "ExpenseSummary", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: summary})
}

// GetUser handles GET /api/users/:id
func (h *Handlers) GetUser(c *gin.Context) {
	user, err := h.directory.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "GetUser", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: user})
}

// ChangeRole handles PUT /api/users/:id/role
func (h *Handlers) ChangeRole(c *gin.Context) {
	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	user, err := h.directory.ChangeRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		h.fail(c, "ChangeRole", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: user})
}

// AssignManager handles PUT /api/users/:id/manager
func (h *Handlers) AssignManager(c *gin.Context) {
	var req AssignManagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	user, err := h.directory.AssignManager(c.Request.Context(), c.Param("id"), req.ManagerID)
	if err != nil {
		h.fail(c, "AssignManager", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: user})
}

// CreateRequest handles POST /api/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	var in service.CreateRequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	req, err := h.requests.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "CreateRequest", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: req})
}

// ListRequests handles GET /api/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	var q ListRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}

	var (
		reqs []*entity.Request
		err  error
	)
	if q.RequestorID != "" {
		reqs, err = h.requests.ListByRequestor(c.Request.Context(), q.RequestorID, q.Limit, q.Offset)
	} else {
		reqs, err = h.requests.List(c.Request.Context(), q.Limit, q.Offset)
	}
	if err != nil {
		h.fail(c, "ListRequests", err)
		return
	}
	if reqs == nil {
		reqs = []*entity.Request{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: reqs})
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	req, err := h.requests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "GetRequest", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// AttachRule handles POST /api/requests/:id/rule
func (h *Handlers) AttachRule(c *gin.Context) {
	var in workflow.RuleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	in.RequestID = c.Param("id")

	rule, err := h.coordinator.AttachRule(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "AttachRule", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: rule})
}

// SubmitDecision handles POST /api/requests/:id/decisions
func (h *Handlers) SubmitDecision(c *gin.Context) {
	var in workflow.DecisionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	in.RequestID = c.Param("id")

	result, err := h.coordinator.SubmitDecision(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "SubmitDecision", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: result})
}

// GetStatus handles GET /api/requests/:id/status
func (h *Handlers) GetStatus(c *gin.Context) {
	snapshot, err := h.coordinator.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "GetStatus", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: snapshot})
}
