package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/service"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Codes for failures raised outside the workflow engine
const (
	CodeValidation   = "Validation"
	CodeUserNotFound = "UserNotFound"
	CodeUserExists   = "UserExists"
	CodeNotManager   = "NotManager"
	CodeBadRequest   = "BadRequest"
)

// retryAfterSeconds is advertised to clients that hit a busy request
const retryAfterSeconds = "1"

var kindStatus = map[string]int{
	domainwf.KindInvalidRule:         http.StatusBadRequest,
	domainwf.KindInvalidDecision:     http.StatusBadRequest,
	domainwf.KindNotEligibleApprover: http.StatusForbidden,
	domainwf.KindRequestNotFound:     http.StatusNotFound,
	domainwf.KindRuleAlreadyExists:   http.StatusConflict,
	domainwf.KindNoRuleAttached:      http.StatusConflict,
	domainwf.KindAlreadyTerminal:     http.StatusConflict,
	domainwf.KindDuplicateDecision:   http.StatusConflict,
	domainwf.KindOutOfOrder:          http.StatusConflict,
	domainwf.KindBusy:                http.StatusServiceUnavailable,
}

// classify maps an application error to an HTTP status and a stable code
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, CodeUserNotFound
	case errors.Is(err, service.ErrUserExists):
		return http.StatusConflict, CodeUserExists
	case errors.Is(err, service.ErrNotManager):
		return http.StatusForbidden, CodeNotManager
	}

	kind := domainwf.Kind(err)
	if status, ok := kindStatus[kind]; ok {
		return status, kind
	}
	return http.StatusInternalServerError, domainwf.KindInternal
}

func (h *Handlers) fail(c *gin.Context, op string, err error) {
	status, code := classify(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", "error", err, "request_id", c.GetString(requestIDHeader))
		msg = "internal error"
	}
	if code == domainwf.KindBusy {
		c.Header("Retry-After", retryAfterSeconds)
	}

	c.JSON(status, Response{Success: false, Error: msg, Code: code})
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg, Code: CodeBadRequest})
}
