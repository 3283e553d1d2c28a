package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/okian/battle/internal/domain/fault"
	"github.com/okian/battle/pkg/logger"
	"github.com/okian/battle/pkg/metrics"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var statusByCode = map[fault.Code]int{
	fault.CodeBadRequest:  http.StatusBadRequest,
	fault.CodeNotFound:    http.StatusNotFound,
	fault.CodeForbidden:   http.StatusForbidden,
	fault.CodeConflict:    http.StatusConflict,
	fault.CodeNoQuestions: http.StatusServiceUnavailable,
	fault.CodeInternal:    http.StatusInternalServerError,
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	if s, ok := statusByCode[fault.CodeOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// writeError aborts c with the {code, message} body for err. Internal
// details are logged, never returned.
func writeError(c *gin.Context, err error) {
	code := fault.CodeOf(err)
	status := StatusFor(err)
	msg := err.Error()
	if code == fault.CodeInternal {
		metrics.RecordErrorByComponent("api", string(code))
		logger.Get().Named("api").Error(c.Request.Context(), "request failed",
			logger.String("path", c.FullPath()),
			logger.Error(err),
		)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, errorResponse{Code: string(code), Message: msg})
}

// bindOptionalJSON decodes the body into v; an empty body leaves v as is.
func bindOptionalJSON(c *gin.Context, op string, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return fault.WrapKind(op, fault.ErrBadRequest, err)
	}
	return nil
}

// bindJSON decodes a required body into v.
func bindJSON(c *gin.Context, op string, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return fault.WrapKind(op, fault.ErrBadRequest, err)
	}
	return nil
}
