// Package handlers implements the planner's HTTP endpoints on gin.
package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/terminal-planner/pkg/errors"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ErrorRecorder counts errors by code.
type ErrorRecorder interface {
	RecordError(code string)
}

const ctxKeyErrorRecorder = "error_recorder"

// UseErrorRecorder makes writeAppError count every rendered error on r.
func UseErrorRecorder(r ErrorRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxKeyErrorRecorder, r)
		c.Next()
	}
}

// writeAppError renders err with the status of its code. Server errors keep
// their cause out of the response body.
func writeAppError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		code = errors.ErrCodeInternal
	}
	status := errors.HTTPStatusForCode(code)

	resp := ErrorResponse{Code: string(code), Message: errors.DefaultMessageForCode(code)}
	var ae *errors.AppError
	if stderrors.As(err, &ae) && status < http.StatusInternalServerError {
		resp.Message = ae.Message
		resp.Detail = ae.Detail
	}

	if v, ok := c.Get(ctxKeyErrorRecorder); ok {
		v.(ErrorRecorder).RecordError(string(code))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

// parsePagination reads offset and limit. Invalid values fall back to the
// defaults; limits are clamped by the repository.
func parsePagination(c *gin.Context) (offset, limit int) {
	offset, limit = 0, 20
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		offset = v
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	return offset, limit
}
