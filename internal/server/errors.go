package server

import (
	"net/http"

	"github.com/baladiya/wastebilling/internal/fault"
	"github.com/gin-gonic/gin"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware renders the last handler error as JSON. It
// only writes when the handler has not written a body itself.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return fault.Validation("invalid request")
}

func mapError(err error) (int, errorPayload) {
	switch fault.KindOf(err) {
	case fault.KindValidation:
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case fault.KindNotFound:
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}
	case fault.KindStateGuard:
		return http.StatusConflict, errorPayload{
			Type:    "state_guard",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger's error_type and
// error_code fields without leaking message contents.
func classifyErrorForLog(err error) (string, string) {
	switch fault.KindOf(err) {
	case fault.KindValidation:
		return "validation_error", "invalid_request"
	case fault.KindNotFound:
		return "not_found", "not_found"
	case fault.KindStateGuard:
		return "state_guard", "conflict"
	default:
		return "internal_error", "internal_error"
	}
}
