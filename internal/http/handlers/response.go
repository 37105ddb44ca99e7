// Package handlers implements the marketplace REST endpoints. Handlers are
// transport-thin: they bind input, resolve the caller, call exactly one
// service method and translate the result or the service error Kind into an
// HTTP response.
//
// Every failure uses the same envelope:
//
//	HTTP/1.1 404 Not Found
//	{"error": "Order not found", "code": "not_found", "request_id": "..."}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/samrith-ratana/e-commerce/internal/http/middleware"
	"github.com/samrith-ratana/e-commerce/internal/services"
)

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	// Human-readable message, safe to show to users
	Error string `json:"error" example:"Insufficient stock"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"bad_request"`
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// MessageResponse is a bare acknowledgement.
type MessageResponse struct {
	Message string `json:"message" example:"Logged out"`
}

// fail aborts with the error envelope. 5xx responses are logged with the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: middleware.RequestIDFrom(c),
	})
}

// Fail is the exported fail for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr maps a service error onto the envelope. Classified errors keep
// their message; anything else is logged and reported as a generic 500.
func failErr(c *gin.Context, err error) {
	kind := services.KindOf(err)
	if kind == services.KindInternal {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}
	msg := err.Error()
	var se *services.Error
	if errors.As(err, &se) {
		msg = se.Msg
	}
	fail(c, kind.Status(), codeFor(kind), msg)
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
