// Package handlers implements the gateway's REST endpoints.
//
// Every failure answers with ErrorResponse and a stable code from errors.go.
// Upstream failures keep the message the QA API gave, so the UI shows the
// same text it would have shown when calling the API directly.
//
// Example error response:
//
//	HTTP/1.1 400 Bad Request
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "validation_failed",
//	  "message": "email must be a valid email address",
//	  "errors": ["email must be a valid email address"]
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-docqa-web/internal/http/middleware"
)

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	RequestID string   `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string   `json:"code" example:"not_found"`
	Message   string   `json:"message" example:"Document not found"`
	Errors    []string `json:"errors,omitempty"`
	Redirect  string   `json:"redirect,omitempty" example:"/auth/login"`
}

// fail aborts with the envelope. 5xx are logged with the request logger.
func fail(c *gin.Context, status int, code, msg string) {
	failWith(c, status, ErrorResponse{Code: code, Message: msg})
}

func failWith(c *gin.Context, status int, resp ErrorResponse) {
	resp.RequestID = middleware.RequestIDFrom(c)
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", resp.Code).
			Str("message", resp.Message).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail is fail for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }
