// Package apierr renders the gateway's uniform error envelope. Every error
// response carries the same shape regardless of which component raised it:
//
//	{
//	  "success": false,
//	  "error":   {"message": ..., "type": ..., "status": ..., "errors": [...]},
//	  "meta":    {"requestId": ..., "timestamp": ...}
//	}
package apierr

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/valyala/fasthttp"
)

// Error type constants.
const (
	TypeValidation     = "validation_error"
	TypeAuthentication = "authentication_error"
	TypeRateLimit      = "rate_limit_error"
	TypeProvider       = "provider_error"
	TypeServer         = "server_error"
)

type (
	// Detail is the error block of the envelope.
	Detail struct {
		Message string   `json:"message"`
		Type    string   `json:"type"`
		Status  int      `json:"status"`
		Errors  []string `json:"errors,omitempty"`
	}

	meta struct {
		RequestID string `json:"requestId"`
		Timestamp string `json:"timestamp"`
	}

	envelope struct {
		Success bool   `json:"success"`
		Error   Detail `json:"error"`
		Meta    meta   `json:"meta"`
	}
)

// statusCoder is implemented by typed gateway errors that know their own
// HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// failureLister is implemented by errors that aggregate multiple failure
// messages (authentication runs all checks before rejecting).
type failureLister interface {
	FailureList() []string
}

// Write renders the envelope with an explicit status and type.
func Write(ctx *fasthttp.RequestCtx, requestID string, status int, errType, message string, failures []string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{
		Success: false,
		Error: Detail{
			Message: message,
			Type:    errType,
			Status:  status,
			Errors:  failures,
		},
		Meta: meta{
			RequestID: requestID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
	ctx.SetBody(body)
}

// WriteError maps err onto the envelope. Typed errors carry their own status
// via HTTPStatus; anything else becomes a 500 server_error.
func WriteError(ctx *fasthttp.RequestCtx, requestID string, err error) {
	status := fasthttp.StatusInternalServerError
	var sc statusCoder
	if errors.As(err, &sc) {
		status = sc.HTTPStatus()
	}

	var failures []string
	var fl failureLister
	if errors.As(err, &fl) {
		failures = fl.FailureList()
	}

	if status == fasthttp.StatusTooManyRequests {
		ctx.Response.Header.Set("Retry-After", "60")
	}

	Write(ctx, requestID, status, typeFor(status), err.Error(), failures)
}

// WriteRateLimit writes a 429 with a Retry-After hint.
func WriteRateLimit(ctx *fasthttp.RequestCtx, requestID string) {
	ctx.Response.Header.Set("Retry-After", "60")
	Write(ctx, requestID, fasthttp.StatusTooManyRequests, TypeRateLimit, "rate limit exceeded", nil)
}

func typeFor(status int) string {
	switch {
	case status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden:
		return TypeAuthentication
	case status == fasthttp.StatusTooManyRequests:
		return TypeRateLimit
	case status >= 400 && status < 500:
		return TypeValidation
	case status == fasthttp.StatusBadGateway || status == fasthttp.StatusGatewayTimeout:
		return TypeProvider
	default:
		return TypeServer
	}
}
