package apiresponses

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// APIError is the standardized error body. Every non-2xx response from the
// issuance service carries a message the client can surface verbatim.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// RespondBadRequest sends a 400 Bad Request response.
// Use this for client errors like malformed JSON or invalid parameters.
func RespondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, APIError{
		Message: message,
		Code:    "BAD_REQUEST",
	})
}

// RespondUnauthorized sends a 401 Unauthorized response.
// Use this when the session token is missing or invalid.
func RespondUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "not authenticated"
	}
	c.JSON(http.StatusUnauthorized, APIError{
		Message: message,
		Code:    "UNAUTHORIZED",
	})
}

// RespondForbidden sends a 403 Forbidden response with an optional reason.
func RespondForbidden(c *gin.Context, reason string) {
	if reason == "" {
		reason = "access denied"
	}
	c.JSON(http.StatusForbidden, APIError{
		Message: reason,
		Code:    "FORBIDDEN",
	})
}

// RespondNotFound sends a 404 Not Found response.
func RespondNotFound(c *gin.Context, resourceType, resourceName string) {
	c.JSON(http.StatusNotFound, APIError{
		Message: fmt.Sprintf("%s not found: %s", resourceType, resourceName),
		Code:    "NOT_FOUND",
	})
}

// RespondGone sends a 410 Gone response. The device-flow poll endpoint uses
// this to signal an expired device code.
func RespondGone(c *gin.Context, message string) {
	c.JSON(http.StatusGone, APIError{
		Message: message,
		Code:    "GONE",
	})
}

// RespondTooManyRequests sends a 429 response. The device-flow poll endpoint
// uses this to relay the platform's slow-down signal.
func RespondTooManyRequests(c *gin.Context, message string) {
	c.JSON(http.StatusTooManyRequests, APIError{
		Message: message,
		Code:    "RATE_LIMITED",
	})
}

// RespondInternalError sends a 500 Internal Server Error response.
// It logs the error with full details but returns a sanitized message to the client.
func RespondInternalError(c *gin.Context, operation string, err error, log *zap.SugaredLogger) {
	if log != nil {
		log.Errorw(fmt.Sprintf("Failed to %s", operation), "error", err)
	}
	c.JSON(http.StatusInternalServerError, APIError{
		Message: fmt.Sprintf("failed to %s", operation),
		Code:    "INTERNAL_ERROR",
	})
}

// RespondBadGateway sends a 502 Bad Gateway response.
// Used when a call to the upstream platform fails.
func RespondBadGateway(c *gin.Context, message string) {
	if message == "" {
		message = "bad gateway"
	}
	c.JSON(http.StatusBadGateway, APIError{
		Message: message,
		Code:    "BAD_GATEWAY",
	})
}

// RespondServiceUnavailable sends a 503 Service Unavailable response.
// Used when the service is not configured to perform the operation.
func RespondServiceUnavailable(c *gin.Context, message string) {
	c.JSON(http.StatusServiceUnavailable, APIError{
		Message: message,
		Code:    "SERVICE_UNAVAILABLE",
	})
}

// RespondOK sends a 200 OK response with the given data.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// RespondAccepted sends a 202 Accepted response. The device-flow poll
// endpoint uses this to signal that authorization is still pending.
func RespondAccepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, data)
}
