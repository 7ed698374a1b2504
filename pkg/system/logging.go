package system

import (
	stdlog "log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReqLoggerKey is the context key used to store the request-scoped logger in
// gin context.
const ReqLoggerKey = "reqLogger"

// RequestIDHeader carries the request ID back to the caller so client-side
// reports can be correlated with service logs.
const RequestIDHeader = "X-Request-ID"

// NewLogger builds the service logger. Debug mode uses zap's development
// config (console encoding, debug level), otherwise production JSON.
func NewLogger(debug bool) *zap.SugaredLogger {
	var zlog *zap.Logger
	var err error
	if debug {
		zlog, err = zap.NewDevelopment()
	} else {
		zlog, err = zap.NewProduction()
	}
	if err != nil {
		stdlog.Fatalf("failed to set up logger: %v", err)
	}
	return zlog.Sugar()
}

// RequestLogger returns a middleware that assigns each request an ID, stores
// a logger annotated with it under ReqLoggerKey and echoes the ID in the
// response headers.
func RequestLogger(base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ReqLoggerKey, base.With("requestID", id))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetReqLogger returns the request-scoped sugared logger from gin.Context if
// present, otherwise the provided fallback.
func GetReqLogger(c *gin.Context, fallback *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return fallback
	}
	if v, ok := c.Get(ReqLoggerKey); ok {
		if l, ok2 := v.(*zap.SugaredLogger); ok2 {
			return l
		}
	}
	return fallback
}
