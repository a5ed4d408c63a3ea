package middleware

import (
	"context"
	"regexp"

	"ctfoj/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
)

// Inbound ids end up in audit events and logs, so only plain tokens are kept.
var inboundIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// TraceContextMiddleware puts trace and request ids plus the client ip into
// the request context, echoing both ids in the response headers. Missing or
// malformed inbound ids are replaced with fresh uuids.
func TraceContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := inboundID(c, traceIDHeader)
		requestID := inboundID(c, requestIDHeader)
		clientIP := c.ClientIP()

		c.Set(string(contextkey.TraceID), traceID)
		ctx := context.WithValue(c.Request.Context(), contextkey.TraceID, traceID)
		ctx = context.WithValue(ctx, contextkey.RequestID, requestID)
		ctx = context.WithValue(ctx, contextkey.ClientIP, clientIP)
		c.Request = c.Request.WithContext(ctx)

		c.Header(traceIDHeader, traceID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

func inboundID(c *gin.Context, header string) string {
	if id := c.GetHeader(header); inboundIDPattern.MatchString(id) {
		return id
	}
	return uuid.NewString()
}
