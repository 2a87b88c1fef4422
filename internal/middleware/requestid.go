package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/momofin/momofin-backend/internal/audit"
)

const (
	// RequestIDHeader is the HTTP header used to propagate the request identifier.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key holding the request id.
	RequestIDKey = "request_id"

	maxRequestIDLength = 128
)

// RequestIDMiddleware reuses an inbound X-Request-ID or generates a UUID, then
// stores it in the gin context, the request context (for activity log entries)
// and the response header.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Request = c.Request.WithContext(audit.WithRequestID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}
