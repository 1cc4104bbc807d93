package apiutil

import (
	"github.com/Aidin1998/txconsole/api/responses"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const TraceHeader = "X-Trace-ID"

// TraceMiddleware propagates the caller's trace id or assigns a new one
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" || len(traceID) > 128 {
			traceID = uuid.NewString()
		}
		c.Set(responses.TraceIDKey, traceID)
		c.Header(TraceHeader, traceID)
		c.Next()
	}
}
