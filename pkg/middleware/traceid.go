package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	CtxTraceID    = "trace_id"
	traceIDHeader = "X-Trace-ID"
)

// TraceIDMiddleware keeps a caller supplied uuid trace id or mints one, echoes
// it back and attaches a logger carrying it to the request context.
func TraceIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(traceIDHeader)
		if _, err := uuid.Parse(traceID); err != nil {
			traceID = uuid.NewString()
		}
		c.Set(CtxTraceID, traceID)
		c.Writer.Header().Set(traceIDHeader, traceID)

		logger := log.With().Str(CtxTraceID, traceID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Next()
	}
}
