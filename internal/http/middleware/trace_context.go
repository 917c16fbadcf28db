package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/mechdata-backend/internal/pkg/ctxutil"
)

const (
	HeaderRequestID = "X-Request-Id"
	HeaderTraceID   = "X-Trace-Id"
)

// clientID accepts a caller supplied id only if it is short and printable.
func clientID(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > 128 {
		return ""
	}
	for _, r := range v {
		if r < 0x21 || r > 0x7e {
			return ""
		}
	}
	return v
}

// AttachTraceContext gives every request a request id and a trace id and
// echoes both in the response headers. An active otel span wins over the
// X-Trace-Id header.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		td := &ctxutil.TraceData{RequestID: clientID(c.GetHeader(HeaderRequestID))}
		if td.RequestID == "" {
			td.RequestID = uuid.NewString()
		}
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			td.TraceID = sc.TraceID().String()
		} else if id := clientID(c.GetHeader(HeaderTraceID)); id != "" {
			td.TraceID = id
		} else {
			td.TraceID = td.RequestID
		}

		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), td))
		c.Set("request_id", td.RequestID)
		h := c.Writer.Header()
		h.Set(HeaderRequestID, td.RequestID)
		h.Set(HeaderTraceID, td.TraceID)
		c.Next()
	}
}
