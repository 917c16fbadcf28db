package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/observability"
	"github.com/yungbote/mechdata-backend/internal/pkg/ctxutil"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

// probes are polled by orchestrators and logged at debug only.
var probes = map[string]bool{"/healthz": true, "/metrics": true}

// Observe logs every request and records it in metrics. Either may be nil.
func Observe(log *logger.Logger, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		dur := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(status), dur)
		if log == nil {
			return
		}

		kv := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", dur.Milliseconds(),
		}
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			kv = append(kv, "request_id", td.RequestID, "trace_id", td.TraceID)
		}
		if last := c.Errors.Last(); last != nil {
			kv = append(kv, "code", string(pipelineerr.CodeOf(last.Err)), "error", last.Err)
		}
		switch {
		case status >= 500:
			log.Error("api request", kv...)
		case status >= 400:
			log.Warn("api request", kv...)
		case probes[route]:
			log.Debug("api probe", kv...)
		default:
			log.Info("api request", kv...)
		}
	}
}
