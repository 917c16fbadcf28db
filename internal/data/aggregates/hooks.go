package aggregates

import (
	"time"

	"github.com/yungbote/mechdata-backend/internal/observability"
)

// WriteEvent describes one finished store write.
type WriteEvent struct {
	Op       string
	Status   string // "success" or the pipelineerr code
	Duration time.Duration
	Conflict bool // unique or serialization failure
}

// Hooks receives write events from the aggregates.
type Hooks interface {
	OnWrite(ev WriteEvent)
}

type noopHooks struct{}

func (noopHooks) OnWrite(WriteEvent) {}

type metricsHooks struct {
	metrics *observability.Metrics
}

// NewObservabilityHooks records write latency and conflicts in metrics.
func NewObservabilityHooks(metrics *observability.Metrics) Hooks {
	if metrics == nil {
		return noopHooks{}
	}
	return metricsHooks{metrics: metrics}
}

func (h metricsHooks) OnWrite(ev WriteEvent) {
	h.metrics.ObserveStoreWrite(ev.Op, ev.Status, ev.Duration)
	if ev.Conflict {
		h.metrics.IncStoreConflict(ev.Op)
	}
}
