package testutil

import (
	"sync"

	"github.com/yungbote/mechdata-backend/internal/data/aggregates"
)

// HooksRecorder keeps every write event for later assertions.
type HooksRecorder struct {
	mu     sync.Mutex
	Events []aggregates.WriteEvent
}

var _ aggregates.Hooks = (*HooksRecorder)(nil)

func (h *HooksRecorder) OnWrite(ev aggregates.WriteEvent) {
	h.mu.Lock()
	h.Events = append(h.Events, ev)
	h.mu.Unlock()
}

// Statuses returns the recorded write statuses in order.
func (h *HooksRecorder) Statuses() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.Events))
	for _, ev := range h.Events {
		out = append(out, ev.Status)
	}
	return out
}

// Conflicts returns the ops of writes that ended in a conflict.
func (h *HooksRecorder) Conflicts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, ev := range h.Events {
		if ev.Conflict {
			out = append(out, ev.Op)
		}
	}
	return out
}
