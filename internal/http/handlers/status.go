package handlers

import (
	"github.com/gin-gonic/gin"

	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/http/response"
	"github.com/yungbote/mechdata-backend/internal/services"
)

type StatusHandler struct {
	status services.StatusService
}

func NewStatusHandler(status services.StatusService) *StatusHandler {
	return &StatusHandler{status: status}
}

// GET /status
func (h *StatusHandler) GetStatus(c *gin.Context) {
	snap, err := h.status.Snapshot(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"status": snap})
}

// GET /unresolved?limit=
func (h *StatusHandler) ListUnresolved(c *gin.Context) {
	limit, err := queryInt(c, "limit", 25, 1, 1000)
	if err != nil {
		response.Error(c, err)
		return
	}
	tokens, err := h.status.TopUnresolved(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"tokens": tokens})
}

// GET /jobs?status=&limit=
func (h *StatusHandler) ListJobs(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50, 1, 1000)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := types.JobStatus(c.Query("status"))
	switch status {
	case "", types.JobQueued, types.JobInProgress, types.JobDone, types.JobFailed:
	default:
		response.Error(c, pipelineerr.New(pipelineerr.CodeValidation, "http.jobs", "unknown job status "+string(status), nil))
		return
	}
	jobs, err := h.status.ListJobs(c.Request.Context(), status, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"jobs": jobs})
}
