package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/feedsync/backend/internal/domain/tenant"
	"github.com/feedsync/backend/internal/infrastructure/scheduler"
	"github.com/feedsync/backend/internal/interfaces/http/dto"
)

const defaultJobHistoryLimit = 50

// JobHistory exposes finished and active sync jobs
type JobHistory interface {
	GetJobHistory(limit int) []scheduler.SyncJob
	GetJobHistoryByTenant(tenantID uuid.UUID, limit int) []scheduler.SyncJob
	ActiveJobs(tenantID uuid.UUID) []scheduler.SyncJob
}

// StatsProvider reports scheduler statistics
type StatsProvider interface {
	Stats() scheduler.SchedulerStats
}

// SyncHandler exposes the sync scheduler to operators
type SyncHandler struct {
	BaseHandler
	tenants tenant.Repository
	history JobHistory
	stats   StatsProvider
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(tenants tenant.Repository, history JobHistory, stats StatsProvider) *SyncHandler {
	return &SyncHandler{tenants: tenants, history: history, stats: stats}
}

// JobsQuery filters GET /sync/jobs
type JobsQuery struct {
	dto.LimitRequest
	Tenant string `form:"tenant" binding:"omitempty,max=63"`
}

// Jobs lists recent sync jobs, newest first, optionally for one tenant
func (h *SyncHandler) Jobs(c *gin.Context) {
	var q JobsQuery
	if !h.bindQuery(c, &q) {
		return
	}
	limit := q.LimitOrDefault(defaultJobHistoryLimit)

	var jobs []scheduler.SyncJob
	if q.Tenant != "" {
		t, err := h.tenants.FindBySlug(c.Request.Context(), q.Tenant)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		jobs = append(h.history.ActiveJobs(t.ID), h.history.GetJobHistoryByTenant(t.ID, limit)...)
	} else {
		jobs = h.history.GetJobHistory(limit)
	}
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}

	out := make([]SyncJobResponse, len(jobs))
	for i := range jobs {
		out[i] = toSyncJobResponse(&jobs[i])
	}
	h.SuccessList(c, out, len(out), limit)
}

// Stats returns scheduler statistics
func (h *SyncHandler) Stats(c *gin.Context) {
	h.Success(c, h.stats.Stats())
}
