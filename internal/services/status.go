package services

import (
	"context"

	"github.com/yungbote/mechdata-backend/internal/data/aggregates"
	"github.com/yungbote/mechdata-backend/internal/data/repos"
	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

type StatusSnapshot struct {
	StagingTotal     int64                           `json:"staging_total"`
	StagingFinalized int64                           `json:"staging_finalized"`
	PendingFinalize  int64                           `json:"pending_finalization"`
	BlockedRecords   int64                           `json:"blocked_on_resolution"`
	Slots            map[types.ResolutionState]int64 `json:"slots"`
	ResolutionRate   float64                         `json:"resolution_rate"`
	FinalizedUnits   int64                           `json:"finalized_units"`
	RatedUnits       int64                           `json:"rated_units"`
	Jobs             map[types.JobStatus]int64       `json:"jobs"`
	Weapons          int64                           `json:"weapons"`
	Aliases          int64                           `json:"aliases"`
	UnresolvedTokens int64                           `json:"unresolved_tokens"`
	IngestOutcomes   map[string]int64                `json:"ingest_outcomes"`
}

// StatusService reads pipeline counters. It never writes.
type StatusService interface {
	Snapshot(ctx context.Context) (StatusSnapshot, error)
	TopUnresolved(ctx context.Context, limit int) ([]*types.UnresolvedToken, error)
	ListJobs(ctx context.Context, status types.JobStatus, limit int) ([]*types.ValuationJob, error)
	RecentIngest(ctx context.Context, limit int) ([]*types.IngestLog, error)
}

type statusService struct {
	log   *logger.Logger
	repos repos.Set
}

func NewStatusService(baseLog *logger.Logger, set repos.Set) StatusService {
	return &statusService{log: baseLog.With("service", "StatusService"), repos: set}
}

func (s *statusService) Snapshot(ctx context.Context) (StatusSnapshot, error) {
	const op = "status.snapshot"
	dbc := dbctx.Context{Ctx: ctx}
	var snap StatusSnapshot
	var err error
	yes := true

	steps := []func() error{
		func() (e error) { snap.StagingTotal, e = s.repos.StagingRecords.Count(dbc, nil); return },
		func() (e error) { snap.StagingFinalized, e = s.repos.StagingRecords.Count(dbc, &yes); return },
		func() (e error) { snap.PendingFinalize, e = s.repos.StagingRecords.CountFinalizable(dbc); return },
		func() (e error) { snap.BlockedRecords, e = s.repos.StagingRecords.CountBlocked(dbc); return },
		func() (e error) { snap.Slots, e = s.repos.StagingSlots.CountByState(dbc); return },
		func() (e error) { snap.FinalizedUnits, e = s.repos.Units.Count(dbc, nil); return },
		func() (e error) { snap.RatedUnits, e = s.repos.Units.Count(dbc, &yes); return },
		func() (e error) { snap.Jobs, e = s.repos.Jobs.CountByStatus(dbc); return },
		func() (e error) { snap.Weapons, e = s.repos.Weapons.Count(dbc); return },
		func() (e error) { snap.Aliases, e = s.repos.Aliases.Count(dbc); return },
		func() (e error) { snap.UnresolvedTokens, e = s.repos.UnresolvedToken.Count(dbc); return },
		func() (e error) { snap.IngestOutcomes, e = s.repos.IngestLog.CountByOutcome(dbc, stageIngest); return },
	}
	for _, step := range steps {
		if err = step(); err != nil {
			return snap, aggregates.MapError(op, err)
		}
	}
	snap.ResolutionRate = ResolutionRate(snap.Slots)
	return snap, nil
}

// ResolutionRate is the share of slots that left the unresolved state.
// With no slots it is 1.
func ResolutionRate(slots map[types.ResolutionState]int64) float64 {
	var total int64
	for _, n := range slots {
		total += n
	}
	if total == 0 {
		return 1
	}
	return float64(total-slots[types.SlotUnresolved]) / float64(total)
}

func (s *statusService) TopUnresolved(ctx context.Context, limit int) ([]*types.UnresolvedToken, error) {
	out, err := s.repos.UnresolvedToken.Top(dbctx.Context{Ctx: ctx}, limit)
	if err != nil {
		return nil, aggregates.MapError("status.top_unresolved", err)
	}
	return out, nil
}

func (s *statusService) ListJobs(ctx context.Context, status types.JobStatus, limit int) ([]*types.ValuationJob, error) {
	out, err := s.repos.Jobs.List(dbctx.Context{Ctx: ctx}, status, limit)
	if err != nil {
		return nil, aggregates.MapError("status.list_jobs", err)
	}
	return out, nil
}

func (s *statusService) RecentIngest(ctx context.Context, limit int) ([]*types.IngestLog, error) {
	out, err := s.repos.IngestLog.ListRecent(dbctx.Context{Ctx: ctx}, limit)
	if err != nil {
		return nil, aggregates.MapError("status.recent_ingest", err)
	}
	return out, nil
}
