package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

type ValuationJobRepo interface {
	Create(dbc dbctx.Context, jobs []*types.ValuationJob) ([]*types.ValuationJob, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ValuationJob, error)
	// HasOpenForUnit reports whether the unit already has a job that is
	// queued, in progress or done.
	HasOpenForUnit(dbc dbctx.Context, unitID uuid.UUID) (bool, error)
	LatestForUnit(dbc dbctx.Context, unitID uuid.UUID) (*types.ValuationJob, error)
	// ClaimNextBatch moves up to n due queued jobs to in_progress for
	// workerID and returns the ones this call won. Each returned job carries
	// its incremented attempt count.
	ClaimNextBatch(dbc dbctx.Context, workerID string, n int) ([]*types.ValuationJob, error)
	// RecoverStale returns in_progress jobs claimed before now-staleAfter to
	// the queue, or fails them when their attempts are used up.
	RecoverStale(dbc dbctx.Context, staleAfter time.Duration, maxAttempts int) (requeued int64, failed int64, err error)
	CountByStatus(dbc dbctx.Context) (map[types.JobStatus]int64, error)
	List(dbc dbctx.Context, status types.JobStatus, limit int) ([]*types.ValuationJob, error)
}

type valuationJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewValuationJobRepo(db *gorm.DB, baseLog *logger.Logger) ValuationJobRepo {
	return &valuationJobRepo{db: db, log: baseLog.With("repo", "ValuationJobRepo")}
}

func (r *valuationJobRepo) Create(dbc dbctx.Context, jobs []*types.ValuationJob) ([]*types.ValuationJob, error) {
	if len(jobs) == 0 {
		return []*types.ValuationJob{}, nil
	}
	if err := dbc.DB(r.db).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *valuationJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ValuationJob, error) {
	var job types.ValuationJob
	err := dbc.DB(r.db).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *valuationJobRepo) HasOpenForUnit(dbc dbctx.Context, unitID uuid.UUID) (bool, error) {
	var n int64
	err := dbc.DB(r.db).Model(&types.ValuationJob{}).
		Where("finalized_unit_id = ? AND status IN ?", unitID,
			[]types.JobStatus{types.JobQueued, types.JobInProgress, types.JobDone}).
		Count(&n).Error
	return n > 0, err
}

func (r *valuationJobRepo) LatestForUnit(dbc dbctx.Context, unitID uuid.UUID) (*types.ValuationJob, error) {
	var out []*types.ValuationJob
	if err := dbc.DB(r.db).
		Where("finalized_unit_id = ?", unitID).
		Order("created_at DESC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *valuationJobRepo) ClaimNextBatch(dbc dbctx.Context, workerID string, n int) ([]*types.ValuationJob, error) {
	if n <= 0 {
		return []*types.ValuationJob{}, nil
	}
	var claimed []*types.ValuationJob
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		now := time.Now().UTC()
		q := txx.Where("status = ? AND next_attempt_at <= ?", types.JobQueued, now).
			Order("next_attempt_at ASC, created_at ASC").
			Limit(n)
		if txx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var candidates []*types.ValuationJob
		if err := q.Find(&candidates).Error; err != nil {
			return err
		}
		for _, job := range candidates {
			// The status guard makes the claim a compare-and-set: a
			// concurrent claimer that read the same row updates nothing.
			res := txx.Model(&types.ValuationJob{}).
				Where("id = ? AND status = ?", job.ID, types.JobQueued).
				Updates(map[string]interface{}{
					"status":     types.JobInProgress,
					"attempts":   gorm.Expr("attempts + 1"),
					"claimed_by": workerID,
					"claimed_at": now,
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				continue
			}
			job.Status = types.JobInProgress
			job.Attempts++
			job.ClaimedBy = workerID
			claimedAt := now
			job.ClaimedAt = &claimedAt
			claimed = append(claimed, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *valuationJobRepo) RecoverStale(dbc dbctx.Context, staleAfter time.Duration, maxAttempts int) (int64, int64, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-staleAfter)
	var requeued, failed int64
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		res := txx.Model(&types.ValuationJob{}).
			Where("status = ? AND claimed_at < ? AND attempts >= ?", types.JobInProgress, cutoff, maxAttempts).
			Updates(map[string]interface{}{
				"status":      types.JobFailed,
				"last_error":  "abandoned in progress after final attempt",
				"finished_at": now,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		failed = res.RowsAffected

		res = txx.Model(&types.ValuationJob{}).
			Where("status = ? AND claimed_at < ?", types.JobInProgress, cutoff).
			Updates(map[string]interface{}{
				"status":          types.JobQueued,
				"claimed_by":      "",
				"claimed_at":      nil,
				"next_attempt_at": now,
				"updated_at":      now,
			})
		if res.Error != nil {
			return res.Error
		}
		requeued = res.RowsAffected
		return nil
	})
	return requeued, failed, err
}

func (r *valuationJobRepo) CountByStatus(dbc dbctx.Context) (map[types.JobStatus]int64, error) {
	var rows []struct {
		Status types.JobStatus
		N      int64
	}
	if err := dbc.DB(r.db).Model(&types.ValuationJob{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[types.JobStatus]int64{
		types.JobQueued:     0,
		types.JobInProgress: 0,
		types.JobDone:       0,
		types.JobFailed:     0,
	}
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

func (r *valuationJobRepo) List(dbc dbctx.Context, status types.JobStatus, limit int) ([]*types.ValuationJob, error) {
	if limit <= 0 {
		limit = 100
	}
	q := dbc.DB(r.db)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []*types.ValuationJob
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
