package aggregates

import (
	"gorm.io/gorm"

	types "github.com/yungbote/mechdata-backend/internal/domain"
	domainagg "github.com/yungbote/mechdata-backend/internal/domain/aggregates"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
)

// CASGuard fences writes to claimed valuation jobs. A write lands only while
// the job is still in progress under the same worker and attempt, so a job
// recovered as stale and claimed again rejects the old owner.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

// Settle applies updates to the claimed job. A lost claim is a store
// conflict.
func (g CASGuard) Settle(dbc dbctx.Context, claim domainagg.JobClaim, updates map[string]any) error {
	db := dbc.Tx
	if db == nil {
		db = g.db
	}
	if db == nil {
		return Invalidf("no database for job settle")
	}
	res := db.WithContext(dbc.Ctx).
		Model(&types.ValuationJob{}).
		Where("id = ? AND status = ? AND claimed_by = ? AND attempts = ?",
			claim.JobID, types.JobInProgress, claim.WorkerID, claim.Attempt).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return Conflictf("claim on job %s lost (worker %s, attempt %d)", claim.JobID, claim.WorkerID, claim.Attempt)
	}
	return nil
}
