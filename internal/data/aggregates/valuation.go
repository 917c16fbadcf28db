package aggregates

import (
	"context"
	"strings"
	"unicode/utf8"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/mechdata-backend/internal/data/repos"
	types "github.com/yungbote/mechdata-backend/internal/domain"
	domainagg "github.com/yungbote/mechdata-backend/internal/domain/aggregates"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
)

// maxReasonLen bounds last_error.
const maxReasonLen = 1000

type ValuationAggregateDeps struct {
	Base BaseDeps

	Units repos.FinalizedUnitRepo
}

type valuationAggregate struct {
	deps ValuationAggregateDeps
}

func NewValuationAggregate(deps ValuationAggregateDeps) domainagg.ValuationAggregate {
	deps.Base = deps.Base.withDefaults()
	return &valuationAggregate{deps: deps}
}

func (a *valuationAggregate) Contract() domainagg.Contract {
	return domainagg.ValuationAggregateContract
}

func validateClaim(op string, c domainagg.JobClaim) error {
	if c.JobID == uuid.Nil {
		return pipelineerr.New(pipelineerr.CodeValidation, op, "missing job_id", nil)
	}
	if strings.TrimSpace(c.WorkerID) == "" || c.Attempt <= 0 {
		return pipelineerr.New(pipelineerr.CodeValidation, op, "missing claim owner or attempt", nil)
	}
	return nil
}

func (a *valuationAggregate) Complete(ctx context.Context, in domainagg.CompleteValuationInput) error {
	const op = "Jobs.Valuation.Complete"
	if err := validateClaim(op, in.Claim); err != nil {
		return err
	}
	if in.UnitID == uuid.Nil {
		return pipelineerr.New(pipelineerr.CodeValidation, op, "missing unit_id", nil)
	}
	if a.deps.Units == nil {
		return pipelineerr.New(pipelineerr.CodeInternal, op, "valuation aggregate repos not configured", nil)
	}
	at := in.CompletedAt.UTC()
	if in.CompletedAt.IsZero() {
		at = time.Now().UTC()
	}

	return executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		err := a.deps.Base.CASGuard.Settle(dbc, in.Claim, map[string]any{
			"status":       string(types.JobDone),
			"battle_value": in.BattleValue,
			"point_value":  in.PointValue,
			"last_error":   "",
			"finished_at":  at,
			"updated_at":   at,
		})
		if err != nil {
			return err
		}
		return a.applyRating(dbc, op, in.UnitID, in.BattleValue, in.PointValue, at)
	})
}

func (a *valuationAggregate) RecordFailure(ctx context.Context, in domainagg.RecordFailureInput) (domainagg.RecordFailureResult, error) {
	const op = "Jobs.Valuation.RecordFailure"
	var out domainagg.RecordFailureResult
	if err := validateClaim(op, in.Claim); err != nil {
		return out, err
	}
	if in.MaxAttempts <= 0 {
		return out, pipelineerr.New(pipelineerr.CodeValidation, op, "max attempts must be positive", nil)
	}
	at := in.FailedAt.UTC()
	if in.FailedAt.IsZero() {
		at = time.Now().UTC()
	}
	reason := truncateReason(strings.TrimSpace(in.Reason))

	updates := map[string]any{
		"last_error": reason,
		"updated_at": at,
	}
	res := domainagg.RecordFailureResult{}
	if in.Claim.Attempt < in.MaxAttempts {
		next := at.Add(in.RetryDelay)
		updates["status"] = string(types.JobQueued)
		updates["next_attempt_at"] = next
		updates["claimed_by"] = ""
		updates["claimed_at"] = nil
		res.Status = string(types.JobQueued)
		res.NextAttemptAt = &next
	} else {
		updates["status"] = string(types.JobFailed)
		updates["finished_at"] = at
		res.Status = string(types.JobFailed)
	}

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		return a.deps.Base.CASGuard.Settle(dbc, in.Claim, updates)
	})
	if err != nil {
		return domainagg.RecordFailureResult{}, err
	}
	return res, nil
}

func (a *valuationAggregate) ApplyRating(ctx context.Context, in domainagg.ApplyRatingInput) error {
	const op = "Jobs.Valuation.ApplyRating"
	if in.UnitID == uuid.Nil {
		return pipelineerr.New(pipelineerr.CodeValidation, op, "missing unit_id", nil)
	}
	if a.deps.Units == nil {
		return pipelineerr.New(pipelineerr.CodeInternal, op, "valuation aggregate repos not configured", nil)
	}
	at := in.ValuedAt.UTC()
	if in.ValuedAt.IsZero() {
		at = time.Now().UTC()
	}
	return executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		return a.applyRating(dbc, op, in.UnitID, in.BattleValue, in.PointValue, at)
	})
}

func (a *valuationAggregate) applyRating(dbc dbctx.Context, op string, unitID uuid.UUID, bv, pv int, at time.Time) error {
	ok, err := a.deps.Units.SetRating(dbc, unitID, bv, pv, at)
	if err != nil {
		return err
	}
	if !ok {
		return pipelineerr.New(pipelineerr.CodeNotFound, op, "finalized unit not found", nil)
	}
	return nil
}

// truncateReason cuts s to at most maxReasonLen bytes without splitting a rune.
func truncateReason(s string) string {
	if len(s) <= maxReasonLen {
		return s
	}
	n := maxReasonLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
