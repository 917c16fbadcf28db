package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/mechdata-backend/internal/config"
	"github.com/yungbote/mechdata-backend/internal/data/aggregates"
	"github.com/yungbote/mechdata-backend/internal/data/repos"
	types "github.com/yungbote/mechdata-backend/internal/domain"
	domainagg "github.com/yungbote/mechdata-backend/internal/domain/aggregates"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/observability"
	"github.com/yungbote/mechdata-backend/internal/parser"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
	"github.com/yungbote/mechdata-backend/internal/platform/valuation"
)

// ProcessOptions are the per-attempt settings of a worker.
type ProcessOptions struct {
	WorkerID      string
	MaxAttempts   int
	RetryDelay    time.Duration
	LookupTimeout time.Duration
}

// JobResult describes how one claimed attempt ended.
type JobResult struct {
	JobID         uuid.UUID        `json:"job_id"`
	UnitID        uuid.UUID        `json:"unit_id"`
	Attempt       int              `json:"attempt"`
	Status        types.JobStatus  `json:"status"`
	BattleValue   *int             `json:"battle_value,omitempty"`
	PointValue    *int             `json:"point_value,omitempty"`
	NextAttemptAt *time.Time       `json:"next_attempt_at,omitempty"`
	Code          pipelineerr.Code `json:"code,omitempty"`
	Reason        string           `json:"reason,omitempty"`
}

// ValuationService looks up ratings and settles jobs through the valuation
// aggregate. Worker and inline finalization share ApplyRating semantics.
type ValuationService interface {
	// Process runs one claimed job attempt to completion. The returned error
	// is only set when the outcome could not be recorded.
	Process(ctx context.Context, job *types.ValuationJob, opts ProcessOptions) (JobResult, error)
	// RunInline rates a unit immediately, without a job.
	RunInline(ctx context.Context, unitID uuid.UUID, timeout time.Duration) (valuation.Result, error)
	Enabled() bool
}

type valuationService struct {
	log     *logger.Logger
	lookup  valuation.Lookup
	agg     domainagg.ValuationAggregate
	units   repos.FinalizedUnitRepo
	cfg     config.ValuationConfig
	metrics *observability.Metrics
}

func NewValuationService(baseLog *logger.Logger, lookup valuation.Lookup, agg domainagg.ValuationAggregate, units repos.FinalizedUnitRepo, cfg config.ValuationConfig, metrics *observability.Metrics) ValuationService {
	return &valuationService{
		log:     baseLog.With("service", "ValuationService"),
		lookup:  lookup,
		agg:     agg,
		units:   units,
		cfg:     cfg,
		metrics: metrics,
	}
}

func (s *valuationService) Enabled() bool { return s.lookup != nil }

func (s *valuationService) lookupWithTimeout(ctx context.Context, q valuation.Query, timeout time.Duration) (valuation.Result, error) {
	if s.lookup == nil {
		return valuation.Result{}, pipelineerr.New(pipelineerr.CodeConfig, "valuation.lookup", "valuation backend is none", nil)
	}
	lctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := s.lookup.Lookup(lctx, q)
	if err != nil && errors.Is(lctx.Err(), context.DeadlineExceeded) && !pipelineerr.IsCode(err, pipelineerr.CodeValuationTransient) {
		err = pipelineerr.New(pipelineerr.CodeValuationTransient, "valuation.lookup", "lookup timed out", err)
	}
	result := "ok"
	if err != nil {
		result = string(pipelineerr.CodeOf(err))
		if result == "" {
			result = "error"
		}
	}
	s.metrics.ObserveLookup(s.lookup.Backend(), result, time.Since(start))
	return res, err
}

func (s *valuationService) Process(ctx context.Context, job *types.ValuationJob, opts ProcessOptions) (res JobResult, err error) {
	ctx, span := otel.Tracer("mechdata/valuation").Start(ctx, "ProcessJob")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.Int("job.attempt", job.Attempts),
	)

	res = JobResult{JobID: job.ID, UnitID: job.FinalizedUnitID, Attempt: job.Attempts}
	claim := domainagg.JobClaim{JobID: job.ID, WorkerID: opts.WorkerID, Attempt: job.Attempts}

	q := valuation.Query{Name: job.UnitName, Variant: lookupVariant(job.Variant), TypeFilter: job.TypeFilter}
	rating, lerr := s.safeLookup(ctx, q, opts.LookupTimeout)
	if lerr == nil {
		err = s.agg.Complete(ctx, domainagg.CompleteValuationInput{
			Claim:       claim,
			UnitID:      job.FinalizedUnitID,
			BattleValue: rating.BattleValue,
			PointValue:  rating.PointValue,
			CompletedAt: time.Now().UTC(),
		})
		if err == nil {
			res.Status = types.JobDone
			res.BattleValue = &rating.BattleValue
			res.PointValue = &rating.PointValue
			s.metrics.IncJobTransition(string(types.JobDone))
			s.log.Info("valuation done", "job_id", job.ID, "unit", q.String(), "bv", rating.BattleValue, "pv", rating.PointValue)
			return res, nil
		}
		if pipelineerr.IsCode(err, pipelineerr.CodeStoreConflict) {
			// Our claim was recovered; another attempt owns the job now.
			res.Code = pipelineerr.CodeStoreConflict
			res.Reason = pipelineerr.Reason(err)
			return res, err
		}
		// The unit vanished between claim and completion.
		lerr = err
	}

	reason := pipelineerr.Reason(lerr)
	delay := opts.RetryDelay
	if ra := valuation.RetryAfter(lerr); ra > delay {
		delay = ra
	}
	fr, err := s.agg.RecordFailure(ctx, domainagg.RecordFailureInput{
		Claim:       claim,
		MaxAttempts: opts.MaxAttempts,
		RetryDelay:  delay,
		Reason:      reason,
		FailedAt:    time.Now().UTC(),
	})
	res.Code = pipelineerr.CodeOf(lerr)
	res.Reason = reason
	if err != nil {
		return res, err
	}
	res.Status = types.JobStatus(fr.Status)
	res.NextAttemptAt = fr.NextAttemptAt
	s.metrics.IncJobTransition(fr.Status)
	s.log.Warn("valuation attempt failed",
		"job_id", job.ID,
		"unit", q.String(),
		"attempt", job.Attempts,
		"max_attempts", opts.MaxAttempts,
		"status", fr.Status,
		"code", res.Code,
		"reason", reason,
	)
	return res, nil
}

// safeLookup turns a panicking lookup into an internal error.
func (s *valuationService) safeLookup(ctx context.Context, q valuation.Query, timeout time.Duration) (res valuation.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("valuation lookup panicked", "unit", q.String(), "panic", r)
			err = pipelineerr.New(pipelineerr.CodeInternal, "valuation.lookup", fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	return s.lookupWithTimeout(ctx, q, timeout)
}

func (s *valuationService) RunInline(ctx context.Context, unitID uuid.UUID, timeout time.Duration) (valuation.Result, error) {
	const op = "valuation.run_inline"
	unit, err := s.units.GetByID(dbctx.Context{Ctx: ctx}, unitID)
	if err != nil {
		return valuation.Result{}, aggregates.MapError(op, err)
	}
	if unit == nil {
		return valuation.Result{}, pipelineerr.New(pipelineerr.CodeNotFound, op, "finalized unit not found", nil)
	}
	q := valuation.Query{Name: unit.Name, Variant: lookupVariant(unit.Variant), TypeFilter: s.cfg.TypeFilter(unit.UnitClass)}
	res, err := s.safeLookup(ctx, q, timeout)
	if err != nil {
		return res, err
	}
	if err := s.agg.ApplyRating(ctx, domainagg.ApplyRatingInput{
		UnitID:      unitID,
		BattleValue: res.BattleValue,
		PointValue:  res.PointValue,
		ValuedAt:    time.Now().UTC(),
	}); err != nil {
		return res, err
	}
	s.log.Info("inline valuation applied", "unit", q.String(), "bv", res.BattleValue, "pv", res.PointValue)
	return res, nil
}

// lookupVariant drops the unknown-variant sentinel so the source is queried
// by name alone.
func lookupVariant(v string) string {
	if v == parser.Unknown {
		return ""
	}
	return v
}
