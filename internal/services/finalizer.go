package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/mechdata-backend/internal/config"
	"github.com/yungbote/mechdata-backend/internal/data/aggregates"
	"github.com/yungbote/mechdata-backend/internal/data/repos"
	domainagg "github.com/yungbote/mechdata-backend/internal/domain/aggregates"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/observability"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
	"github.com/yungbote/mechdata-backend/internal/platform/locks"
)

type FinalizeStatus string

const (
	FinalizeDone    FinalizeStatus = "finalized"
	FinalizePending FinalizeStatus = "pending"
	FinalizeFailed  FinalizeStatus = "failed"
)

type FinalizeOptions struct {
	// Mode is config.ModeEnqueue, config.ModeInline or config.ModeSkip.
	Mode string
}

type FinalizeOutcome struct {
	RecordID    uuid.UUID        `json:"record_id"`
	Status      FinalizeStatus   `json:"status"`
	UnitID      uuid.UUID        `json:"unit_id,omitempty"`
	ExternalKey string           `json:"external_key,omitempty"`
	Variant     string           `json:"variant,omitempty"`
	Created     bool             `json:"created"`
	Slots       int              `json:"slots"`
	Instances   int              `json:"weapon_instances"`
	JobID       *uuid.UUID       `json:"job_id,omitempty"`
	JobDeduped  bool             `json:"job_deduped,omitempty"`
	Rated       bool             `json:"rated,omitempty"`
	Code        pipelineerr.Code `json:"code,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	// ValuationReason is set when inline valuation failed after a
	// successful finalize.
	ValuationReason string `json:"valuation_reason,omitempty"`
}

// FinalizerService promotes fully resolved staging records to production.
type FinalizerService interface {
	Finalize(ctx context.Context, recordID uuid.UUID, opts FinalizeOptions) (FinalizeOutcome, error)
	// FinalizeReady finalizes every unfinalized record without unresolved
	// slots, up to limit (0 means no limit).
	FinalizeReady(ctx context.Context, opts FinalizeOptions, limit int) ([]FinalizeOutcome, error)
}

type finalizerService struct {
	log       *logger.Logger
	agg       domainagg.FinalizationAggregate
	records   repos.StagingRecordRepo
	locker    locks.Locker
	valuation ValuationService
	cfg       *config.Config
	metrics   *observability.Metrics
}

func NewFinalizerService(
	baseLog *logger.Logger,
	agg domainagg.FinalizationAggregate,
	records repos.StagingRecordRepo,
	locker locks.Locker,
	valuation ValuationService,
	cfg *config.Config,
	metrics *observability.Metrics,
) FinalizerService {
	if locker == nil {
		locker = locks.NewKeyedMutex()
	}
	return &finalizerService{
		log:       baseLog.With("service", "Finalizer"),
		agg:       agg,
		records:   records,
		locker:    locker,
		valuation: valuation,
		cfg:       cfg,
		metrics:   metrics,
	}
}

func (s *finalizerService) Finalize(ctx context.Context, recordID uuid.UUID, opts FinalizeOptions) (FinalizeOutcome, error) {
	ctx, span := otel.Tracer("mechdata/finalizer").Start(ctx, "Finalize")
	defer span.End()
	span.SetAttributes(attribute.String("record.id", recordID.String()), attribute.String("mode", opts.Mode))

	out, err := s.finalize(ctx, recordID, opts)
	switch {
	case err == nil:
		out.Status = FinalizeDone
	case pipelineerr.IsCode(err, pipelineerr.CodePendingResolution):
		out.Status = FinalizePending
	default:
		out.Status = FinalizeFailed
	}
	if err != nil {
		out.Code = pipelineerr.CodeOf(err)
		out.Reason = pipelineerr.Reason(err)
	}
	s.metrics.IncFinalize(string(out.Status))
	return out, err
}

func (s *finalizerService) finalize(ctx context.Context, recordID uuid.UUID, opts FinalizeOptions) (FinalizeOutcome, error) {
	const op = "finalizer.finalize"
	out := FinalizeOutcome{RecordID: recordID}

	mode := opts.Mode
	if mode == "" {
		mode = s.cfg.Pipeline.ValuationMode
	}
	switch mode {
	case config.ModeEnqueue, config.ModeInline, config.ModeSkip:
	default:
		return out, pipelineerr.New(pipelineerr.CodeValidation, op, fmt.Sprintf("unknown valuation mode %q", mode), nil)
	}

	rec, err := s.records.GetByID(dbctx.Context{Ctx: ctx}, recordID)
	if err != nil {
		return out, aggregates.MapError(op, err)
	}
	if rec == nil {
		return out, pipelineerr.New(pipelineerr.CodeNotFound, op, "staging record not found", nil)
	}
	out.ExternalKey = rec.ExternalKey
	out.Variant = rec.Variant

	unlock, err := s.locker.Lock(ctx, rec.ExternalKey+"|"+rec.Variant)
	if err != nil {
		return out, pipelineerr.New(pipelineerr.CodeStoreConflict, op, "acquire identity lock", err)
	}
	defer unlock()

	in := domainagg.PromoteInput{
		StagingRecordID: recordID,
		EnqueueJob:      mode == config.ModeEnqueue,
		TypeFilter:      s.cfg.Valuation.TypeFilter(rec.UnitClass),
		FinalizedAt:     time.Now().UTC(),
	}
	res, err := s.agg.Promote(ctx, in)
	if pipelineerr.IsCode(err, pipelineerr.CodeStoreConflict) {
		s.log.Warn("finalize conflict, retrying once", "external_key", rec.ExternalKey, "variant", rec.Variant, "error", err)
		res, err = s.agg.Promote(ctx, in)
	}
	if err != nil {
		return out, err
	}
	unlock()

	out.UnitID = res.UnitID
	out.Created = res.Created
	out.Slots = res.SlotCount
	out.Instances = res.InstanceCount
	out.JobID = res.JobID
	out.JobDeduped = res.JobDeduped
	s.log.Info("record finalized",
		"external_key", res.ExternalKey,
		"variant", res.Variant,
		"unit_id", res.UnitID,
		"created", res.Created,
		"slots", res.SlotCount,
		"instances", res.InstanceCount,
		"mode", mode,
	)

	if mode == config.ModeInline {
		if s.valuation == nil || !s.valuation.Enabled() {
			out.ValuationReason = "valuation backend is none"
		} else if _, verr := s.valuation.RunInline(ctx, res.UnitID, s.cfg.Worker.LookupTimeout); verr != nil {
			out.ValuationReason = pipelineerr.Reason(verr)
			s.log.Warn("inline valuation failed", "unit_id", res.UnitID, "code", pipelineerr.CodeOf(verr), "reason", out.ValuationReason)
		} else {
			out.Rated = true
		}
	}
	return out, nil
}

func (s *finalizerService) FinalizeReady(ctx context.Context, opts FinalizeOptions, limit int) ([]FinalizeOutcome, error) {
	ids, err := s.records.ListFinalizable(dbctx.Context{Ctx: ctx}, limit)
	if err != nil {
		return nil, aggregates.MapError("finalizer.finalize_ready", err)
	}
	out := make([]FinalizeOutcome, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		o, err := s.Finalize(ctx, id, opts)
		if err != nil && !isStageError(err) {
			return append(out, o), err
		}
		out = append(out, o)
	}
	return out, nil
}

// isStageError reports whether err is a per-record outcome rather than a
// reason to stop a batch.
func isStageError(err error) bool {
	switch pipelineerr.CodeOf(err) {
	case pipelineerr.CodePendingResolution, pipelineerr.CodeStoreConflict, pipelineerr.CodeNotFound,
		pipelineerr.CodeMalformedSource, pipelineerr.CodeValidation, pipelineerr.CodeResolutionAmbiguous:
		return true
	}
	return false
}
