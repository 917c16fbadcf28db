package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/mechdata-backend/internal/data/aggregates"
	"github.com/yungbote/mechdata-backend/internal/data/repos"
	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/normalization"
	"github.com/yungbote/mechdata-backend/internal/observability"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

type ResolveOptions struct {
	// RecordIDs limits the run to these staging records. Nil means every
	// record with unresolved slots.
	RecordIDs []uuid.UUID
	// Strict leaves equally specific token-subset ties unresolved.
	Strict bool
}

// RecordResolution is the outcome for one staging record. Code is set when
// the record's write failed; its slots are then left as they were.
type RecordResolution struct {
	RecordID   uuid.UUID        `json:"record_id"`
	Resolved   int              `json:"resolved"`
	Structural int              `json:"structural"`
	Unresolved int              `json:"unresolved"`
	Ambiguous  int              `json:"ambiguous"`
	Code       pipelineerr.Code `json:"code,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

func (rr RecordResolution) Failed() bool { return rr.Code != "" }

type AmbiguousSlot struct {
	RecordID   uuid.UUID `json:"record_id"`
	SlotID     uuid.UUID `json:"slot_id"`
	RawText    string    `json:"raw_text"`
	Candidates []string  `json:"candidates"`
	Code       string    `json:"code"`
}

type ResolveReport struct {
	Records    []RecordResolution `json:"records"`
	Resolved   int                `json:"resolved"`
	Structural int                `json:"structural"`
	Unresolved int                `json:"unresolved"`
	Failed     int                `json:"failed"`
	Ambiguous  []AmbiguousSlot    `json:"ambiguous,omitempty"`
}

// ResolverService maps unresolved staging slots onto catalog weapons. It
// never writes catalog tables.
type ResolverService interface {
	ResolvePending(ctx context.Context, opts ResolveOptions) (ResolveReport, error)
}

type resolverService struct {
	db      *gorm.DB
	log     *logger.Logger
	catalog CatalogReader
	slots   repos.StagingSlotRepo
	tokens  repos.UnresolvedTokenRepo
	metrics *observability.Metrics
}

func NewResolverService(db *gorm.DB, baseLog *logger.Logger, catalog CatalogReader, slots repos.StagingSlotRepo, tokens repos.UnresolvedTokenRepo, metrics *observability.Metrics) ResolverService {
	return &resolverService{
		db:      db,
		log:     baseLog.With("service", "Resolver"),
		catalog: catalog,
		slots:   slots,
		tokens:  tokens,
		metrics: metrics,
	}
}

func (s *resolverService) ResolvePending(ctx context.Context, opts ResolveOptions) (ResolveReport, error) {
	const op = "resolver.resolve_pending"
	ctx, span := otel.Tracer("mechdata/resolver").Start(ctx, "ResolvePending")
	defer span.End()

	var rep ResolveReport
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return rep, err
	}
	pending, err := s.slots.ListUnresolved(dbctx.Context{Ctx: ctx}, opts.RecordIDs)
	if err != nil {
		return rep, aggregates.MapError(op, err)
	}
	span.SetAttributes(attribute.Int("slots.pending", len(pending)), attribute.Bool("strict", opts.Strict))

	// ListUnresolved orders by record, so groups are contiguous.
	for start := 0; start < len(pending); {
		end := start
		for end < len(pending) && pending[end].StagingRecordID == pending[start].StagingRecordID {
			end++
		}
		rr, amb, err := s.resolveRecord(ctx, snap, pending[start:end], opts.Strict)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return rep, pipelineerr.Wrap(pipelineerr.CodeInternal, op, ctxErr)
			}
			// A failed record keeps its slots; later records still run.
			mapped := aggregates.MapError(op, err)
			rr.Code = pipelineerr.CodeOf(mapped)
			rr.Reason = mapped.Error()
			rep.Failed++
			s.log.Warn("record resolution failed", "record_id", rr.RecordID, "code", rr.Code, "error", err)
		}
		rep.Records = append(rep.Records, rr)
		rep.Resolved += rr.Resolved
		rep.Structural += rr.Structural
		rep.Unresolved += rr.Unresolved
		rep.Ambiguous = append(rep.Ambiguous, amb...)
		start = end
	}
	s.log.Info("resolution finished",
		"records", len(rep.Records),
		"resolved", rep.Resolved,
		"structural", rep.Structural,
		"unresolved", rep.Unresolved,
		"failed", rep.Failed,
		"ambiguous", len(rep.Ambiguous),
	)
	return rep, nil
}

type tokenTally struct {
	sample string
	n      int64
}

func (s *resolverService) resolveRecord(ctx context.Context, snap *CatalogSnapshot, slots []*types.StagingSlot, strict bool) (RecordResolution, []AmbiguousSlot, error) {
	rr := RecordResolution{RecordID: slots[0].StagingRecordID}
	var ambiguous []AmbiguousSlot
	byMethod := map[string]int{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		tally := map[string]*tokenTally{}
		var order []string

		for _, slot := range slots {
			norm := slot.NormalizedText
			if norm == "" {
				norm = normalization.Normalize(slot.RawText)
			}
			if normalization.IsStructural(norm) {
				method := types.MethodKeyword
				if normalization.IsEmpty(norm) {
					method = types.MethodEmpty
				}
				ok, err := s.slots.MarkStructural(dbc, slot.ID, method)
				if err != nil {
					return err
				}
				if ok {
					rr.Structural++
					byMethod[method]++
				}
				continue
			}

			m, found := snap.Match(norm)
			if found && m.Ambiguous() {
				names := make([]string, 0, len(m.Tied))
				for _, w := range m.Tied {
					names = append(names, w.NormalizedName)
				}
				s.log.Warn("ambiguous token-subset match",
					"slot", slot.RawText,
					"candidates", strings.Join(names, ", "),
					"strict", strict,
				)
				if strict {
					rr.Ambiguous++
					ambiguous = append(ambiguous, AmbiguousSlot{
						RecordID:   slot.StagingRecordID,
						SlotID:     slot.ID,
						RawText:    slot.RawText,
						Candidates: names,
						Code:       string(pipelineerr.CodeResolutionAmbiguous),
					})
					found = false
				}
			}
			if found {
				ok, err := s.slots.MarkResolved(dbc, slot.ID, m.Weapon.ID, m.Method)
				if err != nil {
					return err
				}
				if ok {
					rr.Resolved++
					byMethod[m.Method]++
				}
				continue
			}

			rr.Unresolved++
			t, ok := tally[norm]
			if !ok {
				t = &tokenTally{sample: slot.RawText}
				tally[norm] = t
				order = append(order, norm)
			}
			t.n++
		}

		for _, tok := range order {
			if err := s.tokens.Increment(dbc, tok, tally[tok].sample, tally[tok].n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return RecordResolution{RecordID: rr.RecordID}, nil, err
	}
	for method, n := range byMethod {
		s.metrics.AddResolutions(method, n)
	}
	return rr, ambiguous, nil
}
