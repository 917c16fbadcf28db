package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/mechdata-backend/internal/data/aggregates"
	"github.com/yungbote/mechdata-backend/internal/data/repos"
	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/normalization"
	"github.com/yungbote/mechdata-backend/internal/observability"
	"github.com/yungbote/mechdata-backend/internal/parser"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

type IngestStatus string

const (
	IngestStaged    IngestStatus = "staged"
	IngestUnchanged IngestStatus = "unchanged"
	IngestFailed    IngestStatus = "failed"
)

const stageIngest = "ingest"

// IngestRequest names a file to read or carries its bytes. Class is
// inferred from the path and content when empty.
type IngestRequest struct {
	Path   string
	Source []byte
	Class  parser.UnitClass
}

type IngestOutcome struct {
	Path        string           `json:"path"`
	Class       parser.UnitClass `json:"class,omitempty"`
	Status      IngestStatus     `json:"status"`
	RecordID    uuid.UUID        `json:"record_id,omitempty"`
	ExternalKey string           `json:"external_key,omitempty"`
	Variant     string           `json:"variant,omitempty"`
	Slots       int              `json:"slots"`
	Code        pipelineerr.Code `json:"code,omitempty"`
	Reason      string           `json:"reason,omitempty"`
}

// IngestService parses unit files into staging records.
type IngestService interface {
	Ingest(ctx context.Context, req IngestRequest) (IngestOutcome, error)
}

type ingestService struct {
	db      *gorm.DB
	log     *logger.Logger
	records repos.StagingRecordRepo
	slots   repos.StagingSlotRepo
	ingLog  repos.IngestLogRepo
	metrics *observability.Metrics
}

func NewIngestService(db *gorm.DB, baseLog *logger.Logger, records repos.StagingRecordRepo, slots repos.StagingSlotRepo, ingLog repos.IngestLogRepo, metrics *observability.Metrics) IngestService {
	return &ingestService{
		db:      db,
		log:     baseLog.With("service", "IngestService"),
		records: records,
		slots:   slots,
		ingLog:  ingLog,
		metrics: metrics,
	}
}

func (s *ingestService) Ingest(ctx context.Context, req IngestRequest) (IngestOutcome, error) {
	ctx, span := otel.Tracer("mechdata/ingest").Start(ctx, "Ingest")
	defer span.End()
	span.SetAttributes(attribute.String("path", req.Path))

	out, err := s.ingest(ctx, req)
	if err != nil {
		out.Status = IngestFailed
		out.Code = pipelineerr.CodeOf(err)
		out.Reason = pipelineerr.Reason(err)
		s.log.Warn("ingest failed", "path", req.Path, "code", out.Code, "reason", out.Reason)
	}
	s.metrics.IncIngest(string(out.Class), string(out.Status))
	s.writeLog(ctx, out)
	return out, err
}

func (s *ingestService) ingest(ctx context.Context, req IngestRequest) (IngestOutcome, error) {
	const op = "ingest"
	out := IngestOutcome{Path: req.Path, Class: req.Class}

	src := req.Source
	if src == nil {
		if req.Path == "" {
			return out, pipelineerr.New(pipelineerr.CodeValidation, op, "path or source required", nil)
		}
		b, err := os.ReadFile(req.Path)
		if err != nil {
			return out, pipelineerr.New(pipelineerr.CodeValidation, op, fmt.Sprintf("read %s: %v", req.Path, err), err)
		}
		src = b
	}
	class := req.Class
	if class == "" {
		c, err := parser.DetectClass(req.Path, src)
		if err != nil {
			return out, err
		}
		class = c
	}
	out.Class = class

	unit, err := parser.Parse(class, src)
	if err != nil {
		return out, err
	}
	sum := sha256.Sum256(src)
	hash := hex.EncodeToString(sum[:])
	out.ExternalKey = unit.ExternalKey()
	out.Variant = unit.Variant()
	out.Slots = unit.SlotCount()

	attrs, err := json.Marshal(unit.Attributes)
	if err != nil {
		return out, pipelineerr.Wrap(pipelineerr.CodeInternal, op, err)
	}
	locs, err := json.Marshal(unit.Locations)
	if err != nil {
		return out, pipelineerr.Wrap(pipelineerr.CodeInternal, op, err)
	}

	write := func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			dbc := dbctx.Context{Ctx: ctx, Tx: tx}
			existing, err := s.records.GetByIdentity(dbc, out.ExternalKey, out.Variant)
			if err != nil {
				return err
			}
			if existing != nil && existing.SourceHash == hash {
				out.Status = IngestUnchanged
				out.RecordID = existing.ID
				return nil
			}
			var recordID uuid.UUID
			if existing == nil {
				rec := &types.StagingRecord{
					ExternalKey: out.ExternalKey,
					Variant:     out.Variant,
					Name:        unit.Name,
					MulID:       unit.MulID,
					UnitClass:   string(class),
					Format:      string(unit.Format),
					SourceFile:  req.Path,
					SourceHash:  hash,
					Attributes:  datatypes.JSON(attrs),
					Locations:   datatypes.JSON(locs),
				}
				if err := s.records.Create(dbc, rec); err != nil {
					return err
				}
				recordID = rec.ID
			} else {
				recordID = existing.ID
				if err := s.records.UpdateFields(dbc, recordID, map[string]interface{}{
					"name":         unit.Name,
					"mul_id":       unit.MulID,
					"unit_class":   string(class),
					"format":       string(unit.Format),
					"source_file":  req.Path,
					"source_hash":  hash,
					"attributes":   datatypes.JSON(attrs),
					"locations":    datatypes.JSON(locs),
					"finalized":    false,
					"finalized_at": nil,
				}); err != nil {
					return err
				}
			}
			if err := s.slots.Replace(dbc, recordID, BuildStagingSlots(unit)); err != nil {
				return err
			}
			out.Status = IngestStaged
			out.RecordID = recordID
			return nil
		})
	}

	err = aggregates.MapError(op, write())
	if pipelineerr.IsCode(err, pipelineerr.CodeStoreConflict) {
		// A concurrent ingest of the same identity won the insert.
		s.log.Debug("ingest conflict, retrying", "external_key", out.ExternalKey, "variant", out.Variant)
		err = aggregates.MapError(op, write())
	}
	if err != nil {
		return out, err
	}
	s.log.Debug("ingested", "path", req.Path, "external_key", out.ExternalKey, "variant", out.Variant, "status", out.Status, "slots", out.Slots)
	return out, nil
}

// BuildStagingSlots flattens the unit's locations in file order. Empty and
// structural entries start out structural; everything else is unresolved.
func BuildStagingSlots(u *parser.ParsedUnit) []*types.StagingSlot {
	out := make([]*types.StagingSlot, 0, u.SlotCount())
	idx := 0
	for _, loc := range u.Locations {
		for i, raw := range loc.Slots {
			norm := normalization.Normalize(raw)
			slot := &types.StagingSlot{
				SlotIndex:       idx,
				LocationName:    loc.Name,
				LocationSlot:    i,
				RawText:         raw,
				NormalizedText:  norm,
				ResolutionState: types.SlotUnresolved,
			}
			switch {
			case normalization.IsEmpty(norm):
				slot.ResolutionState = types.SlotStructural
				slot.ResolutionMethod = types.MethodEmpty
			case normalization.IsStructural(norm):
				slot.ResolutionState = types.SlotStructural
				slot.ResolutionMethod = types.MethodKeyword
			}
			out = append(out, slot)
			idx++
		}
	}
	return out
}

func (s *ingestService) writeLog(ctx context.Context, out IngestOutcome) {
	entry := &types.IngestLog{
		SourceFile: out.Path,
		UnitClass:  string(out.Class),
		Stage:      stageIngest,
		Outcome:    string(out.Status),
		Code:       string(out.Code),
		Message:    out.Reason,
	}
	if out.RecordID != uuid.Nil {
		id := out.RecordID
		entry.StagingRecordID = &id
	}
	if err := s.ingLog.Create(dbctx.Context{Ctx: ctx}, entry); err != nil {
		s.log.Warn("ingest log write failed", "path", out.Path, "error", err)
	}
}
