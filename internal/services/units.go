package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/mechdata-backend/internal/data/aggregates"
	"github.com/yungbote/mechdata-backend/internal/data/repos"
	"github.com/yungbote/mechdata-backend/internal/data/repos/units"
	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	domainunits "github.com/yungbote/mechdata-backend/internal/domain/units"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

type UnitListFilter = units.ListFilter

type AdjustedBV struct {
	UnitID     uuid.UUID `json:"unit_id"`
	BaseBV     int       `json:"base_bv"`
	Gunnery    int       `json:"gunnery"`
	Piloting   int       `json:"piloting"`
	AdjustedBV int       `json:"adjusted_bv"`
	Multiplier float64   `json:"multiplier"`
	PointValue *int      `json:"point_value,omitempty"`
}

// UnitService is the read side of finalized units.
type UnitService interface {
	List(ctx context.Context, f UnitListFilter) ([]*types.FinalizedUnit, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*types.FinalizedUnit, error)
	GetByMulID(ctx context.Context, mulID string) (*types.FinalizedUnit, error)
	AdjustedBattleValue(ctx context.Context, id uuid.UUID, gunnery, piloting int) (AdjustedBV, error)
}

type unitService struct {
	log   *logger.Logger
	units repos.FinalizedUnitRepo
}

func NewUnitService(baseLog *logger.Logger, unitRepo repos.FinalizedUnitRepo) UnitService {
	return &unitService{log: baseLog.With("service", "UnitService"), units: unitRepo}
}

func (s *unitService) List(ctx context.Context, f UnitListFilter) ([]*types.FinalizedUnit, int64, error) {
	out, total, err := s.units.List(dbctx.Context{Ctx: ctx}, f)
	if err != nil {
		return nil, 0, aggregates.MapError("units.list", err)
	}
	return out, total, nil
}

func (s *unitService) Get(ctx context.Context, id uuid.UUID) (*types.FinalizedUnit, error) {
	u, err := s.units.GetDetail(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, aggregates.MapError("units.get", err)
	}
	if u == nil {
		return nil, pipelineerr.New(pipelineerr.CodeNotFound, "units.get", "finalized unit not found", nil)
	}
	return u, nil
}

func (s *unitService) GetByMulID(ctx context.Context, mulID string) (*types.FinalizedUnit, error) {
	const op = "units.get_by_mul_id"
	mulID = strings.TrimSpace(mulID)
	if mulID == "" {
		return nil, pipelineerr.New(pipelineerr.CodeValidation, op, "mul id is required", nil)
	}
	u, err := s.units.GetByMulID(dbctx.Context{Ctx: ctx}, mulID)
	if err != nil {
		return nil, aggregates.MapError(op, err)
	}
	if u == nil {
		return nil, pipelineerr.New(pipelineerr.CodeNotFound, op, "no unit with mul id "+mulID, nil)
	}
	return s.Get(ctx, u.ID)
}

func (s *unitService) AdjustedBattleValue(ctx context.Context, id uuid.UUID, gunnery, piloting int) (AdjustedBV, error) {
	const op = "units.adjusted_bv"
	u, err := s.units.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return AdjustedBV{}, aggregates.MapError(op, err)
	}
	if u == nil {
		return AdjustedBV{}, pipelineerr.New(pipelineerr.CodeNotFound, op, "finalized unit not found", nil)
	}
	if u.BattleValue == nil {
		return AdjustedBV{}, pipelineerr.New(pipelineerr.CodeNotFound, op, "unit has no battle value yet", nil)
	}
	adj, err := domainunits.AdjustedBattleValue(*u.BattleValue, gunnery, piloting)
	if err != nil {
		return AdjustedBV{}, pipelineerr.New(pipelineerr.CodeValidation, op, err.Error(), err)
	}
	mult, _ := domainunits.SkillMultiplier(gunnery, piloting)
	return AdjustedBV{
		UnitID:     u.ID,
		BaseBV:     *u.BattleValue,
		Gunnery:    gunnery,
		Piloting:   piloting,
		AdjustedBV: adj,
		Multiplier: mult,
		PointValue: u.PointValue,
	}, nil
}
