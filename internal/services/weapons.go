package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/mechdata-backend/internal/data/aggregates"
	"github.com/yungbote/mechdata-backend/internal/data/repos"
	"github.com/yungbote/mechdata-backend/internal/data/repos/catalog"
	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

type WeaponListFilter = catalog.SearchFilter

type WeaponDetail struct {
	*types.Weapon
	Aliases []string `json:"aliases"`
}

// WeaponService is the read side of the weapon catalog.
type WeaponService interface {
	List(ctx context.Context, f WeaponListFilter) ([]*types.Weapon, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*WeaponDetail, error)
	// MountedOn pages the finalized units carrying the weapon.
	MountedOn(ctx context.Context, id uuid.UUID, limit, offset int) ([]*types.FinalizedUnit, int64, error)
}

type weaponService struct {
	log     *logger.Logger
	weapons repos.WeaponRepo
	aliases repos.WeaponAliasRepo
	units   repos.FinalizedUnitRepo
}

func NewWeaponService(baseLog *logger.Logger, weapons repos.WeaponRepo, aliases repos.WeaponAliasRepo, units repos.FinalizedUnitRepo) WeaponService {
	return &weaponService{
		log:     baseLog.With("service", "WeaponService"),
		weapons: weapons,
		aliases: aliases,
		units:   units,
	}
}

func (s *weaponService) List(ctx context.Context, f WeaponListFilter) ([]*types.Weapon, int64, error) {
	out, total, err := s.weapons.Search(dbctx.Context{Ctx: ctx}, f)
	if err != nil {
		return nil, 0, aggregates.MapError("weapons.list", err)
	}
	return out, total, nil
}

func (s *weaponService) get(ctx context.Context, op string, id uuid.UUID) (*types.Weapon, error) {
	w, err := s.weapons.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, aggregates.MapError(op, err)
	}
	if w == nil {
		return nil, pipelineerr.New(pipelineerr.CodeNotFound, op, "weapon not found", nil)
	}
	return w, nil
}

func (s *weaponService) Get(ctx context.Context, id uuid.UUID) (*WeaponDetail, error) {
	const op = "weapons.get"
	w, err := s.get(ctx, op, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.aliases.ListByWeapon(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, aggregates.MapError(op, err)
	}
	out := &WeaponDetail{Weapon: w, Aliases: make([]string, 0, len(rows))}
	for _, a := range rows {
		out.Aliases = append(out.Aliases, a.Alias)
	}
	return out, nil
}

func (s *weaponService) MountedOn(ctx context.Context, id uuid.UUID, limit, offset int) ([]*types.FinalizedUnit, int64, error) {
	const op = "weapons.mounted_on"
	if _, err := s.get(ctx, op, id); err != nil {
		return nil, 0, err
	}
	out, total, err := s.units.ListByWeapon(dbctx.Context{Ctx: ctx}, id, limit, offset)
	if err != nil {
		return nil, 0, aggregates.MapError(op, err)
	}
	return out, total, nil
}
