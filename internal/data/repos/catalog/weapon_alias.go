package catalog

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

type WeaponAliasRepo interface {
	// Put inserts or repoints aliases. Last writer wins.
	Put(dbc dbctx.Context, aliases []*types.WeaponAlias) error
	// AddMissing inserts aliases whose text is not taken yet and reports how
	// many were added.
	AddMissing(dbc dbctx.Context, aliases []*types.WeaponAlias) (int64, error)
	Get(dbc dbctx.Context, alias string) (*types.WeaponAlias, error)
	List(dbc dbctx.Context) ([]*types.WeaponAlias, error)
	ListByWeapon(dbc dbctx.Context, weaponID uuid.UUID) ([]*types.WeaponAlias, error)
	Count(dbc dbctx.Context) (int64, error)
}

type weaponAliasRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWeaponAliasRepo(db *gorm.DB, baseLog *logger.Logger) WeaponAliasRepo {
	return &weaponAliasRepo{db: db, log: baseLog.With("repo", "WeaponAliasRepo")}
}

func (r *weaponAliasRepo) Put(dbc dbctx.Context, aliases []*types.WeaponAlias) error {
	if len(aliases) == 0 {
		return nil
	}
	return dbc.DB(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "alias"}},
		DoUpdates: clause.AssignmentColumns([]string{"weapon_id", "source"}),
	}).Create(&aliases).Error
}

func (r *weaponAliasRepo) AddMissing(dbc dbctx.Context, aliases []*types.WeaponAlias) (int64, error) {
	if len(aliases) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "alias"}},
		DoNothing: true,
	}).Create(&aliases)
	return res.RowsAffected, res.Error
}

func (r *weaponAliasRepo) Get(dbc dbctx.Context, alias string) (*types.WeaponAlias, error) {
	var a types.WeaponAlias
	err := dbc.DB(r.db).Where("alias = ?", alias).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *weaponAliasRepo) List(dbc dbctx.Context) ([]*types.WeaponAlias, error) {
	var out []*types.WeaponAlias
	if err := dbc.DB(r.db).Order("alias ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *weaponAliasRepo) ListByWeapon(dbc dbctx.Context, weaponID uuid.UUID) ([]*types.WeaponAlias, error) {
	var out []*types.WeaponAlias
	if err := dbc.DB(r.db).Where("weapon_id = ?", weaponID).Order("alias ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *weaponAliasRepo) Count(dbc dbctx.Context) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&types.WeaponAlias{}).Count(&n).Error
	return n, err
}
