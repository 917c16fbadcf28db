package catalog

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

type SearchFilter struct {
	Search   string
	Category string
	Limit    int
	Offset   int
}

type WeaponRepo interface {
	// Upsert inserts weapons by normalized name; existing rows are left as
	// they are and returned with their stored ids.
	Upsert(dbc dbctx.Context, weapons []*types.Weapon) ([]*types.Weapon, error)
	GetByNormalizedName(dbc dbctx.Context, normalized string) (*types.Weapon, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Weapon, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Weapon, error)
	List(dbc dbctx.Context) ([]*types.Weapon, error)
	// Search pages weapons whose name or normalized name contains f.Search.
	Search(dbc dbctx.Context, f SearchFilter) ([]*types.Weapon, int64, error)
	Count(dbc dbctx.Context) (int64, error)
}

type weaponRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWeaponRepo(db *gorm.DB, baseLog *logger.Logger) WeaponRepo {
	return &weaponRepo{db: db, log: baseLog.With("repo", "WeaponRepo")}
}

func (r *weaponRepo) Upsert(dbc dbctx.Context, weapons []*types.Weapon) ([]*types.Weapon, error) {
	if len(weapons) == 0 {
		return []*types.Weapon{}, nil
	}
	db := dbc.DB(r.db)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "normalized_name"}},
		DoNothing: true,
	}).Create(&weapons).Error; err != nil {
		return nil, err
	}
	names := make([]string, 0, len(weapons))
	for _, w := range weapons {
		names = append(names, w.NormalizedName)
	}
	var out []*types.Weapon
	if err := db.Where("normalized_name IN ?", names).Order("normalized_name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *weaponRepo) GetByNormalizedName(dbc dbctx.Context, normalized string) (*types.Weapon, error) {
	var w types.Weapon
	err := dbc.DB(r.db).Where("normalized_name = ?", normalized).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *weaponRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Weapon, error) {
	var w types.Weapon
	err := dbc.DB(r.db).Where("id = ?", id).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *weaponRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Weapon, error) {
	var out []*types.Weapon
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *weaponRepo) List(dbc dbctx.Context) ([]*types.Weapon, error) {
	var out []*types.Weapon
	if err := dbc.DB(r.db).Order("normalized_name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *weaponRepo) Search(dbc dbctx.Context, f SearchFilter) ([]*types.Weapon, int64, error) {
	q := dbc.DB(r.db).Model(&types.Weapon{})
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		like := "%" + term + "%"
		q = q.Where("LOWER(name) LIKE ? OR normalized_name LIKE ?", like, like)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []*types.Weapon
	if err := q.Order("normalized_name ASC").Limit(limit).Offset(f.Offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *weaponRepo) Count(dbc dbctx.Context) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&types.Weapon{}).Count(&n).Error
	return n, err
}
