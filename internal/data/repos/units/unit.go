package units

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

type ListFilter struct {
	UnitClass string
	Rated     *bool
	Search    string
	Limit     int
	Offset    int
}

type UnitRepo interface {
	Create(dbc dbctx.Context, unit *types.FinalizedUnit) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.FinalizedUnit, error)
	// GetDetail loads the unit with its slots and weapon instances.
	GetDetail(dbc dbctx.Context, id uuid.UUID) (*types.FinalizedUnit, error)
	GetByIdentity(dbc dbctx.Context, externalKey, variant string) (*types.FinalizedUnit, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// SetRating writes both ratings and the valuation time.
	SetRating(dbc dbctx.Context, id uuid.UUID, battleValue, pointValue int, at time.Time) (bool, error)
	// ReplaceChildren swaps the unit's slots and weapon instances.
	ReplaceChildren(dbc dbctx.Context, unitID uuid.UUID, slots []*types.FinalizedSlot, instances []*types.WeaponInstance) error
	List(dbc dbctx.Context, f ListFilter) ([]*types.FinalizedUnit, int64, error)
	// GetByMulID returns the unit carrying the Master Unit List id, or nil.
	GetByMulID(dbc dbctx.Context, mulID string) (*types.FinalizedUnit, error)
	// ListByWeapon pages units that mount weaponID at least once.
	ListByWeapon(dbc dbctx.Context, weaponID uuid.UUID, limit, offset int) ([]*types.FinalizedUnit, int64, error)
	Count(dbc dbctx.Context, rated *bool) (int64, error)
}

type unitRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUnitRepo(db *gorm.DB, baseLog *logger.Logger) UnitRepo {
	return &unitRepo{db: db, log: baseLog.With("repo", "FinalizedUnitRepo")}
}

func (r *unitRepo) Create(dbc dbctx.Context, unit *types.FinalizedUnit) error {
	return dbc.DB(r.db).Omit("Slots", "Instances").Create(unit).Error
}

func (r *unitRepo) first(q *gorm.DB) (*types.FinalizedUnit, error) {
	var u types.FinalizedUnit
	err := q.First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *unitRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.FinalizedUnit, error) {
	return r.first(dbc.DB(r.db).Where("id = ?", id))
}

func (r *unitRepo) GetDetail(dbc dbctx.Context, id uuid.UUID) (*types.FinalizedUnit, error) {
	return r.first(dbc.DB(r.db).
		Preload("Slots", func(db *gorm.DB) *gorm.DB { return db.Order("slot_index ASC") }).
		Preload("Instances").
		Where("id = ?", id))
}

func (r *unitRepo) GetByIdentity(dbc dbctx.Context, externalKey, variant string) (*types.FinalizedUnit, error) {
	return r.first(dbc.DB(r.db).Where("external_key = ? AND variant = ?", externalKey, variant))
}

func (r *unitRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return dbc.DB(r.db).Model(&types.FinalizedUnit{}).Where("id = ?", id).Updates(updates).Error
}

func (r *unitRepo) SetRating(dbc dbctx.Context, id uuid.UUID, battleValue, pointValue int, at time.Time) (bool, error) {
	res := dbc.DB(r.db).Model(&types.FinalizedUnit{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"battle_value": battleValue,
			"point_value":  pointValue,
			"valued_at":    at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *unitRepo) ReplaceChildren(dbc dbctx.Context, unitID uuid.UUID, slots []*types.FinalizedSlot, instances []*types.WeaponInstance) error {
	db := dbc.DB(r.db)
	if err := db.Where("finalized_unit_id = ?", unitID).Delete(&types.WeaponInstance{}).Error; err != nil {
		return err
	}
	if err := db.Where("finalized_unit_id = ?", unitID).Delete(&types.FinalizedSlot{}).Error; err != nil {
		return err
	}
	for _, s := range slots {
		s.FinalizedUnitID = unitID
	}
	for _, in := range instances {
		in.FinalizedUnitID = unitID
	}
	if len(slots) > 0 {
		if err := db.CreateInBatches(&slots, 200).Error; err != nil {
			return err
		}
	}
	if len(instances) > 0 {
		if err := db.CreateInBatches(&instances, 200).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *unitRepo) List(dbc dbctx.Context, f ListFilter) ([]*types.FinalizedUnit, int64, error) {
	q := dbc.DB(r.db).Model(&types.FinalizedUnit{})
	if f.UnitClass != "" {
		q = q.Where("unit_class = ?", f.UnitClass)
	}
	if f.Rated != nil {
		if *f.Rated {
			q = q.Where("battle_value IS NOT NULL AND point_value IS NOT NULL")
		} else {
			q = q.Where("battle_value IS NULL OR point_value IS NULL")
		}
	}
	if f.Search != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(f.Search)+"%")
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
	var out []*types.FinalizedUnit
	if err := q.Order("name ASC, variant ASC").Limit(limit).Offset(f.Offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *unitRepo) GetByMulID(dbc dbctx.Context, mulID string) (*types.FinalizedUnit, error) {
	var u types.FinalizedUnit
	err := dbc.DB(r.db).Where("mul_id = ?", mulID).Order("variant ASC").First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *unitRepo) ListByWeapon(dbc dbctx.Context, weaponID uuid.UUID, limit, offset int) ([]*types.FinalizedUnit, int64, error) {
	mounts := dbc.DB(r.db).Model(&types.WeaponInstance{}).Select("finalized_unit_id").Where("weapon_id = ?", weaponID)
	q := dbc.DB(r.db).Model(&types.FinalizedUnit{}).Where("id IN (?)", mounts).Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []*types.FinalizedUnit
	if err := q.Order("name ASC, variant ASC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *unitRepo) Count(dbc dbctx.Context, rated *bool) (int64, error) {
	q := dbc.DB(r.db).Model(&types.FinalizedUnit{})
	if rated != nil {
		if *rated {
			q = q.Where("battle_value IS NOT NULL AND point_value IS NOT NULL")
		} else {
			q = q.Where("battle_value IS NULL OR point_value IS NULL")
		}
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}
