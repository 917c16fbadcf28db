package staging

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

type RecordFilter struct {
	Finalized *bool
	UnitClass string
	Limit     int
}

type RecordRepo interface {
	Create(dbc dbctx.Context, rec *types.StagingRecord) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.StagingRecord, error)
	GetByIdentity(dbc dbctx.Context, externalKey, variant string) (*types.StagingRecord, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	ListIDs(dbc dbctx.Context, f RecordFilter) ([]uuid.UUID, error)
	// ListFinalizable returns unfinalized records without unresolved slots.
	ListFinalizable(dbc dbctx.Context, limit int) ([]uuid.UUID, error)
	Count(dbc dbctx.Context, finalized *bool) (int64, error)
	CountBlocked(dbc dbctx.Context) (int64, error)
	CountFinalizable(dbc dbctx.Context) (int64, error)
}

type recordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecordRepo(db *gorm.DB, baseLog *logger.Logger) RecordRepo {
	return &recordRepo{db: db, log: baseLog.With("repo", "StagingRecordRepo")}
}

func (r *recordRepo) Create(dbc dbctx.Context, rec *types.StagingRecord) error {
	return dbc.DB(r.db).Create(rec).Error
}

func (r *recordRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.StagingRecord, error) {
	var rec types.StagingRecord
	err := dbc.DB(r.db).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepo) GetByIdentity(dbc dbctx.Context, externalKey, variant string) (*types.StagingRecord, error) {
	var rec types.StagingRecord
	err := dbc.DB(r.db).
		Where("external_key = ? AND variant = ?", externalKey, variant).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return dbc.DB(r.db).Model(&types.StagingRecord{}).Where("id = ?", id).Updates(updates).Error
}

func (r *recordRepo) ListIDs(dbc dbctx.Context, f RecordFilter) ([]uuid.UUID, error) {
	q := dbc.DB(r.db).Model(&types.StagingRecord{})
	if f.Finalized != nil {
		q = q.Where("finalized = ?", *f.Finalized)
	}
	if f.UnitClass != "" {
		q = q.Where("unit_class = ?", f.UnitClass)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var ids []uuid.UUID
	if err := q.Order("created_at ASC, id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *recordRepo) unresolvedExists(db *gorm.DB) *gorm.DB {
	return db.Model(&types.StagingSlot{}).
		Select("1").
		Where("staging_slot.staging_record_id = staging_record.id AND staging_slot.resolution_state = ?", types.SlotUnresolved)
}

func (r *recordRepo) ListFinalizable(dbc dbctx.Context, limit int) ([]uuid.UUID, error) {
	db := dbc.DB(r.db)
	q := db.Model(&types.StagingRecord{}).
		Where("finalized = ?", false).
		Where("NOT EXISTS (?)", r.unresolvedExists(db.Session(&gorm.Session{NewDB: true})))
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ids []uuid.UUID
	if err := q.Order("created_at ASC, id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *recordRepo) Count(dbc dbctx.Context, finalized *bool) (int64, error) {
	q := dbc.DB(r.db).Model(&types.StagingRecord{})
	if finalized != nil {
		q = q.Where("finalized = ?", *finalized)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

func (r *recordRepo) CountBlocked(dbc dbctx.Context) (int64, error) {
	db := dbc.DB(r.db)
	var n int64
	err := db.Model(&types.StagingRecord{}).
		Where("EXISTS (?)", r.unresolvedExists(db.Session(&gorm.Session{NewDB: true}))).
		Count(&n).Error
	return n, err
}

func (r *recordRepo) CountFinalizable(dbc dbctx.Context) (int64, error) {
	db := dbc.DB(r.db)
	var n int64
	err := db.Model(&types.StagingRecord{}).
		Where("finalized = ?", false).
		Where("NOT EXISTS (?)", r.unresolvedExists(db.Session(&gorm.Session{NewDB: true}))).
		Count(&n).Error
	return n, err
}
