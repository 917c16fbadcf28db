package staging

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

type SlotRepo interface {
	// Replace deletes every slot of the record and inserts slots in its place.
	Replace(dbc dbctx.Context, recordID uuid.UUID, slots []*types.StagingSlot) error
	ListByRecord(dbc dbctx.Context, recordID uuid.UUID) ([]*types.StagingSlot, error)
	// ListUnresolved returns unresolved slots, restricted to recordIDs when given.
	ListUnresolved(dbc dbctx.Context, recordIDs []uuid.UUID) ([]*types.StagingSlot, error)
	// MarkResolved moves an unresolved slot to resolved. It reports false when
	// the slot had already left the unresolved state.
	MarkResolved(dbc dbctx.Context, id uuid.UUID, weaponID uuid.UUID, method string) (bool, error)
	MarkStructural(dbc dbctx.Context, id uuid.UUID, method string) (bool, error)
	CountByState(dbc dbctx.Context) (map[types.ResolutionState]int64, error)
	CountUnresolved(dbc dbctx.Context, recordID uuid.UUID) (int64, error)
}

type slotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSlotRepo(db *gorm.DB, baseLog *logger.Logger) SlotRepo {
	return &slotRepo{db: db, log: baseLog.With("repo", "StagingSlotRepo")}
}

func (r *slotRepo) Replace(dbc dbctx.Context, recordID uuid.UUID, slots []*types.StagingSlot) error {
	db := dbc.DB(r.db)
	if err := db.Where("staging_record_id = ?", recordID).Delete(&types.StagingSlot{}).Error; err != nil {
		return err
	}
	if len(slots) == 0 {
		return nil
	}
	for _, s := range slots {
		s.StagingRecordID = recordID
	}
	return db.CreateInBatches(&slots, 200).Error
}

func (r *slotRepo) ListByRecord(dbc dbctx.Context, recordID uuid.UUID) ([]*types.StagingSlot, error) {
	var out []*types.StagingSlot
	if err := dbc.DB(r.db).
		Where("staging_record_id = ?", recordID).
		Order("slot_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *slotRepo) ListUnresolved(dbc dbctx.Context, recordIDs []uuid.UUID) ([]*types.StagingSlot, error) {
	q := dbc.DB(r.db).Where("resolution_state = ?", types.SlotUnresolved)
	if recordIDs != nil {
		if len(recordIDs) == 0 {
			return []*types.StagingSlot{}, nil
		}
		q = q.Where("staging_record_id IN ?", recordIDs)
	}
	var out []*types.StagingSlot
	if err := q.Order("staging_record_id ASC, slot_index ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *slotRepo) MarkResolved(dbc dbctx.Context, id uuid.UUID, weaponID uuid.UUID, method string) (bool, error) {
	now := time.Now().UTC()
	res := dbc.DB(r.db).Model(&types.StagingSlot{}).
		Where("id = ? AND resolution_state = ?", id, types.SlotUnresolved).
		Updates(map[string]interface{}{
			"resolution_state":   types.SlotResolved,
			"resolved_weapon_id": weaponID,
			"resolution_method":  method,
			"resolved_at":        now,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *slotRepo) MarkStructural(dbc dbctx.Context, id uuid.UUID, method string) (bool, error) {
	now := time.Now().UTC()
	res := dbc.DB(r.db).Model(&types.StagingSlot{}).
		Where("id = ? AND resolution_state = ?", id, types.SlotUnresolved).
		Updates(map[string]interface{}{
			"resolution_state":  types.SlotStructural,
			"resolution_method": method,
			"resolved_at":       now,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *slotRepo) CountByState(dbc dbctx.Context) (map[types.ResolutionState]int64, error) {
	var rows []struct {
		ResolutionState types.ResolutionState
		N               int64
	}
	if err := dbc.DB(r.db).Model(&types.StagingSlot{}).
		Select("resolution_state, COUNT(*) AS n").
		Group("resolution_state").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[types.ResolutionState]int64{
		types.SlotUnresolved: 0,
		types.SlotResolved:   0,
		types.SlotStructural: 0,
	}
	for _, row := range rows {
		out[row.ResolutionState] = row.N
	}
	return out, nil
}

func (r *slotRepo) CountUnresolved(dbc dbctx.Context, recordID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&types.StagingSlot{}).
		Where("staging_record_id = ? AND resolution_state = ?", recordID, types.SlotUnresolved).
		Count(&n).Error
	return n, err
}
