package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/normalization"
)

// SeedWeapon inserts a catalog weapon and its aliases.
func SeedWeapon(tb testing.TB, ctx context.Context, tx *gorm.DB, name string, aliases ...string) *types.Weapon {
	tb.Helper()
	w := &types.Weapon{
		ID:             uuid.New(),
		Name:           name,
		NormalizedName: normalization.Normalize(name),
		Category:       "weapon",
	}
	if err := tx.WithContext(ctx).Create(w).Error; err != nil {
		tb.Fatalf("seed weapon: %v", err)
	}
	for _, a := range aliases {
		wa := &types.WeaponAlias{Alias: normalization.Normalize(a), WeaponID: w.ID, Source: "manual"}
		if err := tx.WithContext(ctx).Create(wa).Error; err != nil {
			tb.Fatalf("seed alias: %v", err)
		}
	}
	return w
}

// SeedStagingRecord inserts a record with one slot per raw string, all in a
// single "Body" location. Slots start unresolved unless their text is
// structural.
func SeedStagingRecord(tb testing.TB, ctx context.Context, tx *gorm.DB, externalKey, variant string, raw ...string) (*types.StagingRecord, []*types.StagingSlot) {
	tb.Helper()
	rec := &types.StagingRecord{
		ID:          uuid.New(),
		ExternalKey: externalKey,
		Variant:     variant,
		Name:        externalKey,
		UnitClass:   "mech",
		Format:      "mtf",
		SourceHash:  uuid.NewString(),
	}
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		tb.Fatalf("seed staging record: %v", err)
	}
	slots := make([]*types.StagingSlot, 0, len(raw))
	for i, r := range raw {
		norm := normalization.Normalize(r)
		state := types.SlotUnresolved
		method := ""
		if normalization.IsStructural(norm) {
			state = types.SlotStructural
			method = types.MethodKeyword
		}
		slots = append(slots, &types.StagingSlot{
			ID:               uuid.New(),
			StagingRecordID:  rec.ID,
			SlotIndex:        i,
			LocationName:     "Body",
			LocationSlot:     i,
			RawText:          r,
			NormalizedText:   norm,
			ResolutionState:  state,
			ResolutionMethod: method,
		})
	}
	if len(slots) > 0 {
		if err := tx.WithContext(ctx).Create(&slots).Error; err != nil {
			tb.Fatalf("seed staging slots: %v", err)
		}
	}
	return rec, slots
}

// SeedUnit inserts a finalized unit without slots.
func SeedUnit(tb testing.TB, ctx context.Context, tx *gorm.DB, name, variant string) *types.FinalizedUnit {
	tb.Helper()
	u := &types.FinalizedUnit{
		ID:              uuid.New(),
		ExternalKey:     "mech:" + normalization.Normalize(name),
		Variant:         variant,
		Name:            name,
		UnitClass:       "mech",
		StagingRecordID: uuid.New(),
	}
	if err := tx.WithContext(ctx).Omit("Slots", "Instances").Create(u).Error; err != nil {
		tb.Fatalf("seed unit: %v", err)
	}
	return u
}

// SeedJob queues a valuation job for unit.
func SeedJob(tb testing.TB, ctx context.Context, tx *gorm.DB, unit *types.FinalizedUnit) *types.ValuationJob {
	tb.Helper()
	j := &types.ValuationJob{
		ID:              uuid.New(),
		FinalizedUnitID: unit.ID,
		UnitClass:       unit.UnitClass,
		UnitName:        unit.Name,
		Variant:         unit.Variant,
		Status:          types.JobQueued,
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed job: %v", err)
	}
	return j
}
