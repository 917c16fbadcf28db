package aggregates

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/mechdata-backend/internal/data/repos"
	types "github.com/yungbote/mechdata-backend/internal/domain"
	domainagg "github.com/yungbote/mechdata-backend/internal/domain/aggregates"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
)

type FinalizationAggregateDeps struct {
	Base BaseDeps

	Records repos.StagingRecordRepo
	Slots   repos.StagingSlotRepo
	Units   repos.FinalizedUnitRepo
	Jobs    repos.ValuationJobRepo
}

type finalizationAggregate struct {
	deps FinalizationAggregateDeps
}

func NewFinalizationAggregate(deps FinalizationAggregateDeps) domainagg.FinalizationAggregate {
	deps.Base = deps.Base.withDefaults()
	return &finalizationAggregate{deps: deps}
}

func (a *finalizationAggregate) Contract() domainagg.Contract {
	return domainagg.FinalizationAggregateContract
}

func (a *finalizationAggregate) Promote(ctx context.Context, in domainagg.PromoteInput) (domainagg.PromoteResult, error) {
	const op = "Units.Finalization.Promote"
	var out domainagg.PromoteResult

	if in.StagingRecordID == uuid.Nil {
		return out, pipelineerr.New(pipelineerr.CodeValidation, op, "missing staging_record_id", nil)
	}
	if a.deps.Records == nil || a.deps.Slots == nil || a.deps.Units == nil || a.deps.Jobs == nil {
		return out, pipelineerr.New(pipelineerr.CodeInternal, op, "finalization aggregate repos not configured", nil)
	}
	finalizedAt := in.FinalizedAt.UTC()
	if in.FinalizedAt.IsZero() {
		finalizedAt = time.Now().UTC()
	}

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		res := domainagg.PromoteResult{}

		rec, err := a.deps.Records.GetByID(dbc, in.StagingRecordID)
		if err != nil {
			return err
		}
		if rec == nil {
			return pipelineerr.New(pipelineerr.CodeNotFound, op, "staging record not found", nil)
		}
		pending, err := a.deps.Slots.CountUnresolved(dbc, rec.ID)
		if err != nil {
			return err
		}
		if pending > 0 {
			return &pipelineerr.Error{
				Code:    pipelineerr.CodePendingResolution,
				Op:      op,
				Message: pendingMessage(pending),
			}
		}
		slots, err := a.deps.Slots.ListByRecord(dbc, rec.ID)
		if err != nil {
			return err
		}

		unit, err := a.deps.Units.GetByIdentity(dbc, rec.ExternalKey, rec.Variant)
		if err != nil {
			return err
		}
		if unit == nil {
			unit = &types.FinalizedUnit{
				ID:              uuid.New(),
				ExternalKey:     rec.ExternalKey,
				Variant:         rec.Variant,
				Name:            rec.Name,
				MulID:           rec.MulID,
				UnitClass:       rec.UnitClass,
				StagingRecordID: rec.ID,
				Attributes:      rec.Attributes,
				Locations:       rec.Locations,
				FinalizedAt:     finalizedAt,
			}
			if err := a.deps.Units.Create(dbc, unit); err != nil {
				return err
			}
			res.Created = true
		} else {
			if err := a.deps.Units.UpdateFields(dbc, unit.ID, map[string]interface{}{
				"name":              rec.Name,
				"mul_id":            rec.MulID,
				"unit_class":        rec.UnitClass,
				"staging_record_id": rec.ID,
				"attributes":        rec.Attributes,
				"locations":         rec.Locations,
				"finalized_at":      finalizedAt,
			}); err != nil {
				return err
			}
		}

		fslots, instances := buildProductionSlots(slots)
		if err := a.deps.Units.ReplaceChildren(dbc, unit.ID, fslots, instances); err != nil {
			return err
		}
		if err := a.deps.Records.UpdateFields(dbc, rec.ID, map[string]interface{}{
			"finalized":    true,
			"finalized_at": finalizedAt,
		}); err != nil {
			return err
		}

		if in.EnqueueJob {
			open, err := a.deps.Jobs.HasOpenForUnit(dbc, unit.ID)
			if err != nil {
				return err
			}
			if open {
				res.JobDeduped = true
			} else {
				job := &types.ValuationJob{
					ID:              uuid.New(),
					FinalizedUnitID: unit.ID,
					UnitClass:       rec.UnitClass,
					UnitName:        rec.Name,
					Variant:         rec.Variant,
					TypeFilter:      in.TypeFilter,
					Status:          types.JobQueued,
					NextAttemptAt:   finalizedAt,
				}
				if _, err := a.deps.Jobs.Create(dbc, []*types.ValuationJob{job}); err != nil {
					return err
				}
				res.JobID = &job.ID
			}
		}

		res.UnitID = unit.ID
		res.ExternalKey = rec.ExternalKey
		res.Variant = rec.Variant
		res.Name = rec.Name
		res.UnitClass = rec.UnitClass
		res.SlotCount = len(fslots)
		res.InstanceCount = len(instances)
		out = res
		return nil
	})
	if err != nil {
		return domainagg.PromoteResult{}, err
	}
	return out, nil
}

// buildProductionSlots copies staging slots in index order and adds one
// weapon instance per resolved slot.
func buildProductionSlots(slots []*types.StagingSlot) ([]*types.FinalizedSlot, []*types.WeaponInstance) {
	fslots := make([]*types.FinalizedSlot, 0, len(slots))
	instances := make([]*types.WeaponInstance, 0)
	for _, s := range slots {
		fs := &types.FinalizedSlot{
			ID:              uuid.New(),
			SlotIndex:       s.SlotIndex,
			LocationName:    s.LocationName,
			LocationSlot:    s.LocationSlot,
			RawText:         s.RawText,
			ResolutionState: string(s.ResolutionState),
			WeaponID:        s.ResolvedWeaponID,
		}
		fslots = append(fslots, fs)
		if s.ResolutionState == types.SlotResolved && s.ResolvedWeaponID != nil {
			instances = append(instances, &types.WeaponInstance{
				ID:              uuid.New(),
				FinalizedSlotID: fs.ID,
				WeaponID:        *s.ResolvedWeaponID,
				LocationName:    s.LocationName,
			})
		}
	}
	return fslots, instances
}

func pendingMessage(n int64) string {
	if n == 1 {
		return "1 slot is still unresolved"
	}
	return fmt.Sprintf("%d slots are still unresolved", n)
}
