package repos

import (
	"github.com/yungbote/mechdata-backend/internal/data/repos/catalog"
	"github.com/yungbote/mechdata-backend/internal/data/repos/jobs"
	"github.com/yungbote/mechdata-backend/internal/data/repos/staging"
	"github.com/yungbote/mechdata-backend/internal/data/repos/units"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
	"gorm.io/gorm"
)

type WeaponRepo = catalog.WeaponRepo
type WeaponAliasRepo = catalog.WeaponAliasRepo

type StagingRecordRepo = staging.RecordRepo
type StagingSlotRepo = staging.SlotRepo
type UnresolvedTokenRepo = staging.UnresolvedTokenRepo
type IngestLogRepo = staging.IngestLogRepo

type FinalizedUnitRepo = units.UnitRepo

type ValuationJobRepo = jobs.ValuationJobRepo

// Set holds one instance of every repo over the same database.
type Set struct {
	Weapons         WeaponRepo
	Aliases         WeaponAliasRepo
	StagingRecords  StagingRecordRepo
	StagingSlots    StagingSlotRepo
	UnresolvedToken UnresolvedTokenRepo
	IngestLog       IngestLogRepo
	Units           FinalizedUnitRepo
	Jobs            ValuationJobRepo
}

func New(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		Weapons:         catalog.NewWeaponRepo(db, log),
		Aliases:         catalog.NewWeaponAliasRepo(db, log),
		StagingRecords:  staging.NewRecordRepo(db, log),
		StagingSlots:    staging.NewSlotRepo(db, log),
		UnresolvedToken: staging.NewUnresolvedTokenRepo(db, log),
		IngestLog:       staging.NewIngestLogRepo(db, log),
		Units:           units.NewUnitRepo(db, log),
		Jobs:            jobs.NewValuationJobRepo(db, log),
	}
}
