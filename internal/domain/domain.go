package domain

import (
	"github.com/yungbote/mechdata-backend/internal/domain/catalog"
	"github.com/yungbote/mechdata-backend/internal/domain/jobs"
	"github.com/yungbote/mechdata-backend/internal/domain/staging"
	"github.com/yungbote/mechdata-backend/internal/domain/units"
)

type (
	Weapon      = catalog.Weapon
	WeaponAlias = catalog.WeaponAlias

	StagingRecord   = staging.Record
	StagingSlot     = staging.Slot
	UnresolvedToken = staging.UnresolvedToken
	IngestLog       = staging.IngestLog
	ResolutionState = staging.ResolutionState

	FinalizedUnit  = units.Unit
	FinalizedSlot  = units.Slot
	WeaponInstance = units.WeaponInstance

	ValuationJob = jobs.ValuationJob
	JobStatus    = jobs.Status
)

const (
	SlotUnresolved = staging.SlotUnresolved
	SlotResolved   = staging.SlotResolved
	SlotStructural = staging.SlotStructural

	MethodExact    = staging.MethodExact
	MethodAlias    = staging.MethodAlias
	MethodToken    = staging.MethodToken
	MethodKeyword  = staging.MethodKeyword
	MethodEmpty    = staging.MethodEmpty
	MethodAccepted = staging.MethodAccepted

	AliasSourceManual    = catalog.AliasSourceManual
	AliasSourceGenerated = catalog.AliasSourceGenerated
	AliasSourceImport    = catalog.AliasSourceImport

	JobQueued     = jobs.StatusQueued
	JobInProgress = jobs.StatusInProgress
	JobDone       = jobs.StatusDone
	JobFailed     = jobs.StatusFailed
)

// Models lists every persisted model in migration order.
func Models() []any {
	return []any{
		&Weapon{},
		&WeaponAlias{},
		&StagingRecord{},
		&StagingSlot{},
		&UnresolvedToken{},
		&IngestLog{},
		&FinalizedUnit{},
		&FinalizedSlot{},
		&WeaponInstance{},
		&ValuationJob{},
	}
}
