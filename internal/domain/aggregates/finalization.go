package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"
)

var FinalizationAggregateContract = Contract{
	Name:   "Units.FinalizationAggregate",
	Tables: []string{"finalized_unit", "finalized_slot", "weapon_instance", "staging_record", "valuation_job"},
	Lock:   "per-identity (external_key, variant)",
	Notes:  "Promotes a fully resolved staging record into finalized unit, slots, weapon instances and its valuation job in one transaction.",
}

// FinalizationAggregate owns the staging to production promotion.
//
// Write failures carry pipelineerr codes: CodeValidation, CodeNotFound,
// CodePendingResolution, CodeStoreConflict, CodeInternal.
type FinalizationAggregate interface {
	Aggregate

	// Promote replaces the production rows of the record's identity. The
	// unit id survives re-promotion.
	Promote(ctx context.Context, in PromoteInput) (PromoteResult, error)
}

type PromoteInput struct {
	StagingRecordID uuid.UUID
	// EnqueueJob inserts a queued valuation job unless the unit already has
	// one that is queued, in progress or done.
	EnqueueJob  bool
	TypeFilter  *int
	FinalizedAt time.Time
}

type PromoteResult struct {
	UnitID        uuid.UUID
	ExternalKey   string
	Variant       string
	Name          string
	UnitClass     string
	Created       bool
	SlotCount     int
	InstanceCount int
	JobID         *uuid.UUID
	JobDeduped    bool
}
