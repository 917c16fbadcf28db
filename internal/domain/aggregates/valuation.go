package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"
)

var ValuationAggregateContract = Contract{
	Name:   "Jobs.ValuationAggregate",
	Tables: []string{"valuation_job", "finalized_unit"},
	Notes:  "Settles claimed valuation jobs and applies ratings to finalized units. The job claim fences every write.",
}

// ValuationAggregate owns valuation job settlement.
//
// Job writes are fenced by the claim: a worker whose job was recovered as
// stale gets CodeStoreConflict and must drop its result.
type ValuationAggregate interface {
	Aggregate

	// Complete marks the claimed job done and applies its rating to the unit
	// in the same transaction.
	Complete(ctx context.Context, in CompleteValuationInput) error

	// RecordFailure requeues the claimed job with a delay, or fails it once
	// its attempts reach MaxAttempts.
	RecordFailure(ctx context.Context, in RecordFailureInput) (RecordFailureResult, error)

	// ApplyRating writes a rating to a unit without any job.
	ApplyRating(ctx context.Context, in ApplyRatingInput) error
}

// JobClaim identifies one claimed attempt of a job.
type JobClaim struct {
	JobID    uuid.UUID
	WorkerID string
	Attempt  int
}

type CompleteValuationInput struct {
	Claim       JobClaim
	UnitID      uuid.UUID
	BattleValue int
	PointValue  int
	CompletedAt time.Time
}

type RecordFailureInput struct {
	Claim       JobClaim
	MaxAttempts int
	RetryDelay  time.Duration
	Reason      string
	FailedAt    time.Time
}

type RecordFailureResult struct {
	// Status is "queued" when the job will be retried, "failed" otherwise.
	Status        string
	NextAttemptAt *time.Time
}

type ApplyRatingInput struct {
	UnitID      uuid.UUID
	BattleValue int
	PointValue  int
	ValuedAt    time.Time
}
