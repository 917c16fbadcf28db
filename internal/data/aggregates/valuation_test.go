package aggregates_test

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/yungbote/mechdata-backend/internal/data/aggregates"
	"github.com/yungbote/mechdata-backend/internal/data/repos"
	repotest "github.com/yungbote/mechdata-backend/internal/data/repos/testutil"
	types "github.com/yungbote/mechdata-backend/internal/domain"
	domainagg "github.com/yungbote/mechdata-backend/internal/domain/aggregates"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
)

func claimOne(t *testing.T, rs repos.Set, dbc dbctx.Context, worker string) *types.ValuationJob {
	t.Helper()
	jobs, err := rs.Jobs.ClaimNextBatch(dbc, worker, 1)
	if err != nil {
		t.Fatalf("ClaimNextBatch: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("ClaimNextBatch: expected 1 job, got %d", len(jobs))
	}
	return jobs[0]
}

func claimOf(j *types.ValuationJob) domainagg.JobClaim {
	return domainagg.JobClaim{JobID: j.ID, WorkerID: j.ClaimedBy, Attempt: j.Attempts}
}

func TestValuationCompleteAppliesRating(t *testing.T) {
	db := repotest.DB(t)
	ctx := context.Background()
	dbc := dbctx.Background(ctx)
	rs := repos.New(db, repotest.Logger(t))
	agg := aggregates.NewValuationAggregate(aggregates.ValuationAggregateDeps{
		Base:  aggregates.BaseDeps{DB: db},
		Units: rs.Units,
	})

	unit := repotest.SeedUnit(t, ctx, db, "Atlas", "AS7-D")
	repotest.SeedJob(t, ctx, db, unit)
	job := claimOne(t, rs, dbc, "w1")

	err := agg.Complete(ctx, domainagg.CompleteValuationInput{
		Claim:       claimOf(job),
		UnitID:      unit.ID,
		BattleValue: 1897,
		PointValue:  52,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	stored, err := rs.Jobs.GetByID(dbc, job.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != types.JobDone || stored.BattleValue == nil || *stored.BattleValue != 1897 || stored.FinishedAt == nil {
		t.Fatalf("unexpected job after complete: %+v", stored)
	}
	rated, err := rs.Units.GetByID(dbc, unit.ID)
	if err != nil || rated == nil || !rated.Rated() || *rated.PointValue != 52 || rated.ValuedAt == nil {
		t.Fatalf("unit rating not applied: %+v err=%v", rated, err)
	}
}

func TestValuationRecordFailureRetriesThenFails(t *testing.T) {
	db := repotest.DB(t)
	ctx := context.Background()
	dbc := dbctx.Background(ctx)
	rs := repos.New(db, repotest.Logger(t))
	agg := aggregates.NewValuationAggregate(aggregates.ValuationAggregateDeps{
		Base:  aggregates.BaseDeps{DB: db},
		Units: rs.Units,
	})

	unit := repotest.SeedUnit(t, ctx, db, "Locust", "LCT-1V")
	repotest.SeedJob(t, ctx, db, unit)

	const maxAttempts = 2
	job := claimOne(t, rs, dbc, "w1")
	res, err := agg.RecordFailure(ctx, domainagg.RecordFailureInput{
		Claim:       claimOf(job),
		MaxAttempts: maxAttempts,
		RetryDelay:  time.Minute,
		Reason:      "no valuation found",
	})
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if res.Status != string(types.JobQueued) || res.NextAttemptAt == nil {
		t.Fatalf("expected requeue, got %+v", res)
	}
	if again, err := rs.Jobs.ClaimNextBatch(dbc, "w1", 1); err != nil || len(again) != 0 {
		t.Fatalf("job claimable before retry delay: n=%d err=%v", len(again), err)
	}

	if err := db.Model(&types.ValuationJob{}).Where("id = ?", job.ID).
		Update("next_attempt_at", time.Now().UTC().Add(-time.Second)).Error; err != nil {
		t.Fatalf("rewind next_attempt_at: %v", err)
	}
	job = claimOne(t, rs, dbc, "w2")
	if job.Attempts != 2 {
		t.Fatalf("expected attempt 2, got %d", job.Attempts)
	}
	res, err = agg.RecordFailure(ctx, domainagg.RecordFailureInput{
		Claim:       claimOf(job),
		MaxAttempts: maxAttempts,
		RetryDelay:  time.Minute,
		Reason:      "no valuation found",
	})
	if err != nil {
		t.Fatalf("RecordFailure final: %v", err)
	}
	if res.Status != string(types.JobFailed) {
		t.Fatalf("expected failed, got %+v", res)
	}
	stored, err := rs.Jobs.GetByID(dbc, job.ID)
	if err != nil || stored.Status != types.JobFailed || stored.LastError != "no valuation found" || stored.BattleValue != nil {
		t.Fatalf("unexpected failed job: %+v err=%v", stored, err)
	}
	if u, _ := rs.Units.GetByID(dbc, unit.ID); u == nil || u.Rated() {
		t.Fatalf("failed job must not rate the unit: %+v", u)
	}
}

func TestValuationStaleClaimIsFenced(t *testing.T) {
	db := repotest.DB(t)
	ctx := context.Background()
	dbc := dbctx.Background(ctx)
	rs := repos.New(db, repotest.Logger(t))
	agg := aggregates.NewValuationAggregate(aggregates.ValuationAggregateDeps{
		Base:  aggregates.BaseDeps{DB: db},
		Units: rs.Units,
	})

	unit := repotest.SeedUnit(t, ctx, db, "Hunchback", "HBK-4G")
	repotest.SeedJob(t, ctx, db, unit)
	stale := claimOne(t, rs, dbc, "slow")

	if _, _, err := rs.Jobs.RecoverStale(dbc, -time.Second, 5); err != nil {
		t.Fatalf("RecoverStale: %v", err)
	}
	fresh := claimOne(t, rs, dbc, "fast")

	err := agg.Complete(ctx, domainagg.CompleteValuationInput{Claim: claimOf(stale), UnitID: unit.ID, BattleValue: 1, PointValue: 1})
	if !pipelineerr.IsCode(err, pipelineerr.CodeStoreConflict) {
		t.Fatalf("expected store_conflict for stale claim, got %v", err)
	}
	if u, _ := rs.Units.GetByID(dbc, unit.ID); u == nil || u.Rated() {
		t.Fatalf("stale claim must not rate the unit: %+v", u)
	}

	if err := agg.Complete(ctx, domainagg.CompleteValuationInput{Claim: claimOf(fresh), UnitID: unit.ID, BattleValue: 1041, PointValue: 29}); err != nil {
		t.Fatalf("Complete fresh claim: %v", err)
	}
}

func TestValuationApplyRatingWithoutJob(t *testing.T) {
	db := repotest.DB(t)
	ctx := context.Background()
	rs := repos.New(db, repotest.Logger(t))
	agg := aggregates.NewValuationAggregate(aggregates.ValuationAggregateDeps{
		Base:  aggregates.BaseDeps{DB: db},
		Units: rs.Units,
	})

	unit := repotest.SeedUnit(t, ctx, db, "Commando", "COM-2D")
	if err := agg.ApplyRating(ctx, domainagg.ApplyRatingInput{UnitID: unit.ID, BattleValue: 541, PointValue: 16}); err != nil {
		t.Fatalf("ApplyRating: %v", err)
	}
	got, err := rs.Units.GetByID(dbctx.Background(ctx), unit.ID)
	if err != nil || got == nil || *got.BattleValue != 541 {
		t.Fatalf("rating not stored: %+v err=%v", got, err)
	}
	if n, _ := rs.Jobs.CountByStatus(dbctx.Background(ctx)); n[types.JobQueued] != 0 {
		t.Fatalf("ApplyRating must not create jobs")
	}
}

func TestValuationRecordFailureTruncatesOnRuneBoundary(t *testing.T) {
	db := repotest.DB(t)
	ctx := context.Background()
	dbc := dbctx.Background(ctx)
	rs := repos.New(db, repotest.Logger(t))
	agg := aggregates.NewValuationAggregate(aggregates.ValuationAggregateDeps{
		Base:  aggregates.BaseDeps{DB: db},
		Units: rs.Units,
	})

	unit := repotest.SeedUnit(t, ctx, db, "Locust", "LCT-1V")
	repotest.SeedJob(t, ctx, db, unit)
	job := claimOne(t, rs, dbc, "w1")

	// The 1000-byte cut lands inside the first two-byte rune.
	reason := strings.Repeat("a", 999) + strings.Repeat("é", 10)
	if _, err := agg.RecordFailure(ctx, domainagg.RecordFailureInput{
		Claim:       claimOf(job),
		MaxAttempts: 3,
		RetryDelay:  time.Minute,
		Reason:      reason,
	}); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	stored, err := rs.Jobs.GetByID(dbc, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !utf8.ValidString(stored.LastError) {
		t.Fatalf("last_error is not valid UTF-8: %q", stored.LastError[990:])
	}
	if stored.LastError != strings.Repeat("a", 999) {
		t.Fatalf("expected truncation before the split rune, got %d bytes", len(stored.LastError))
	}
}
