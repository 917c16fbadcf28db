package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/mechdata-backend/internal/data/repos/testutil"
	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
)

func TestValuationJobClaimNextBatch(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewValuationJobRepo(db, testutil.Logger(t))
	dbc := dbctx.Background(ctx)

	unit := testutil.SeedUnit(t, ctx, db, "Atlas", "AS7-D")
	first := testutil.SeedJob(t, ctx, db, unit)
	second := testutil.SeedJob(t, ctx, db, unit)

	later := &types.ValuationJob{
		ID:              uuid.New(),
		FinalizedUnitID: unit.ID,
		UnitClass:       "mech",
		UnitName:        "Atlas",
		Variant:         "AS7-D",
		NextAttemptAt:   time.Now().UTC().Add(time.Hour),
	}
	if _, err := repo.Create(dbc, []*types.ValuationJob{later}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	claimed, err := repo.ClaimNextBatch(dbc, "w1", 10)
	if err != nil {
		t.Fatalf("ClaimNextBatch: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("ClaimNextBatch: expected 2 due jobs, got %d", len(claimed))
	}
	for _, j := range claimed {
		if j.ID != first.ID && j.ID != second.ID {
			t.Fatalf("ClaimNextBatch: claimed unexpected job %s", j.ID)
		}
		if j.Status != types.JobInProgress || j.Attempts != 1 || j.ClaimedBy != "w1" || j.ClaimedAt == nil {
			t.Fatalf("ClaimNextBatch: bad claimed job %+v", j)
		}
	}

	stored, err := repo.GetByID(dbc, first.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetByID: err=%v row=%v", err, stored)
	}
	if stored.Status != types.JobInProgress || stored.Attempts != 1 {
		t.Fatalf("GetByID: expected in_progress attempt 1, got %s/%d", stored.Status, stored.Attempts)
	}

	again, err := repo.ClaimNextBatch(dbc, "w2", 10)
	if err != nil {
		t.Fatalf("ClaimNextBatch again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("ClaimNextBatch again: expected nothing, got %d", len(again))
	}
}

func TestValuationJobClaimIsExclusive(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewValuationJobRepo(db, testutil.Logger(t))

	unit := testutil.SeedUnit(t, ctx, db, "Locust", "LCT-1V")
	const total = 20
	for i := 0; i < total; i++ {
		testutil.SeedJob(t, ctx, db, unit)
	}

	var (
		mu   sync.Mutex
		seen = map[uuid.UUID]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			for {
				jobs, err := repo.ClaimNextBatch(dbctx.Background(ctx), worker, 3)
				if err != nil {
					t.Errorf("ClaimNextBatch(%s): %v", worker, err)
					return
				}
				if len(jobs) == 0 {
					return
				}
				mu.Lock()
				for _, j := range jobs {
					seen[j.ID]++
				}
				mu.Unlock()
			}
		}(uuid.NewString())
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("expected %d distinct claims, got %d", total, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("job %s claimed %d times", id, n)
		}
	}
}

func TestValuationJobRecoverStale(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewValuationJobRepo(db, testutil.Logger(t))
	dbc := dbctx.Background(ctx)

	unit := testutil.SeedUnit(t, ctx, db, "Hunchback", "HBK-4G")
	old := time.Now().UTC().Add(-2 * time.Hour)
	fresh := time.Now().UTC()

	mk := func(attempts int, claimedAt time.Time) *types.ValuationJob {
		return &types.ValuationJob{
			ID:              uuid.New(),
			FinalizedUnitID: unit.ID,
			UnitClass:       "mech",
			UnitName:        "Hunchback",
			Variant:         "HBK-4G",
			Status:          types.JobInProgress,
			Attempts:        attempts,
			ClaimedBy:       "gone",
			ClaimedAt:       &claimedAt,
		}
	}
	staleRetry := mk(1, old)
	staleSpent := mk(3, old)
	running := mk(1, fresh)
	if _, err := repo.Create(dbc, []*types.ValuationJob{staleRetry, staleSpent, running}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	requeued, failed, err := repo.RecoverStale(dbc, time.Hour, 3)
	if err != nil {
		t.Fatalf("RecoverStale: %v", err)
	}
	if requeued != 1 || failed != 1 {
		t.Fatalf("RecoverStale: expected 1 requeued and 1 failed, got %d/%d", requeued, failed)
	}

	checks := map[uuid.UUID]types.JobStatus{
		staleRetry.ID: types.JobQueued,
		staleSpent.ID: types.JobFailed,
		running.ID:    types.JobInProgress,
	}
	for id, want := range checks {
		got, err := repo.GetByID(dbc, id)
		if err != nil || got == nil {
			t.Fatalf("GetByID(%s): err=%v", id, err)
		}
		if got.Status != want {
			t.Fatalf("job %s: expected %s, got %s", id, want, got.Status)
		}
	}

	counts, err := repo.CountByStatus(dbc)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[types.JobQueued] != 1 || counts[types.JobFailed] != 1 || counts[types.JobInProgress] != 1 || counts[types.JobDone] != 0 {
		t.Fatalf("CountByStatus: unexpected %v", counts)
	}
}

func TestValuationJobHasOpenForUnit(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewValuationJobRepo(db, testutil.Logger(t))
	dbc := dbctx.Background(ctx)

	unit := testutil.SeedUnit(t, ctx, db, "Commando", "COM-2D")
	open, err := repo.HasOpenForUnit(dbc, unit.ID)
	if err != nil || open {
		t.Fatalf("HasOpenForUnit on empty: open=%v err=%v", open, err)
	}

	job := testutil.SeedJob(t, ctx, db, unit)
	if err := db.Model(&types.ValuationJob{}).Where("id = ?", job.ID).Update("status", types.JobFailed).Error; err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	open, err = repo.HasOpenForUnit(dbc, unit.ID)
	if err != nil || open {
		t.Fatalf("HasOpenForUnit with failed job: open=%v err=%v", open, err)
	}

	testutil.SeedJob(t, ctx, db, unit)
	open, err = repo.HasOpenForUnit(dbc, unit.ID)
	if err != nil || !open {
		t.Fatalf("HasOpenForUnit with queued job: open=%v err=%v", open, err)
	}
	latest, err := repo.LatestForUnit(dbc, unit.ID)
	if err != nil || latest == nil || latest.Status != types.JobQueued {
		t.Fatalf("LatestForUnit: %+v err=%v", latest, err)
	}
}
