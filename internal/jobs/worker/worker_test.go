package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"

	"github.com/yungbote/mechdata-backend/internal/config"
	"github.com/yungbote/mechdata-backend/internal/data/aggregates"
	"github.com/yungbote/mechdata-backend/internal/data/repos"
	repotest "github.com/yungbote/mechdata-backend/internal/data/repos/testutil"
	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/platform/valuation"
	"github.com/yungbote/mechdata-backend/internal/services"
)

// countingLookup rates every unit except the ones named in missing and
// records how often each name was asked for.
type countingLookup struct {
	mu      sync.Mutex
	calls   map[string]int
	missing map[string]bool
}

func newCountingLookup() *countingLookup {
	return &countingLookup{calls: map[string]int{}, missing: map[string]bool{}}
}

func (c *countingLookup) Backend() string { return "counting" }

func (c *countingLookup) Lookup(_ context.Context, q valuation.Query) (valuation.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[q.Name]++
	if c.missing[q.Name] {
		return valuation.Result{}, pipelineerr.New(pipelineerr.CodeValuationNotFound, "counting", "no rows", nil)
	}
	return valuation.Result{BattleValue: 1000 + len(q.Name), PointValue: 20}, nil
}

func (c *countingLookup) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

type fixture struct {
	ctx    context.Context
	db     *gorm.DB
	set    repos.Set
	lookup *countingLookup
	svc    services.ValuationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := repotest.DB(t)
	log := repotest.Logger(t)
	set := repos.New(db, log)
	lookup := newCountingLookup()
	agg := aggregates.NewValuationAggregate(aggregates.ValuationAggregateDeps{
		Base:  aggregates.BaseDeps{DB: db, Log: log},
		Units: set.Units,
	})
	svc := services.NewValuationService(log, lookup, agg, set.Units, config.ValuationConfig{Backend: "http"}, nil)
	return &fixture{ctx: context.Background(), db: db, set: set, lookup: lookup, svc: svc}
}

func (f *fixture) worker(t *testing.T, id string, cfg config.WorkerConfig) *Worker {
	t.Helper()
	cfg.ID = id
	return NewWorker(repotest.Logger(t), f.set.Jobs, f.svc, cfg, nil)
}

func (f *fixture) seed(t *testing.T, n int) []*types.FinalizedUnit {
	t.Helper()
	out := make([]*types.FinalizedUnit, 0, n)
	for i := 0; i < n; i++ {
		u := repotest.SeedUnit(t, f.ctx, f.db, fmt.Sprintf("Unit %02d", i), "STD")
		repotest.SeedJob(t, f.ctx, f.db, u)
		out = append(out, u)
	}
	return out
}

func (f *fixture) jobsByStatus(t *testing.T) map[types.JobStatus]int64 {
	t.Helper()
	var rows []struct {
		Status types.JobStatus
		N      int64
	}
	require.NoError(t, f.db.Model(&types.ValuationJob{}).Select("status, count(*) as n").Group("status").Scan(&rows).Error)
	out := map[types.JobStatus]int64{}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out
}

func TestDrainCompletesQueuedJobs(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 5)
	w := f.worker(t, "w1", config.WorkerConfig{Concurrency: 2, BatchSize: 2, MaxAttempts: 3, LookupTimeout: time.Second})

	rep, err := w.Drain(f.ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Claimed)
	assert.Equal(t, 5, rep.Done)
	assert.Zero(t, rep.Errors)
	assert.Equal(t, map[types.JobStatus]int64{types.JobDone: 5}, f.jobsByStatus(t))

	var rated int64
	require.NoError(t, f.db.Model(&types.FinalizedUnit{}).Where("battle_value IS NOT NULL").Count(&rated).Error)
	assert.EqualValues(t, 5, rated)
}

func TestDrainRespectsLimit(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 5)
	w := f.worker(t, "w1", config.WorkerConfig{Concurrency: 1, BatchSize: 4, MaxAttempts: 3})

	rep, err := w.Drain(f.ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Claimed)
	assert.EqualValues(t, 2, f.jobsByStatus(t)[types.JobQueued])
}

func TestDrainStopsAtRetryCeiling(t *testing.T) {
	f := newFixture(t)
	units := f.seed(t, 1)
	f.lookup.missing[units[0].Name] = true
	w := f.worker(t, "w1", config.WorkerConfig{Concurrency: 1, BatchSize: 1, MaxAttempts: 3, RetryDelay: 0})

	rep, err := w.Drain(f.ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Claimed)
	assert.Equal(t, 2, rep.Requeued)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 3, f.lookup.count(units[0].Name))

	var job types.ValuationJob
	require.NoError(t, f.db.First(&job).Error)
	assert.Equal(t, types.JobFailed, job.Status)
	assert.Equal(t, 3, job.Attempts)
	assert.NotEmpty(t, job.LastError)
	assert.NotNil(t, job.FinishedAt)
}

func TestConcurrentWorkersClaimEachJobOnce(t *testing.T) {
	f := newFixture(t)
	units := f.seed(t, 12)
	cfg := config.WorkerConfig{Concurrency: 2, BatchSize: 3, MaxAttempts: 3, LookupTimeout: time.Second}

	var wg sync.WaitGroup
	reports := make([]DrainReport, 3)
	for i := range reports {
		w := f.worker(t, fmt.Sprintf("w%d", i+1), cfg)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rep, err := w.Drain(f.ctx, 0)
			assert.NoError(t, err)
			reports[i] = rep
		}(i)
	}
	wg.Wait()

	total := 0
	for _, r := range reports {
		total += r.Claimed
	}
	assert.Equal(t, 12, total)
	for _, u := range units {
		assert.Equal(t, 1, f.lookup.count(u.Name), "unit %s looked up more than once", u.Name)
	}
	assert.Equal(t, map[types.JobStatus]int64{types.JobDone: 12}, f.jobsByStatus(t))
}

func TestDrainRecoversStaleClaims(t *testing.T) {
	f := newFixture(t)
	units := f.seed(t, 1)
	stale := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, f.db.Model(&types.ValuationJob{}).Where("finalized_unit_id = ?", units[0].ID).
		Updates(map[string]any{"status": types.JobInProgress, "attempts": 1, "claimed_by": "gone", "claimed_at": stale}).Error)

	w := f.worker(t, "w1", config.WorkerConfig{MaxAttempts: 3, StaleAfter: time.Minute})
	rep, err := w.Drain(f.ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rep.Recovered)
	assert.Equal(t, 1, rep.Done)

	var job types.ValuationJob
	require.NoError(t, f.db.First(&job).Error)
	assert.Equal(t, 2, job.Attempts)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 4)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w := f.worker(t, "w1", config.WorkerConfig{Concurrency: 2, BatchSize: 1, MaxAttempts: 3, IdleDelay: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(f.ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.jobsByStatus(t)[types.JobDone] == 4
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "Run did not return after cancel")
	}
}
