package services

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/mechdata-backend/internal/config"
	"github.com/yungbote/mechdata-backend/internal/data/aggregates"
	"github.com/yungbote/mechdata-backend/internal/data/repos"
	repotest "github.com/yungbote/mechdata-backend/internal/data/repos/testutil"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/platform/locks"
	"github.com/yungbote/mechdata-backend/internal/platform/valuation"
)

const atlasMTF = `chassis:Atlas
model:AS7-D
mul id:140
Mass:100

Left Arm:
Shoulder
Upper Arm Actuator
Medium Laser
-Empty-

Right Torso:
AC/20
AC/20
`

// fakeLookup answers by unit name. Unknown names are not found.
type fakeLookup struct {
	mu      sync.Mutex
	ratings map[string]valuation.Result
	err     error
	calls   int32
	queries []valuation.Query
}

func (f *fakeLookup) Backend() string { return "fake" }

func (f *fakeLookup) Lookup(_ context.Context, q valuation.Query) (valuation.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return valuation.Result{}, f.err
	}
	if r, ok := f.ratings[q.Name]; ok {
		return r, nil
	}
	return valuation.Result{}, pipelineerr.New(pipelineerr.CodeValuationNotFound, "fake", "no rows", nil)
}

type harness struct {
	ctx  context.Context
	db   *gorm.DB
	repo repos.Set
	cfg  *config.Config

	lookup    *fakeLookup
	catalog   CatalogService
	resolver  ResolverService
	ingest    IngestService
	finalizer FinalizerService
	valuation ValuationService
	status    StatusService
	units     UnitService
	pipeline  PipelineRunner
}

// newHarness wires every service over a fresh in-memory database. wrap may
// replace the aggregate transaction runner.
func newHarness(t *testing.T, wrap func(db *gorm.DB) aggregates.TxRunner) *harness {
	t.Helper()
	db := repotest.DB(t)
	var runner aggregates.TxRunner
	if wrap != nil {
		runner = wrap(db)
	}
	log := repotest.Logger(t)
	set := repos.New(db, log)
	cfg := &config.Config{
		Pipeline: config.PipelineConfig{Parallelism: 2, ValuationMode: config.ModeEnqueue, AutoFinalize: true},
		Worker: config.WorkerConfig{
			ID:            "test-worker",
			Concurrency:   1,
			BatchSize:     4,
			MaxAttempts:   3,
			RetryDelay:    time.Minute,
			StaleAfter:    time.Minute,
			LookupTimeout: time.Second,
		},
		Valuation: config.ValuationConfig{Backend: "http", TypeMap: map[string]int{"vehicle": 19}},
	}
	lookup := &fakeLookup{ratings: map[string]valuation.Result{}}

	base := aggregates.BaseDeps{DB: db, Log: log, Runner: runner}
	finAgg := aggregates.NewFinalizationAggregate(aggregates.FinalizationAggregateDeps{
		Base:    base,
		Records: set.StagingRecords,
		Slots:   set.StagingSlots,
		Units:   set.Units,
		Jobs:    set.Jobs,
	})
	valAgg := aggregates.NewValuationAggregate(aggregates.ValuationAggregateDeps{Base: base, Units: set.Units})

	h := &harness{ctx: context.Background(), db: db, repo: set, cfg: cfg, lookup: lookup}
	h.catalog = NewCatalogService(db, log, set.Weapons, set.Aliases, time.Minute)
	h.resolver = NewResolverService(db, log, h.catalog, set.StagingSlots, set.UnresolvedToken, nil)
	h.ingest = NewIngestService(db, log, set.StagingRecords, set.StagingSlots, set.IngestLog, nil)
	h.valuation = NewValuationService(log, lookup, valAgg, set.Units, cfg.Valuation, nil)
	h.finalizer = NewFinalizerService(log, finAgg, set.StagingRecords, locks.NewKeyedMutex(), h.valuation, cfg, nil)
	h.status = NewStatusService(log, set)
	h.units = NewUnitService(log, set.Units)
	h.pipeline = NewPipelineRunner(log, h.ingest, h.resolver, h.finalizer, cfg.Pipeline.Parallelism)
	return h
}

// deadlockingTokens fails the counter upsert for any token whose sample
// contains match, the way postgres reports a deadlock between two
// resolvers upserting the same tokens in different orders.
type deadlockingTokens struct {
	repos.UnresolvedTokenRepo
	match string
}

func (d deadlockingTokens) Increment(dbc dbctx.Context, token, sampleRaw string, n int64) error {
	if strings.Contains(strings.ToLower(sampleRaw), d.match) {
		return &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	}
	return d.UnresolvedTokenRepo.Increment(dbc, token, sampleRaw, n)
}

// failTokenUpserts rewires the resolver and pipeline so records holding an
// unresolved slot that contains match fail to resolve.
func (h *harness) failTokenUpserts(t *testing.T, match string) {
	t.Helper()
	tokens := deadlockingTokens{UnresolvedTokenRepo: h.repo.UnresolvedToken, match: match}
	h.resolver = NewResolverService(h.db, repotest.Logger(t), h.catalog, h.repo.StagingSlots, tokens, nil)
	h.pipeline = NewPipelineRunner(repotest.Logger(t), h.ingest, h.resolver, h.finalizer, h.cfg.Pipeline.Parallelism)
}
