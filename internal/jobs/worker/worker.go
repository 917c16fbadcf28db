package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/mechdata-backend/internal/config"
	"github.com/yungbote/mechdata-backend/internal/data/repos"
	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/observability"
	"github.com/yungbote/mechdata-backend/internal/pkg/ctxutil"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/httpx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
	"github.com/yungbote/mechdata-backend/internal/services"
)

// DrainReport counts what one Drain call did.
type DrainReport struct {
	Claimed   int   `json:"claimed"`
	Done      int   `json:"done"`
	Requeued  int   `json:"requeued"`
	Failed    int   `json:"failed"`
	Errors    int   `json:"errors"`
	Recovered int64 `json:"recovered_stale"`
}

func (r *DrainReport) add(res services.JobResult, err error) {
	if err != nil {
		r.Errors++
		return
	}
	switch res.Status {
	case types.JobDone:
		r.Done++
	case types.JobQueued:
		r.Requeued++
	case types.JobFailed:
		r.Failed++
	}
}

// Worker claims valuation jobs and runs them through the valuation service.
type Worker struct {
	log       *logger.Logger
	jobs      repos.ValuationJobRepo
	valuation services.ValuationService
	cfg       config.WorkerConfig
	metrics   *observability.Metrics
}

func NewWorker(baseLog *logger.Logger, jobs repos.ValuationJobRepo, valuation services.ValuationService, cfg config.WorkerConfig, metrics *observability.Metrics) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.ID == "" {
		cfg.ID = "worker"
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = time.Second
	}
	return &Worker{
		log:       baseLog.With("component", "ValuationWorker"),
		jobs:      jobs,
		valuation: valuation,
		cfg:       cfg,
		metrics:   metrics,
	}
}

func (w *Worker) processOptions(workerID string) services.ProcessOptions {
	return services.ProcessOptions{
		WorkerID:      workerID,
		MaxAttempts:   w.cfg.MaxAttempts,
		RetryDelay:    w.cfg.RetryDelay,
		LookupTimeout: w.cfg.LookupTimeout,
	}
}

func (w *Worker) recoverStale(ctx context.Context) int64 {
	if w.cfg.StaleAfter <= 0 {
		return 0
	}
	requeued, failed, err := w.jobs.RecoverStale(dbctx.Background(ctx), w.cfg.StaleAfter, w.cfg.MaxAttempts)
	if err != nil {
		w.log.Warn("RecoverStale failed", "error", err)
		return 0
	}
	if requeued > 0 || failed > 0 {
		w.log.Info("recovered stale jobs", "requeued", requeued, "failed", failed)
		for i := int64(0); i < failed; i++ {
			w.metrics.IncJobTransition(string(types.JobFailed))
		}
	}
	return requeued + failed
}

// runJob processes one claimed job. The job keeps running on a detached
// context so a shutdown does not strand it in progress.
func (w *Worker) runJob(ctx context.Context, workerID string, job *types.ValuationJob) (res services.JobResult, err error) {
	jctx, cancel := ctxutil.Detached(ctx, w.cfg.JobBudget())
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job handler panic", "worker_id", workerID, "job_id", job.ID, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	w.metrics.IncJobTransition(string(types.JobInProgress))
	res, err = w.valuation.Process(jctx, job, w.processOptions(workerID))
	if err != nil {
		w.log.Warn("job settle failed", "worker_id", workerID, "job_id", job.ID, "error", err)
	}
	return res, err
}

// Drain processes due jobs until none are left or limit jobs were claimed.
// A limit of zero or less means no limit.
func (w *Worker) Drain(ctx context.Context, limit int) (DrainReport, error) {
	var rep DrainReport
	var mu sync.Mutex
	rep.Recovered = w.recoverStale(ctx)

	for limit <= 0 || rep.Claimed < limit {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		n := w.cfg.BatchSize
		if limit > 0 && limit-rep.Claimed < n {
			n = limit - rep.Claimed
		}
		batch, err := w.jobs.ClaimNextBatch(dbctx.Background(ctx), w.cfg.ID, n)
		if err != nil {
			return rep, err
		}
		if len(batch) == 0 {
			break
		}
		rep.Claimed += len(batch)

		var g errgroup.Group
		g.SetLimit(w.cfg.Concurrency)
		for _, job := range batch {
			job := job
			g.Go(func() error {
				res, err := w.runJob(ctx, w.cfg.ID, job)
				mu.Lock()
				rep.add(res, err)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}
	w.log.Info("drain finished",
		"claimed", rep.Claimed,
		"done", rep.Done,
		"requeued", rep.Requeued,
		"failed", rep.Failed,
		"errors", rep.Errors,
	)
	return rep, nil
}

// Run starts Concurrency claim loops and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting valuation worker pool", "worker_id", w.cfg.ID, "concurrency", w.cfg.Concurrency)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		loopID := fmt.Sprintf("%s-%d", w.cfg.ID, i+1)
		g.Go(func() error {
			w.runLoop(gctx, loopID)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID string) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-timer.C:
		}

		w.recoverStale(ctx)
		batch, err := w.jobs.ClaimNextBatch(dbctx.Background(ctx), workerID, w.cfg.BatchSize)
		if err != nil {
			w.log.Warn("ClaimNextBatch failed", "worker_id", workerID, "error", err)
		}
		for _, job := range batch {
			w.runJob(ctx, workerID, job)
		}
		if len(batch) > 0 {
			timer.Reset(0)
			continue
		}
		timer.Reset(httpx.JitterSleep(w.cfg.IdleDelay))
	}
}
