package app

import (
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/mechdata-backend/internal/config"
	"github.com/yungbote/mechdata-backend/internal/data/aggregates"
	"github.com/yungbote/mechdata-backend/internal/data/repos"
	"github.com/yungbote/mechdata-backend/internal/jobs/worker"
	"github.com/yungbote/mechdata-backend/internal/observability"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
	"github.com/yungbote/mechdata-backend/internal/services"
)

const catalogSnapshotTTL = 5 * time.Minute

type Services struct {
	Catalog   services.CatalogService
	Resolver  services.ResolverService
	Ingest    services.IngestService
	Valuation services.ValuationService
	Finalizer services.FinalizerService
	Pipeline  services.PipelineRunner
	Status    services.StatusService
	Units     services.UnitService
	Weapons   services.WeaponService
	Worker    *worker.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg *config.Config, set repos.Set, clients Clients, metrics *observability.Metrics) Services {
	log.Info("Wiring services...")
	base := aggregates.BaseDeps{
		DB:       db,
		Log:      log,
		Hooks:    aggregates.NewObservabilityHooks(metrics),
		CASGuard: aggregates.NewCASGuard(db),
	}
	finAgg := aggregates.NewFinalizationAggregate(aggregates.FinalizationAggregateDeps{
		Base:    base,
		Records: set.StagingRecords,
		Slots:   set.StagingSlots,
		Units:   set.Units,
		Jobs:    set.Jobs,
	})
	valAgg := aggregates.NewValuationAggregate(aggregates.ValuationAggregateDeps{Base: base, Units: set.Units})

	var out Services
	out.Catalog = services.NewCatalogService(db, log, set.Weapons, set.Aliases, catalogSnapshotTTL)
	out.Resolver = services.NewResolverService(db, log, out.Catalog, set.StagingSlots, set.UnresolvedToken, metrics)
	out.Ingest = services.NewIngestService(db, log, set.StagingRecords, set.StagingSlots, set.IngestLog, metrics)
	out.Valuation = services.NewValuationService(log, clients.Lookup, valAgg, set.Units, cfg.Valuation, metrics)
	out.Finalizer = services.NewFinalizerService(log, finAgg, set.StagingRecords, clients.Locker, out.Valuation, cfg, metrics)
	out.Pipeline = services.NewPipelineRunner(log, out.Ingest, out.Resolver, out.Finalizer, cfg.Pipeline.Parallelism)
	out.Status = services.NewStatusService(log, set)
	out.Units = services.NewUnitService(log, set.Units)
	out.Weapons = services.NewWeaponService(log, set.Weapons, set.Aliases, set.Units)
	out.Worker = worker.NewWorker(log, set.Jobs, out.Valuation, cfg.Worker, metrics)
	return out
}
