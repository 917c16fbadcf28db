package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/mechdata-backend/internal/config"
	"github.com/yungbote/mechdata-backend/internal/data/db"
	"github.com/yungbote/mechdata-backend/internal/data/repos"
	"github.com/yungbote/mechdata-backend/internal/observability"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

// App owns the process-wide resources every command needs.
type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      *config.Config
	Repos    repos.Set
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics

	otelShutdown func(context.Context) error
}

// New opens the store and wires repos, clients and services. Migrations run
// only when migrate is set.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, migrate bool) (*App, error) {
	log.Info("Opening database...", "driver", cfg.DB.Driver)
	theDB, err := db.Open(cfg.DB, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if migrate {
		if err := db.AutoMigrateAll(theDB); err != nil {
			_ = db.Close(theDB)
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		if metrics, err = observability.NewMetrics(nil); err != nil {
			_ = db.Close(theDB)
			return nil, fmt.Errorf("init metrics: %w", err)
		}
	}
	shutdown := observability.InitOTel(ctx, log, cfg.Otel, cfg.Env)

	reposet := repos.New(theDB, log)
	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = db.Close(theDB)
		return nil, err
	}
	serviceset := wireServices(theDB, log, cfg, reposet, clients, metrics)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Metrics:      metrics,
		otelShutdown: shutdown,
	}, nil
}

// StartCollectors runs background metric refreshers until ctx is done.
func (a *App) StartCollectors(ctx context.Context) {
	if a == nil || a.Metrics == nil {
		return
	}
	a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB, 15*time.Second)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	a.Clients.Close(a.Log)
	if a.DB != nil {
		if err := db.Close(a.DB); err != nil {
			a.Log.Warn("database close failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
