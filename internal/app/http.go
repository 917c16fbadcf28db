package app

import (
	"context"

	apphttp "github.com/yungbote/mechdata-backend/internal/http"
	httpH "github.com/yungbote/mechdata-backend/internal/http/handlers"
)

type Handlers struct {
	Health *httpH.HealthHandler
	Status *httpH.StatusHandler
	Unit   *httpH.UnitHandler
	Weapon *httpH.WeaponHandler
}

func (a *App) wireHandlers() Handlers {
	a.Log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(a.ping),
		Status: httpH.NewStatusHandler(a.Services.Status),
		Unit:   httpH.NewUnitHandler(a.Services.Units),
		Weapon: httpH.NewWeaponHandler(a.Services.Weapons),
	}
}

func (a *App) ping(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Server builds the ops HTTP server.
func (a *App) Server() *apphttp.Server {
	h := a.wireHandlers()
	serviceName := ""
	if a.Cfg.Otel.Enabled {
		serviceName = a.Cfg.Otel.ServiceName
		if serviceName == "" {
			serviceName = "mechdata"
		}
	}
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:           a.Log,
		Metrics:       a.Metrics,
		CORSOrigins:   a.Cfg.HTTP.CORSOrigins,
		ServiceName:   serviceName,
		HealthHandler: h.Health,
		StatusHandler: h.Status,
		UnitHandler:   h.Unit,
		WeaponHandler: h.Weapon,
	})
}
