package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/mechdata-backend/internal/http/handlers"
	httpMW "github.com/yungbote/mechdata-backend/internal/http/middleware"
	"github.com/yungbote/mechdata-backend/internal/observability"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string
	ServiceName string

	HealthHandler *httpH.HealthHandler
	StatusHandler *httpH.StatusHandler
	UnitHandler   *httpH.UnitHandler
	WeaponHandler *httpH.WeaponHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.Observe(cfg.Log, cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	// Pipeline status
	if cfg.StatusHandler != nil {
		r.GET("/status", cfg.StatusHandler.GetStatus)
		r.GET("/unresolved", cfg.StatusHandler.ListUnresolved)
		r.GET("/jobs", cfg.StatusHandler.ListJobs)
	}

	// Finalized units
	if cfg.UnitHandler != nil {
		r.GET("/units", cfg.UnitHandler.ListUnits)
		r.GET("/units/by-mul-id/:mul_id", cfg.UnitHandler.GetUnitByMulID)
		r.GET("/units/:id", cfg.UnitHandler.GetUnit)
		r.GET("/units/:id/bv", cfg.UnitHandler.GetAdjustedBV)
	}

	// Weapon catalog
	if cfg.WeaponHandler != nil {
		r.GET("/weapons", cfg.WeaponHandler.ListWeapons)
		r.GET("/weapons/:id", cfg.WeaponHandler.GetWeapon)
		r.GET("/weapons/:id/units", cfg.WeaponHandler.ListMountingUnits)
	}

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	return r
}
