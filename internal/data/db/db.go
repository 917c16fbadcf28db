package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/mechdata-backend/internal/config"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the configured backend. Connection failures are
// configuration errors and fatal at startup.
func Open(cfg config.DBConfig, logg *logger.Logger) (*gorm.DB, error) {
	serviceLog := logg.With("service", "Database", "driver", cfg.Driver)

	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = time.Second
	}
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             slow,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gcfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	}

	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, pipelineerr.New(pipelineerr.CodeConfig, "db.open", fmt.Sprintf("unsupported driver %q", cfg.Driver), nil)
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.CodeConfig, "db.open", "connect", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.CodeConfig, "db.open", "pool", err)
	}
	if IsSQLite(db) {
		// sqlite allows a single writer; one connection avoids SQLITE_BUSY
		// between the worker and the pipeline.
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, pipelineerr.New(pipelineerr.CodeConfig, "db.open", "ping", err)
	}

	serviceLog.Info("Database connected", "dsn", cfg.DSN)
	return db, nil
}

func IsPostgres(db *gorm.DB) bool {
	return db != nil && db.Dialector.Name() == DriverPostgres
}

func IsSQLite(db *gorm.DB) bool {
	return db != nil && db.Dialector.Name() == DriverSQLite
}

// Close releases the underlying pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
