package config

import (
	"time"

	"github.com/spf13/viper"
)

func SetDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("log.mode", "dev")
	v.SetDefault("log.level", "info")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "file:mechdata.db?_busy_timeout=5000&_foreign_keys=on")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.slow_threshold", time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 30*time.Second)

	v.SetDefault("pipeline.parallelism", 4)
	v.SetDefault("pipeline.valuation_mode", ModeEnqueue)
	v.SetDefault("pipeline.strict", false)
	v.SetDefault("pipeline.auto_finalize", true)

	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.max_attempts", 5)
	v.SetDefault("worker.retry_delay", 30*time.Second)
	v.SetDefault("worker.idle_delay", 5*time.Second)
	v.SetDefault("worker.stale_after", 30*time.Minute)
	v.SetDefault("worker.lookup_timeout", 60*time.Second)

	v.SetDefault("valuation.backend", "none")
	v.SetDefault("valuation.cache_ttl", 6*time.Hour)
	v.SetDefault("valuation.type_map", map[string]int{"vehicle": 19})

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"*"})

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.exporter", "otlp")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("otel.service_name", "mechdata")

	v.SetDefault("metrics.enabled", true)
}
