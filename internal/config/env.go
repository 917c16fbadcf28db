package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func envBindings() []envBinding {
	return []envBinding{
		{"env", "MECHDATA_ENV", nil},
		{"log.mode", "MECHDATA_LOG_MODE", nil},
		{"log.level", "MECHDATA_LOG_LEVEL", nil},

		{"db.driver", "MECHDATA_DB_DRIVER", validateOneOf("sqlite", "postgres")},
		{"db.dsn", "MECHDATA_DB_DSN", nil},
		{"db.max_open_conns", "MECHDATA_DB_MAX_OPEN_CONNS", validateInt},

		{"redis.addr", "MECHDATA_REDIS_ADDR", nil},
		{"redis.password", "MECHDATA_REDIS_PASSWORD", nil},

		{"pipeline.parallelism", "MECHDATA_PIPELINE_PARALLELISM", validateInt},
		{"pipeline.valuation_mode", "MECHDATA_VALUATION_MODE", validateOneOf(ModeEnqueue, ModeInline, ModeSkip)},
		{"pipeline.strict", "MECHDATA_STRICT", validateBool},

		{"worker.id", "MECHDATA_WORKER_ID", nil},
		{"worker.concurrency", "MECHDATA_WORKER_CONCURRENCY", validateInt},
		{"worker.batch_size", "MECHDATA_WORKER_BATCH_SIZE", validateInt},
		{"worker.max_attempts", "MECHDATA_WORKER_MAX_ATTEMPTS", validateInt},
		{"worker.retry_delay", "MECHDATA_WORKER_RETRY_DELAY", validateDuration},
		{"worker.idle_delay", "MECHDATA_WORKER_IDLE_DELAY", validateDuration},
		{"worker.stale_after", "MECHDATA_WORKER_STALE_AFTER", validateDuration},
		{"worker.lookup_timeout", "MECHDATA_WORKER_LOOKUP_TIMEOUT", validateDuration},

		{"valuation.backend", "MECHDATA_VALUATION_BACKEND", validateOneOf("http", "command", "none")},
		{"valuation.url", "MECHDATA_VALUATION_URL", nil},

		{"http.addr", "MECHDATA_HTTP_ADDR", nil},

		{"otel.enabled", "OTEL_ENABLED", validateBool},
		{"otel.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT", nil},
		{"otel.sample_ratio", "OTEL_SAMPLER_RATIO", validateFloat},
	}
}

// BindEnv binds every known environment variable and validates the ones
// that are set.
func BindEnv(v *viper.Viper) error {
	var problems []string
	for _, b := range envBindings() {
		if err := v.BindEnv(b.ConfigKey, b.EnvVar); err != nil {
			problems = append(problems, fmt.Sprintf("bind %s: %v", b.EnvVar, err))
			continue
		}
		if b.Validate == nil {
			continue
		}
		if val := os.Getenv(b.EnvVar); val != "" {
			if err := b.Validate(val); err != nil {
				problems = append(problems, fmt.Sprintf("invalid %s=%q: %v", b.EnvVar, val, err))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func validateBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true/false")
	}
	return nil
}

func validateInt(value string) error {
	if _, err := strconv.Atoi(value); err != nil {
		return fmt.Errorf("must be an integer")
	}
	return nil
}

func validateFloat(value string) error {
	if _, err := strconv.ParseFloat(value, 64); err != nil {
		return fmt.Errorf("must be a number")
	}
	return nil
}

func validateDuration(value string) error {
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("must be a duration like 30s or 5m")
	}
	return nil
}

func validateOneOf(allowed ...string) func(string) error {
	return func(value string) error {
		for _, a := range allowed {
			if strings.EqualFold(value, a) {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
	}
}
