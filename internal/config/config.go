package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
)

// Config is the full runtime configuration. Keys mirror the yaml file layout
// (db.driver, worker.max_attempts, ...).
type Config struct {
	Env       string          `mapstructure:"env"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Valuation ValuationConfig `mapstructure:"valuation"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Otel      OtelConfig      `mapstructure:"otel"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type LogConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

type DBConfig struct {
	Driver        string        `mapstructure:"driver"`
	DSN           string        `mapstructure:"dsn"`
	MaxOpenConns  int           `mapstructure:"max_open_conns"`
	MaxIdleConns  int           `mapstructure:"max_idle_conns"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
}

// RedisConfig enables the cross-process finalize lock when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type PipelineConfig struct {
	Parallelism   int    `mapstructure:"parallelism"`
	ValuationMode string `mapstructure:"valuation_mode"`
	Strict        bool   `mapstructure:"strict"`
	AutoFinalize  bool   `mapstructure:"auto_finalize"`
}

type WorkerConfig struct {
	ID            string        `mapstructure:"id"`
	Concurrency   int           `mapstructure:"concurrency"`
	BatchSize     int           `mapstructure:"batch_size"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	IdleDelay     time.Duration `mapstructure:"idle_delay"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
}

// JobBudget bounds one claimed job, lookup and settle included.
func (w WorkerConfig) JobBudget() time.Duration {
	if w.LookupTimeout > 0 {
		return 2 * w.LookupTimeout
	}
	return time.Minute
}

// ClaimHold is the longest a job can stay claimed by a healthy worker: a
// batch is claimed at once and its jobs may run one after another.
func (w WorkerConfig) ClaimHold() time.Duration {
	n := w.BatchSize
	if n < 1 {
		n = 1
	}
	return time.Duration(n) * w.JobBudget()
}

type ValuationConfig struct {
	Backend  string         `mapstructure:"backend"`
	URL      string         `mapstructure:"url"`
	Command  []string       `mapstructure:"command"`
	CacheTTL time.Duration  `mapstructure:"cache_ttl"`
	TypeMap  map[string]int `mapstructure:"type_map"`
}

type HTTPConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type OtelConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	ServiceName string  `mapstructure:"service_name"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

const (
	ModeEnqueue = "enqueue"
	ModeInline  = "inline"
	ModeSkip    = "skip"
)

// Load reads defaults, the optional config file and the environment into a
// Config. configFile may be empty, in which case mechdata.yaml is looked up
// in the working directory and /etc/mechdata.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return nil, pipelineerr.New(pipelineerr.CodeConfig, "config.load", err.Error(), err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("mechdata")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/mechdata")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, pipelineerr.New(pipelineerr.CodeConfig, "config.load", "read config file", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, pipelineerr.New(pipelineerr.CodeConfig, "config.load", "decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	var problems []string
	switch strings.ToLower(c.DB.Driver) {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("db.driver must be sqlite or postgres, got %q", c.DB.Driver))
	}
	if strings.TrimSpace(c.DB.DSN) == "" {
		problems = append(problems, "db.dsn is required")
	}
	switch c.Pipeline.ValuationMode {
	case ModeEnqueue, ModeInline, ModeSkip:
	default:
		problems = append(problems, fmt.Sprintf("pipeline.valuation_mode must be enqueue, inline or skip, got %q", c.Pipeline.ValuationMode))
	}
	if c.Pipeline.Parallelism < 1 {
		problems = append(problems, "pipeline.parallelism must be >= 1")
	}
	if c.Worker.MaxAttempts < 1 {
		problems = append(problems, "worker.max_attempts must be >= 1")
	}
	if c.Worker.BatchSize < 1 {
		problems = append(problems, "worker.batch_size must be >= 1")
	}
	if c.Worker.Concurrency < 1 {
		problems = append(problems, "worker.concurrency must be >= 1")
	}
	if c.Worker.LookupTimeout <= 0 {
		problems = append(problems, "worker.lookup_timeout must be positive")
	}
	if c.Worker.LookupTimeout > 0 && c.Worker.BatchSize >= 1 && c.Worker.StaleAfter <= c.Worker.ClaimHold() {
		problems = append(problems, fmt.Sprintf(
			"worker.stale_after (%s) must exceed batch_size x 2 x lookup_timeout (%s) so held claims are not recovered",
			c.Worker.StaleAfter, c.Worker.ClaimHold()))
	}
	switch c.Valuation.Backend {
	case "none":
	case "http":
		if strings.TrimSpace(c.Valuation.URL) == "" {
			problems = append(problems, "valuation.url is required for the http backend")
		}
	case "command":
		if len(c.Valuation.Command) == 0 {
			problems = append(problems, "valuation.command is required for the command backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("valuation.backend must be http, command or none, got %q", c.Valuation.Backend))
	}
	if len(problems) > 0 {
		return pipelineerr.New(pipelineerr.CodeConfig, "config.validate", strings.Join(problems, "; "), nil)
	}
	return nil
}

// TypeFilter returns the lookup type id configured for a unit class.
func (c ValuationConfig) TypeFilter(class string) *int {
	if v, ok := c.TypeMap[strings.ToLower(class)]; ok {
		return &v
	}
	return nil
}
