package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
)

func TestLoadDefaults(t *testing.T) {

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, ModeEnqueue, cfg.Pipeline.ValuationMode)
	assert.Equal(t, 5, cfg.Worker.MaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Worker.StaleAfter)
	require.NotNil(t, cfg.Valuation.TypeFilter("Vehicle"))
	assert.Equal(t, 19, *cfg.Valuation.TypeFilter("vehicle"))
	assert.Nil(t, cfg.Valuation.TypeFilter("mech"))
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mechdata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db:
  driver: postgres
  dsn: postgres://mech:pw@localhost/mechdata
worker:
  max_attempts: 3
  retry_delay: 10s
valuation:
  backend: http
  url: http://bv.local/lookup
  type_map:
    vehicle: 19
    aerospace: 21
`), 0o600))
	t.Setenv("MECHDATA_WORKER_MAX_ATTEMPTS", "7")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, 7, cfg.Worker.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Worker.RetryDelay)
	assert.Equal(t, 21, *cfg.Valuation.TypeFilter("aerospace"))
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("MECHDATA_VALUATION_BACKEND", "http")

	_, err := Load(viper.New(), "")
	require.Error(t, err)
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeConfig))
	assert.Contains(t, err.Error(), "valuation.url")
}

func TestBindEnvValidates(t *testing.T) {
	t.Setenv("MECHDATA_WORKER_RETRY_DELAY", "soon")
	err := BindEnv(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MECHDATA_WORKER_RETRY_DELAY")
}

func TestValidateStaleAfterCoversHeldBatch(t *testing.T) {
	cfg, err := Load(viper.New(), writeConfig(t, `
worker:
  batch_size: 10
  lookup_timeout: 60s
  stale_after: 90s
`))
	require.Error(t, err)
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeConfig))
	assert.Contains(t, err.Error(), "worker.stale_after")
	assert.Nil(t, cfg)

	cfg, err = Load(viper.New(), writeConfig(t, `
worker:
  batch_size: 10
  lookup_timeout: 60s
  stale_after: 21m
`))
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, cfg.Worker.ClaimHold())
	assert.Equal(t, 2*time.Minute, cfg.Worker.JobBudget())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mechdata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
