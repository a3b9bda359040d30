package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/kiranshivaraju/renderhub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setEnv is a helper that sets environment variables for a test and restores them after.
func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
}

// validEnv returns the minimum set of valid environment variables.
func validEnv() map[string]string {
	return map[string]string{
		"REDIS_URL": "redis://localhost:6379",
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	setEnv(t, validEnv())

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, slog.LevelInfo, cfg.Server.LogLevel)
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
}

func TestLoad_BalancerDefaults(t *testing.T) {
	setEnv(t, validEnv())

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Balancer.MaxWorkers)
	assert.Equal(t, 3, cfg.Balancer.MaxJobsPerWorker)
	assert.Equal(t, 30*time.Second, cfg.Balancer.HealthCheckInterval)
	assert.Equal(t, 60*time.Second, cfg.Balancer.WorkerTimeout)
}

func TestLoad_MonitorDefaults(t *testing.T) {
	setEnv(t, validEnv())

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.Monitor.CollectInterval)
	assert.Equal(t, 1440, cfg.Monitor.HistoryLimit)
	assert.Equal(t, "/", cfg.Monitor.DiskPath)
}

func TestLoad_BalancerFromEnv(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("MAX_WORKERS", "12")
	t.Setenv("MAX_JOBS_PER_WORKER", "4")
	t.Setenv("HEALTH_CHECK_INTERVAL", "1500")
	t.Setenv("WORKER_TIMEOUT", "90000")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Balancer.MaxWorkers)
	assert.Equal(t, 4, cfg.Balancer.MaxJobsPerWorker)
	assert.Equal(t, 1500*time.Millisecond, cfg.Balancer.HealthCheckInterval)
	assert.Equal(t, 90*time.Second, cfg.Balancer.WorkerTimeout)
}

func TestLoad_UnparseableIntFallsBackToDefault(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("MAX_WORKERS", "lots")
	t.Setenv("WORKER_TIMEOUT", "1m")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Balancer.MaxWorkers)
	assert.Equal(t, 60*time.Second, cfg.Balancer.WorkerTimeout)
}

func TestLoad_CustomPort(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("RENDERHUB_PORT", "9090")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_LogLevel(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, cfg.Server.LogLevel)
}

func TestLoad_MissingRedisURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestLoad_InvalidRedisScheme(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("REDIS_URL", "http://localhost:6379")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestLoad_RedisTLSScheme(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("REDIS_URL", "rediss://cache.example.com:6380")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "rediss://cache.example.com:6380", cfg.Redis.URL)
}

func TestLoad_RejectsNonPositiveValues(t *testing.T) {
	cases := map[string]string{
		"MAX_WORKERS":           "0",
		"MAX_JOBS_PER_WORKER":   "-1",
		"HEALTH_CHECK_INTERVAL": "0",
		"WORKER_TIMEOUT":        "-5",
		"METRICS_INTERVAL":      "0",
		"METRICS_HISTORY_LIMIT": "0",
	}

	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			setEnv(t, validEnv())
			t.Setenv(key, val)

			_, err := config.Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}
