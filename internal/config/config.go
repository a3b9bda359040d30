package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the renderhub server.
type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Balancer BalancerConfig
	Monitor  MonitorConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	LogLevel           slog.Level
	RateLimitPerMinute int
}

type RedisConfig struct {
	URL string
}

// BalancerConfig sizes the worker registry and its health check.
type BalancerConfig struct {
	MaxWorkers          int
	MaxJobsPerWorker    int
	HealthCheckInterval time.Duration
	WorkerTimeout       time.Duration
}

// MonitorConfig drives the performance monitor tick.
type MonitorConfig struct {
	CollectInterval time.Duration
	HistoryLimit    int
	DiskPath        string
}

// DefaultBalancerConfig returns the balancer defaults used when the
// environment is silent.
func DefaultBalancerConfig() BalancerConfig {
	return BalancerConfig{
		MaxWorkers:          5,
		MaxJobsPerWorker:    3,
		HealthCheckInterval: 30 * time.Second,
		WorkerTimeout:       60 * time.Second,
	}
}

// DefaultMonitorConfig returns the monitor defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		CollectInterval: 60 * time.Second,
		HistoryLimit:    1440,
		DiskPath:        "/",
	}
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	bal := DefaultBalancerConfig()
	mon := DefaultMonitorConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("RENDERHUB_PORT", 8080),
			Env:                envString("RENDERHUB_ENV", "development"),
			LogLevel:           envLevel("LOG_LEVEL", slog.LevelInfo),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 600),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Balancer: BalancerConfig{
			MaxWorkers:          envInt("MAX_WORKERS", bal.MaxWorkers),
			MaxJobsPerWorker:    envInt("MAX_JOBS_PER_WORKER", bal.MaxJobsPerWorker),
			HealthCheckInterval: envMillis("HEALTH_CHECK_INTERVAL", bal.HealthCheckInterval),
			WorkerTimeout:       envMillis("WORKER_TIMEOUT", bal.WorkerTimeout),
		},
		Monitor: MonitorConfig{
			CollectInterval: envMillis("METRICS_INTERVAL", mon.CollectInterval),
			HistoryLimit:    envInt("METRICS_HISTORY_LIMIT", mon.HistoryLimit),
			DiskPath:        envString("METRICS_DISK_PATH", mon.DiskPath),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("RENDERHUB_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Balancer.MaxWorkers <= 0 {
		return fmt.Errorf("MAX_WORKERS must be positive, got %d", c.Balancer.MaxWorkers)
	}
	if c.Balancer.MaxJobsPerWorker <= 0 {
		return fmt.Errorf("MAX_JOBS_PER_WORKER must be positive, got %d", c.Balancer.MaxJobsPerWorker)
	}
	if c.Balancer.HealthCheckInterval <= 0 {
		return fmt.Errorf("HEALTH_CHECK_INTERVAL must be positive")
	}
	if c.Balancer.WorkerTimeout <= 0 {
		return fmt.Errorf("WORKER_TIMEOUT must be positive")
	}

	if c.Monitor.CollectInterval <= 0 {
		return fmt.Errorf("METRICS_INTERVAL must be positive")
	}
	if c.Monitor.HistoryLimit <= 0 {
		return fmt.Errorf("METRICS_HISTORY_LIMIT must be positive, got %d", c.Monitor.HistoryLimit)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// envMillis reads an integer number of milliseconds.
func envMillis(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(ms) * time.Millisecond
}

func envLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return l
}
