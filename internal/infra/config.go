package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	StoragePath      string
	InferenceBaseURL string

	MaxConcurrentJobs int
	MaxQueueDepth     int
	RetentionWindow   time.Duration
	SweepInterval     time.Duration
	WatchdogInterval  time.Duration
	SyncWaitTimeout   time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		InferenceBaseURL: os.Getenv("INFERENCE_BASE_URL"),

		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 1),
		MaxQueueDepth:     getEnvInt("MAX_QUEUE_DEPTH", 10),
		RetentionWindow:   time.Second * time.Duration(getEnvInt("RETENTION_WINDOW_SECONDS", 3600)),
		SweepInterval:     time.Second * time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 300)),
		WatchdogInterval:  time.Second * time.Duration(getEnvInt("WATCHDOG_INTERVAL_SECONDS", 30)),
		SyncWaitTimeout:   time.Second * time.Duration(getEnvInt("SYNC_WAIT_TIMEOUT_SECONDS", 300)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 330)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		CORSOrigins:      splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}

	if cfg.MaxQueueDepth < 1 {
		return nil, fmt.Errorf("MAX_QUEUE_DEPTH must be at least 1")
	}
	// The accelerator is a single slot; multi-slot execution is an
	// extension point, not a supported configuration.
	if cfg.MaxConcurrentJobs != 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_JOBS: only 1 is supported, got %d", cfg.MaxConcurrentJobs)
	}
	if cfg.HTTPWriteTimeout <= cfg.SyncWaitTimeout {
		return nil, fmt.Errorf("HTTP_WRITE_TIMEOUT_SECONDS must exceed SYNC_WAIT_TIMEOUT_SECONDS")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
