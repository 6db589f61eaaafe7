package infra

import (
	"testing"
	"time"
)

func clearQueueEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "PORT", "STORAGE_PATH", "INFERENCE_BASE_URL",
		"MAX_CONCURRENT_JOBS", "MAX_QUEUE_DEPTH",
		"RETENTION_WINDOW_SECONDS", "SWEEP_INTERVAL_SECONDS",
		"WATCHDOG_INTERVAL_SECONDS", "SYNC_WAIT_TIMEOUT_SECONDS",
		"HTTP_WRITE_TIMEOUT_SECONDS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearQueueEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" || cfg.AppEnv != "development" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.MaxQueueDepth != 10 || cfg.MaxConcurrentJobs != 1 {
		t.Fatalf("queue config = %d/%d, want 10/1", cfg.MaxQueueDepth, cfg.MaxConcurrentJobs)
	}
	if cfg.RetentionWindow != time.Hour {
		t.Fatalf("RetentionWindow = %v, want 1h", cfg.RetentionWindow)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Fatalf("SweepInterval = %v, want 5m", cfg.SweepInterval)
	}
	if cfg.WatchdogInterval != 30*time.Second {
		t.Fatalf("WatchdogInterval = %v, want 30s", cfg.WatchdogInterval)
	}
	if cfg.SyncWaitTimeout != 5*time.Minute {
		t.Fatalf("SyncWaitTimeout = %v, want 5m", cfg.SyncWaitTimeout)
	}
}

func TestLoadConfigHonorsOverrides(t *testing.T) {
	clearQueueEnv(t)
	t.Setenv("MAX_QUEUE_DEPTH", "3")
	t.Setenv("RETENTION_WINDOW_SECONDS", "120")
	t.Setenv("INFERENCE_BASE_URL", "http://gpu-box:8000")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MaxQueueDepth != 3 {
		t.Fatalf("MaxQueueDepth = %d, want 3", cfg.MaxQueueDepth)
	}
	if cfg.RetentionWindow != 2*time.Minute {
		t.Fatalf("RetentionWindow = %v, want 2m", cfg.RetentionWindow)
	}
	if cfg.InferenceBaseURL != "http://gpu-box:8000" {
		t.Fatalf("InferenceBaseURL = %q", cfg.InferenceBaseURL)
	}
}

func TestLoadConfigRejectsMultiSlot(t *testing.T) {
	clearQueueEnv(t)
	t.Setenv("MAX_CONCURRENT_JOBS", "2")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig accepted MAX_CONCURRENT_JOBS=2")
	}
}

func TestLoadConfigRejectsWriteTimeoutBelowWait(t *testing.T) {
	clearQueueEnv(t)
	t.Setenv("SYNC_WAIT_TIMEOUT_SECONDS", "300")
	t.Setenv("HTTP_WRITE_TIMEOUT_SECONDS", "300")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig accepted a write timeout that cuts off synchronous waits")
	}
}

func TestLoadConfigRejectsZeroQueueDepth(t *testing.T) {
	clearQueueEnv(t)
	t.Setenv("MAX_QUEUE_DEPTH", "0")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig accepted MAX_QUEUE_DEPTH=0")
	}
}
