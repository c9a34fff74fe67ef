package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearSchedulerEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "APP_ENV", "PORT", "JOB_STORE", "DATABASE_URL", "REDIS_URL",
		"POLL_INTERVAL_SECONDS", "POLL_CRON", "JOB_HANDLER_TIMEOUT_SECONDS", "EMAIL_ENABLED",
		"TEST_MODE", "SMTP_PORT", "USE_TLS", "NATS_SUBJECT_PREFIX", "JOB_RETENTION_HOURS",
		"CORS_ALLOWED_ORIGINS", "CONTROL_API_TOKEN",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearSchedulerEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JobStore != StoreMemory {
		t.Fatalf("JobStore = %q, want memory", cfg.JobStore)
	}
	if cfg.PollInterval != time.Minute {
		t.Fatalf("PollInterval = %s, want 1m", cfg.PollInterval)
	}
	if cfg.HandlerTimeout != 0 {
		t.Fatalf("HandlerTimeout = %s, want 0", cfg.HandlerTimeout)
	}
	if !cfg.EmailEnabled || cfg.TestMode {
		t.Fatalf("EmailEnabled=%v TestMode=%v", cfg.EmailEnabled, cfg.TestMode)
	}
	if cfg.SMTPPort != 587 || cfg.NATSSubjectPrefix != "jobs" {
		t.Fatalf("SMTPPort=%d NATSSubjectPrefix=%q", cfg.SMTPPort, cfg.NATSSubjectPrefix)
	}
}

func TestLoadConfigParsesValues(t *testing.T) {
	clearSchedulerEnv(t)
	t.Setenv("JOB_STORE", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("POLL_INTERVAL_SECONDS", "15")
	t.Setenv("JOB_HANDLER_TIMEOUT_SECONDS", "90")
	t.Setenv("JOB_RETENTION_HOURS", "48")
	t.Setenv("TEST_MODE", "True")
	t.Setenv("USE_TLS", "not-a-bool")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://ops.example.com, ,https://admin.example.com")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JobStore != StorePostgres {
		t.Fatalf("JobStore = %q", cfg.JobStore)
	}
	if cfg.PollInterval != 15*time.Second || cfg.HandlerTimeout != 90*time.Second {
		t.Fatalf("PollInterval=%s HandlerTimeout=%s", cfg.PollInterval, cfg.HandlerTimeout)
	}
	if cfg.JobRetention != 48*time.Hour {
		t.Fatalf("JobRetention = %s", cfg.JobRetention)
	}
	if !cfg.TestMode || cfg.UseTLS {
		t.Fatalf("TestMode=%v UseTLS=%v", cfg.TestMode, cfg.UseTLS)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://admin.example.com" {
		t.Fatalf("CORSOrigins = %#v", cfg.CORSOrigins)
	}
}

func TestLoadConfigValidatesStore(t *testing.T) {
	tests := []struct {
		name  string
		store string
	}{
		{name: "postgres without url", store: "postgres"},
		{name: "redis without url", store: "redis"},
		{name: "unknown backend", store: "sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearSchedulerEnv(t)
			t.Setenv("JOB_STORE", tt.store)
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("expected error for JOB_STORE=%s", tt.store)
			}
		})
	}
}

func TestLoadConfigRejectsNonPositiveInterval(t *testing.T) {
	clearSchedulerEnv(t)
	t.Setenv("POLL_INTERVAL_SECONDS", "0")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for zero poll interval")
	}
}

func TestLoadConfigYAMLOverlay(t *testing.T) {
	clearSchedulerEnv(t)
	path := filepath.Join(t.TempDir(), "scheduler.yaml")
	overlay := "JOB_STORE: redis\nREDIS_URL: redis://localhost:6379/0\nPORT: 9090\npoll_cron: \"*/5 * * * *\"\n"
	if err := os.WriteFile(path, []byte(overlay), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JobStore != StoreRedis || cfg.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("JobStore=%q RedisURL=%q", cfg.JobStore, cfg.RedisURL)
	}
	if cfg.Port != "7070" {
		t.Fatalf("environment should win over overlay, Port = %q", cfg.Port)
	}
	if cfg.PollCron != "*/5 * * * *" {
		t.Fatalf("PollCron = %q", cfg.PollCron)
	}
}

func TestLoadConfigMissingOverlay(t *testing.T) {
	clearSchedulerEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
