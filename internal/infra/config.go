package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Job store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	Port              string
	JobStore          string
	DatabaseURL       string
	RedisURL          string
	JobRetention      time.Duration
	PollInterval      time.Duration
	PollCron          string
	HandlerTimeout    time.Duration
	JobsSeedFile      string
	ReportDir         string
	SMTPServer        string
	SMTPPort          int
	UseTLS            bool
	SenderEmail       string
	SenderPassword    string
	SenderName        string
	EmailEnabled      bool
	TestMode          bool
	BundleAttachments bool
	NATSURL           string
	NATSSubjectPrefix string
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	RateLimitPerMin   int
	ControlAPIToken   string
	CORSOrigins       []string
}

// LoadDotEnv loads .env files when present. Variables already set win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env", ".env.local"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// When CONFIG_FILE names a YAML file, its keys fill in variables the environment leaves unset.
func LoadConfig() (*Config, error) {
	src := envSource{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		overlay, err := readOverlay(path)
		if err != nil {
			return nil, err
		}
		src.overlay = overlay
	}

	cfg := &Config{
		AppEnv:            src.getEnv("APP_ENV", "development"),
		Port:              src.getEnv("PORT", "8080"),
		JobStore:          strings.ToLower(src.getEnv("JOB_STORE", StoreMemory)),
		DatabaseURL:       src.getEnv("DATABASE_URL", ""),
		RedisURL:          src.getEnv("REDIS_URL", ""),
		JobRetention:      time.Hour * time.Duration(src.getEnvInt("JOB_RETENTION_HOURS", 0)),
		PollInterval:      time.Second * time.Duration(src.getEnvInt("POLL_INTERVAL_SECONDS", 60)),
		PollCron:          src.getEnv("POLL_CRON", ""),
		HandlerTimeout:    time.Second * time.Duration(src.getEnvInt("JOB_HANDLER_TIMEOUT_SECONDS", 0)),
		JobsSeedFile:      src.getEnv("JOBS_SEED_FILE", ""),
		ReportDir:         src.getEnv("REPORT_DIR", "./reports"),
		SMTPServer:        src.getEnv("SMTP_SERVER", ""),
		SMTPPort:          src.getEnvInt("SMTP_PORT", 587),
		UseTLS:            src.getEnvBool("USE_TLS", false),
		SenderEmail:       src.getEnv("SENDER_EMAIL", ""),
		SenderPassword:    src.getEnv("SENDER_PASSWORD", ""),
		SenderName:        src.getEnv("SENDER_NAME", "Report Scheduler"),
		EmailEnabled:      src.getEnvBool("EMAIL_ENABLED", true),
		TestMode:          src.getEnvBool("TEST_MODE", false),
		BundleAttachments: src.getEnvBool("SMTP_BUNDLE_ATTACHMENTS", false),
		NATSURL:           src.getEnv("NATS_URL", ""),
		NATSSubjectPrefix: src.getEnv("NATS_SUBJECT_PREFIX", "jobs"),
		HTTPReadTimeout:   time.Second * time.Duration(src.getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(src.getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:   time.Second * time.Duration(src.getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:   src.getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		ControlAPIToken:   src.getEnv("CONTROL_API_TOKEN", ""),
		CORSOrigins:       splitList(src.getEnv("CORS_ALLOWED_ORIGINS", "")),
	}

	switch cfg.JobStore {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when JOB_STORE=%s", StorePostgres)
		}
	case StoreRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when JOB_STORE=%s", StoreRedis)
		}
	default:
		return nil, fmt.Errorf("JOB_STORE %q is not one of memory, postgres, redis", cfg.JobStore)
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_SECONDS must be positive")
	}

	return cfg, nil
}

func readOverlay(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	overlay := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		overlay[strings.ToUpper(strings.TrimSpace(k))] = fmt.Sprint(v)
	}
	return overlay, nil
}

type envSource struct {
	overlay map[string]string
}

func (s envSource) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, true
	}
	if v, ok := s.overlay[key]; ok && v != "" {
		return v, true
	}
	return "", false
}

func (s envSource) getEnv(key, fallback string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return fallback
}

func (s envSource) getEnvInt(key string, fallback int) int {
	if v, ok := s.lookup(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func (s envSource) getEnvBool(key string, fallback bool) bool {
	if v, ok := s.lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
