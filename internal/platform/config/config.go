package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProgressBackendMemory   = "memory"
	ProgressBackendSQLite   = "sqlite"
	ProgressBackendPostgres = "postgres"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string

	VoteBackendURL     string
	VoteBackendTimeout time.Duration

	ProgressBackend string
	SQLitePath      string
	PostgresDSN     string

	BatchSize             int
	MaxInFlight           int
	RetryAttempts         int
	RetryBase             time.Duration
	RetryCap              time.Duration
	InterBatchDelay       time.Duration
	ClosureDedupWindow    time.Duration
	CleanupSweeps         int
	CleanupSweepInterval  time.Duration
	MetricsNamespace      string
	EnableClosureConsumer bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ServiceName: envString("SERVICE_NAME", "ballotcast"),

		VoteBackendURL:     strings.TrimSpace(os.Getenv("VOTE_BACKEND_URL")),
		VoteBackendTimeout: envMillis("VOTE_BACKEND_TIMEOUT_MS", 10*time.Second),

		ProgressBackend: strings.ToLower(envString("PROGRESS_BACKEND", ProgressBackendMemory)),
		SQLitePath:      envString("SQLITE_PATH", "ballotcast.db"),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),

		BatchSize:             envInt("BATCH_SIZE", 300),
		MaxInFlight:           envInt("MAX_IN_FLIGHT", 50),
		RetryAttempts:         envInt("RETRY_ATTEMPTS", 3),
		RetryBase:             envMillis("RETRY_BASE_MS", 100*time.Millisecond),
		RetryCap:              envMillis("RETRY_CAP_MS", 2*time.Second),
		InterBatchDelay:       envMillis("INTER_BATCH_DELAY_MS", 50*time.Millisecond),
		ClosureDedupWindow:    envMillis("CLOSURE_DEDUP_WINDOW_MS", 5*time.Second),
		CleanupSweeps:         envInt("CLEANUP_SWEEPS", 3),
		CleanupSweepInterval:  envMillis("CLEANUP_SWEEP_INTERVAL_MS", 250*time.Millisecond),
		MetricsNamespace:      envString("METRICS_NAMESPACE", "ballotcast"),
		EnableClosureConsumer: envBool("ENABLE_CLOSURE_CONSUMER", true),
	}

	switch cfg.ProgressBackend {
	case ProgressBackendMemory, ProgressBackendSQLite:
	case ProgressBackendPostgres:
		if cfg.PostgresDSN == "" {
			return Config{}, fmt.Errorf("POSTGRES_DSN is required when PROGRESS_BACKEND=%s", ProgressBackendPostgres)
		}
	default:
		return Config{}, fmt.Errorf("unsupported PROGRESS_BACKEND %q", cfg.ProgressBackend)
	}
	if cfg.BatchSize <= 0 {
		return Config{}, fmt.Errorf("BATCH_SIZE must be positive, got %d", cfg.BatchSize)
	}
	if cfg.MaxInFlight <= 0 {
		return Config{}, fmt.Errorf("MAX_IN_FLIGHT must be positive, got %d", cfg.MaxInFlight)
	}
	return cfg, nil
}

func envString(name string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envMillis(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return time.Duration(value) * time.Millisecond
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
