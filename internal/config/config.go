// Package config loads the judge worker's configuration from the
// environment (with optional .env support), the way the teacher
// platform's cmd/main.go loads its own environment before constructing
// services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable named in spec.md §6's CLI surface plus the
// sandbox/queue knobs SPEC_FULL.md adds.
type Config struct {
	Username     string
	Password     string
	LoginURL     string
	WebsocketURL string

	ParallelJudgeTasks int
	LogLimitBytes      int
	LogLevel           string

	SandboxImage         string
	SandboxWorkspaceRoot string

	JobQueueDepth    int
	ResultQueueDepth int

	HeartbeatInterval time.Duration
	ReconnectBackoff  time.Duration

	SelfTestArchiveDir string

	OpsListenAddr string
}

// Load reads configuration from the process environment. It tries to
// load a .env file first, then a ../.env file, matching the teacher's
// two-step godotenv.Load fallback — this worker is frequently run from
// a cmd/ subdirectory during development.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		_ = godotenv.Load("../.env")
	}

	cfg := &Config{
		Username:             os.Getenv("CARP_USERNAME"),
		Password:             os.Getenv("CARP_PASSWORD"),
		LoginURL:             os.Getenv("CARP_LOGIN_URL"),
		WebsocketURL:         os.Getenv("CARP_WEBSOCKET_URL"),
		ParallelJudgeTasks:   envInt("CARP_PARALLEL_JUDGE_TASKS", 4),
		LogLimitBytes:        envInt("CARP_LOG_LIMIT_BYTES", 64*1024),
		LogLevel:             envOr("CARP_LOG_LEVEL", "info"),
		SandboxImage:         envOr("CARP_SANDBOX_IMAGE", "carp_judge"),
		SandboxWorkspaceRoot: envOr("CARP_WORKSPACE_ROOT", "/tmp/carp_judge"),
		JobQueueDepth:        envInt("CARP_JOB_QUEUE_DEPTH", 32),
		ResultQueueDepth:     envInt("CARP_RESULT_QUEUE_DEPTH", 32),
		HeartbeatInterval:    envDuration("CARP_HEARTBEAT_INTERVAL", 60*time.Second),
		ReconnectBackoff:     envDuration("CARP_RECONNECT_BACKOFF", 5*time.Second),
		SelfTestArchiveDir:   os.Getenv("CARP_SELFTEST_ARCHIVE_DIR"),
		OpsListenAddr:        envOr("CARP_OPS_LISTEN_ADDR", "127.0.0.1:9090"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate fails fast when a field that has no sane default is absent,
// the same "refuse to start" discipline the teacher applies to its
// secrets in config.MustValidateSecrets.
func (c *Config) validate() error {
	var missing []string
	if strings.TrimSpace(c.Username) == "" {
		missing = append(missing, "CARP_USERNAME")
	}
	if strings.TrimSpace(c.Password) == "" {
		missing = append(missing, "CARP_PASSWORD")
	}
	if strings.TrimSpace(c.LoginURL) == "" {
		missing = append(missing, "CARP_LOGIN_URL")
	}
	if strings.TrimSpace(c.WebsocketURL) == "" {
		missing = append(missing, "CARP_WEBSOCKET_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.ParallelJudgeTasks <= 0 {
		return fmt.Errorf("config: CARP_PARALLEL_JUDGE_TASKS must be positive")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
