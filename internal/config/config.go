// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults mirror the limits the renderer has always run with.
const (
	DefaultJobsDir         = "/tmp/manim_jobs"
	DefaultRenderTimeout   = 300 * time.Second
	DefaultMaxArtifactSize = 50 * 1024 * 1024
	DefaultRetention       = 1800 * time.Second
)

// Config is the runtime configuration of the render service.
type Config struct {
	// HTTPPort is the listen port for the API server.
	HTTPPort string
	// JobsDir is the root under which each job gets its working directory.
	JobsDir string
	// RenderTimeout bounds the wall-clock time of one render invocation.
	RenderTimeout time.Duration
	// MaxArtifactSize is the threshold above which artifacts are compressed.
	MaxArtifactSize int64
	// Retention is how long a job's record and artifacts are kept after
	// submission before the sweeper reclaims them.
	Retention time.Duration
	// ManimBin and FFmpegBin locate the external collaborators.
	ManimBin  string
	FFmpegBin string
	// WorkerBaseURL, when set, receives status and progress updates.
	WorkerBaseURL string
}

// Load reads configuration from a .env file (when present) and the
// environment. A missing .env file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPPort:      Env("HTTP_PORT", Env("PORT", "8080")),
		JobsDir:       Env("JOBS_DIR", DefaultJobsDir),
		ManimBin:      Env("MANIM_BIN", "manim"),
		FFmpegBin:     Env("FFMPEG_BIN", "ffmpeg"),
		WorkerBaseURL: strings.TrimRight(Env("WORKER_BASE_URL", ""), "/"),
	}

	var err error
	if cfg.RenderTimeout, err = durationEnv("MAX_RENDER_SECONDS", DefaultRenderTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Retention, err = durationEnv("RETENTION_SECONDS", DefaultRetention); err != nil {
		return Config{}, err
	}
	if cfg.MaxArtifactSize, err = int64Env("MAX_ARTIFACT_SIZE_BYTES", DefaultMaxArtifactSize); err != nil {
		return Config{}, err
	}

	if err := os.MkdirAll(cfg.JobsDir, 0o755); err != nil {
		return Config{}, fmt.Errorf("create jobs dir %s: %w", cfg.JobsDir, err)
	}
	return cfg, nil
}

// Env returns the trimmed environment value or def when unset.
func Env(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func durationEnv(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return time.Duration(secs) * time.Second, nil
}

func int64Env(k string, def int64) (int64, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return n, nil
}
