package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/seantiz/reaper/internal/backend/ctr"
)

const (
	defaultListenAddr   = ":8080"
	defaultDBPath       = "reaper.db"
	defaultOpTimeout    = 2 * time.Second
	defaultContainerBin = "container"
	defaultDockerBin    = "docker"
	defaultPodmanBin    = "podman"

	envListenAddr          = "REAPER_LISTEN_ADDR"
	envDBPath              = "REAPER_DB_PATH"
	envLogLevel            = "REAPER_LOG_LEVEL"
	envOpTimeout           = "REAPER_OP_TIMEOUT"
	envContainerBin        = "REAPER_CONTAINER_BIN"
	envDockerBin           = "REAPER_DOCKER_BIN"
	envPodmanBin           = "REAPER_PODMAN_BIN"
	envFirecrackerCtrBin   = "REAPER_FIRECRACKER_CTR_BIN"
	envContainerdSock      = "REAPER_FIRECRACKER_CONTAINERD_SOCK"
	envContainerdNamespace = "REAPER_CONTAINERD_NAMESPACE"
)

// Config holds application configuration loaded from environment variables.
// Binary settings are command lines and may carry leading arguments, e.g.
// "sudo -n docker".
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	// OpTimeout bounds every backend command.
	OpTimeout time.Duration

	ContainerBin string
	DockerBin    string
	PodmanBin    string

	FirecrackerCtrBin   string
	ContainerdSock      string
	ContainerdNamespace string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:          defaultListenAddr,
		DBPath:              defaultDBPath,
		LogLevel:            slog.LevelInfo,
		OpTimeout:           defaultOpTimeout,
		ContainerBin:        defaultContainerBin,
		DockerBin:           defaultDockerBin,
		PodmanBin:           defaultPodmanBin,
		FirecrackerCtrBin:   ctr.DefaultBin,
		ContainerdSock:      ctr.DefaultAddress,
		ContainerdNamespace: ctr.DefaultNamespace,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envOpTimeout); v != "" {
		cfg.OpTimeout = parseDuration(v, defaultOpTimeout)
	}
	setString(&cfg.ContainerBin, envContainerBin)
	setString(&cfg.DockerBin, envDockerBin)
	setString(&cfg.PodmanBin, envPodmanBin)
	setString(&cfg.FirecrackerCtrBin, envFirecrackerCtrBin)
	setString(&cfg.ContainerdSock, envContainerdSock)
	setString(&cfg.ContainerdNamespace, envContainerdNamespace)

	return cfg
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseDuration accepts a Go duration string; anything unparsable or
// non-positive yields def.
func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
