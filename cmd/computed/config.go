package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	compute "github.com/zhengren252/ntn-sub004"
)

// fileConfig is the on-disk configuration of computed.
type fileConfig struct {
	compute.Config `yaml:",inline"`

	Log       logConfig       `yaml:"log"`
	Profiling profilingConfig `yaml:"profiling"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type profilingConfig struct {
	ServerAddress   string            `yaml:"server_address"`
	ApplicationName string            `yaml:"application_name"`
	Tags            map[string]string `yaml:"tags"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Config: compute.DefaultConfig(),
		Log:    logConfig{Level: "info", Format: "text"},
		Profiling: profilingConfig{
			ApplicationName: "computed",
		},
	}
}

// loadConfig reads path (optional) over the defaults and then applies
// COMPUTE_* environment overrides.
func loadConfig(path string, getenv func(string) string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return cfg, fmt.Errorf("config file %s not found", path)
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

type envSetter func(cfg *fileConfig, v string) error

var envOverrides = map[string]envSetter{
	"COMPUTE_HOST":                   func(c *fileConfig, v string) error { c.Host = v; return nil },
	"COMPUTE_FRONTEND_PORT":          intVar(func(c *fileConfig) *int { return &c.FrontendPort }),
	"COMPUTE_BACKEND_PORT":           intVar(func(c *fileConfig) *int { return &c.BackendPort }),
	"COMPUTE_MAX_PENDING_REQUESTS":   intVar(func(c *fileConfig) *int { return &c.MaxPendingRequests }),
	"COMPUTE_WORKER_TIMEOUT":         durationVar(func(c *fileConfig) *time.Duration { return &c.WorkerTimeout }),
	"COMPUTE_MAX_RETRIES":            intVar(func(c *fileConfig) *int { return &c.MaxRetries }),
	"COMPUTE_WORKER_COUNT":           intVar(func(c *fileConfig) *int { return &c.WorkerCount }),
	"COMPUTE_HANDLER_TIMEOUT":        durationVar(func(c *fileConfig) *time.Duration { return &c.HandlerTimeout }),
	"COMPUTE_CODEC":                  func(c *fileConfig, v string) error { c.Codec = v; return nil },
	"COMPUTE_REDIS_ADDR":             func(c *fileConfig, v string) error { c.Cache.Addr = v; return nil },
	"COMPUTE_REDIS_PASSWORD":         func(c *fileConfig, v string) error { c.Cache.Password = v; return nil },
	"COMPUTE_REDIS_DB":               intVar(func(c *fileConfig) *int { return &c.Cache.DB }),
	"COMPUTE_DB_DRIVER":              func(c *fileConfig, v string) error { c.Persistence.Driver = v; return nil },
	"COMPUTE_DB_DSN":                 func(c *fileConfig, v string) error { c.Persistence.DSN = v; return nil },
	"COMPUTE_DB_DATABASE":            func(c *fileConfig, v string) error { c.Persistence.Database = v; return nil },
	"COMPUTE_RETENTION_DAYS":         intVar(func(c *fileConfig) *int { return &c.Maintenance.RetentionDays }),
	"COMPUTE_LOG_LEVEL":              func(c *fileConfig, v string) error { c.Log.Level = v; return nil },
	"COMPUTE_LOG_FORMAT":             func(c *fileConfig, v string) error { c.Log.Format = v; return nil },
	"COMPUTE_PYROSCOPE_SERVER":       func(c *fileConfig, v string) error { c.Profiling.ServerAddress = v; return nil },
	"COMPUTE_PYROSCOPE_APPLICATION":  func(c *fileConfig, v string) error { c.Profiling.ApplicationName = v; return nil },
	"COMPUTE_ADMISSION_RATE":         floatVar(func(c *fileConfig) *float64 { return &c.AdmissionRate }),
	"COMPUTE_ADMISSION_BURST":        intVar(func(c *fileConfig) *int { return &c.AdmissionBurst }),
	"COMPUTE_SHUTDOWN_TIMEOUT":       durationVar(func(c *fileConfig) *time.Duration { return &c.ShutdownTimeout }),
	"COMPUTE_MAINTENANCE_CLEANUP":    func(c *fileConfig, v string) error { c.Maintenance.CleanupSchedule = v; return nil },
	"COMPUTE_MAINTENANCE_SNAPSHOT":   func(c *fileConfig, v string) error { c.Maintenance.SnapshotSchedule = v; return nil },
	"COMPUTE_WORKER_POLL_INTERVAL":   durationVar(func(c *fileConfig) *time.Duration { return &c.WorkerPollInterval }),
	"COMPUTE_BROKER_POLL_INTERVAL":   durationVar(func(c *fileConfig) *time.Duration { return &c.PollInterval }),
	"COMPUTE_CACHE_SERVICE":          func(c *fileConfig, v string) error { c.Cache.Service = v; return nil },
	"COMPUTE_WORKER_RECONNECT_MAX":   durationVar(func(c *fileConfig) *time.Duration { return &c.ReconnectMax }),
	"COMPUTE_WORKER_RECONNECT_START": durationVar(func(c *fileConfig) *time.Duration { return &c.ReconnectInitial }),
}

func applyEnv(cfg *fileConfig, getenv func(string) string) error {
	for name, set := range envOverrides {
		v := strings.TrimSpace(getenv(name))
		if v == "" {
			continue
		}
		if err := set(cfg, v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func intVar(field func(*fileConfig) *int) envSetter {
	return func(c *fileConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatVar(field func(*fileConfig) *float64) envSetter {
	return func(c *fileConfig, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func durationVar(field func(*fileConfig) *time.Duration) envSetter {
	return func(c *fileConfig, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

// newLogger builds the process logger from the log section.
func newLogger(cfg logConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}
