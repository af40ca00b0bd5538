package compute

import "time"

// Config holds configuration for a compute Service.
type Config struct {
	// Host is the interface the broker binds its frontend and backend on.
	Host string `yaml:"host"`

	// FrontendPort receives client requests.
	FrontendPort int `yaml:"frontend_port"`

	// BackendPort receives worker registrations and replies.
	BackendPort int `yaml:"backend_port"`

	// MaxPendingRequests bounds the queue of requests waiting for a worker.
	// A request arriving when the queue is full is answered with an error.
	MaxPendingRequests int `yaml:"max_pending_requests"`

	// WorkerTimeout is how long the broker waits for a dispatched worker
	// to reply before evicting it.
	WorkerTimeout time.Duration `yaml:"worker_timeout"`

	// MaxRetries is how many times a timed-out request is re-dispatched
	// to a different ready worker.
	MaxRetries int `yaml:"max_retries"`

	// PollInterval drives the broker's timeout sweep.
	PollInterval time.Duration `yaml:"poll_interval"`

	// AdmissionRate is the sustained per-client request rate (req/s).
	// Zero disables admission limiting.
	AdmissionRate float64 `yaml:"admission_rate"`

	// AdmissionBurst is the per-client burst allowance.
	AdmissionBurst int `yaml:"admission_burst"`

	// WorkerCount is the number of in-process workers started by serve.
	WorkerCount int `yaml:"worker_count"`

	// WorkerPollInterval bounds each blocking receive in the worker loop.
	WorkerPollInterval time.Duration `yaml:"worker_poll_interval"`

	// HandlerTimeout caps a single handler invocation. Zero means no cap.
	HandlerTimeout time.Duration `yaml:"handler_timeout"`

	// ReconnectInitial and ReconnectMax bound worker reconnect backoff.
	ReconnectInitial time.Duration `yaml:"reconnect_initial"`
	ReconnectMax     time.Duration `yaml:"reconnect_max"`

	// Codec selects the wire encoding: "json" or "msgpack".
	Codec string `yaml:"codec"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Cache       CacheConfig       `yaml:"cache"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// CacheConfig configures the cache backend.
type CacheConfig struct {
	// Addr is the Redis address. Empty selects the in-memory backend.
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`

	// Service is the first segment of every cache key.
	Service string `yaml:"service"`

	// TTLs overrides the default per-category TTL.
	TTLs map[string]time.Duration `yaml:"ttls"`
}

// PersistenceConfig selects and configures the persistence backend.
type PersistenceConfig struct {
	// Driver is one of postgres, sqlite, mongo or memory.
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Database string `yaml:"database"`
}

// MaintenanceConfig configures scheduled retention and snapshot jobs.
type MaintenanceConfig struct {
	RetentionDays    int    `yaml:"retention_days"`
	CleanupSchedule  string `yaml:"cleanup_schedule"`
	SnapshotSchedule string `yaml:"snapshot_schedule"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:               "127.0.0.1",
		FrontendPort:       5555,
		BackendPort:        5556,
		MaxPendingRequests: 1000,
		WorkerTimeout:      30 * time.Second,
		MaxRetries:         1,
		PollInterval:       100 * time.Millisecond,
		WorkerCount:        4,
		WorkerPollInterval: 1 * time.Second,
		ReconnectInitial:   200 * time.Millisecond,
		ReconnectMax:       10 * time.Second,
		Codec:              "json",
		ShutdownTimeout:    30 * time.Second,
		Cache: CacheConfig{
			Service: "compute",
		},
		Persistence: PersistenceConfig{
			Driver: "memory",
		},
		Maintenance: MaintenanceConfig{
			RetentionDays:    30,
			CleanupSchedule:  "@daily",
			SnapshotSchedule: "@every 1m",
		},
	}
}

// Retention returns the retention window as a duration.
func (c Config) Retention() time.Duration {
	return time.Duration(c.Maintenance.RetentionDays) * 24 * time.Hour
}
