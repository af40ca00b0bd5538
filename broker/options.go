package broker

import (
	"log/slog"
	"net"
	"strconv"
	"time"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/cluster"
	"github.com/zhengren252/ntn-sub004/ext"
	"github.com/zhengren252/ntn-sub004/protocol"
	"github.com/zhengren252/ntn-sub004/queue"
)

// Config holds the broker settings.
type Config struct {
	// FrontendAddr and BackendAddr are "host:port" bind addresses. Port 0
	// picks a free port.
	FrontendAddr string
	BackendAddr  string

	// MaxPending bounds the queue of requests waiting for a worker.
	MaxPending int

	// WorkerTimeout is how long a dispatched worker may take to reply.
	WorkerTimeout time.Duration

	// MaxRetries is how many extra dispatches a timed-out request gets.
	MaxRetries int

	// PollInterval is the timeout sweep period.
	PollInterval time.Duration

	Admission queue.AdmissionConfig
}

// ConfigFrom derives the broker settings from the service configuration.
func ConfigFrom(c compute.Config) Config {
	return Config{
		FrontendAddr:  net.JoinHostPort(c.Host, strconv.Itoa(c.FrontendPort)),
		BackendAddr:   net.JoinHostPort(c.Host, strconv.Itoa(c.BackendPort)),
		MaxPending:    c.MaxPendingRequests,
		WorkerTimeout: c.WorkerTimeout,
		MaxRetries:    c.MaxRetries,
		PollInterval:  c.PollInterval,
		Admission: queue.AdmissionConfig{
			Rate:  c.AdmissionRate,
			Burst: c.AdmissionBurst,
		},
	}
}

func (c *Config) defaults() {
	d := compute.DefaultConfig()
	if c.MaxPending <= 0 {
		c.MaxPending = d.MaxPendingRequests
	}
	if c.WorkerTimeout <= 0 {
		c.WorkerTimeout = d.WorkerTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
}

// Option configures a Broker.
type Option func(*Broker)

// WithStatusStore sets where evicted workers are marked offline.
func WithStatusStore(s cluster.Store) Option {
	return func(b *Broker) { b.status = s }
}

// WithExtensions sets the lifecycle hook registry.
func WithExtensions(r *ext.Registry) Option {
	return func(b *Broker) { b.extensions = r }
}

// WithCodec sets the wire codec used for the broker's own error responses.
// It must match the codec clients and workers use.
func WithCodec(h *protocol.MessageHandler) Option {
	return func(b *Broker) { b.codec = h }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}
