package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// AdmissionConfig sets the per-client token bucket.
type AdmissionConfig struct {
	// Rate is the sustained requests per second per client. Zero disables
	// admission limiting.
	Rate float64

	// Burst is the bucket size. Defaults to 1 if Rate is set but Burst is
	// zero.
	Burst int
}

// Admission limits request rate per client identity. It is safe for
// concurrent use.
type Admission struct {
	cfg AdmissionConfig

	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

// NewAdmission creates an Admission limiter.
func NewAdmission(cfg AdmissionConfig) *Admission {
	if cfg.Rate > 0 && cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Admission{
		cfg:     cfg,
		clients: make(map[string]*rate.Limiter),
	}
}

// Enabled reports whether any limit is configured.
func (a *Admission) Enabled() bool { return a != nil && a.cfg.Rate > 0 }

// Allow consumes one token for client and reports whether the request
// may proceed.
func (a *Admission) Allow(client string) bool {
	if !a.Enabled() {
		return true
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	l := a.clients[client]
	if l == nil {
		l = rate.NewLimiter(rate.Limit(a.cfg.Rate), a.cfg.Burst)
		a.clients[client] = l
	}
	return l.Allow()
}

// Forget drops the limiter state for client (called on disconnect).
func (a *Admission) Forget(client string) {
	if !a.Enabled() {
		return
	}
	a.mu.Lock()
	delete(a.clients, client)
	a.mu.Unlock()
}

// Clients returns the number of clients with limiter state.
func (a *Admission) Clients() int {
	if !a.Enabled() {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.clients)
}
