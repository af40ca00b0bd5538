package cluster

import "time"

// State is the reported state of a worker.
type State string

const (
	// StateIdle means the worker is registered and waiting for work.
	StateIdle State = "idle"
	// StateBusy means the worker is executing a request.
	StateBusy State = "busy"
	// StateOffline means the worker stopped or was evicted by the broker.
	StateOffline State = "offline"
)

// WorkerStatus is one row of worker_status.
type WorkerStatus struct {
	WorkerID          string    `json:"worker_id"`
	Status            State     `json:"status"`
	ProcessedRequests int64     `json:"processed_requests"`
	CPUUsage          float64   `json:"cpu_usage"`
	MemoryUsage       float64   `json:"memory_usage"`
	UpdatedAt         time.Time `json:"updated_at"`
}
